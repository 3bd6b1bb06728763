package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

const statement = "Transaction Date,Narration,Amount,Type\n" +
	"16/01/2024,Unknown Merchant,\"75,000\",Online\n" +
	"17/01/2024,Amazon India,2500,Online\n"

func TestRunSummary(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-file", writeFile(t, "statement.csv", statement)}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{"Total:       2", "Fraud:       1", "Unknown Merchant", "2024-01-16"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Amazon India") {
		t.Error("legit transactions should only print with -verbose")
	}
}

func TestRunJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-json", "-file", writeFile(t, "statement.csv", statement)}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}

	var rpt domain.ScanReport
	if err := json.Unmarshal(stdout.Bytes(), &rpt); err != nil {
		t.Fatalf("output is not a report: %v", err)
	}
	if rpt.Summary.Total != 2 || len(rpt.Transactions) != 2 {
		t.Errorf("unexpected report %+v", rpt.Summary)
	}
	if rpt.Source != "statement.csv" {
		t.Errorf("expected source statement.csv, got %s", rpt.Source)
	}
}

func TestRunConfigOverride(t *testing.T) {
	cfgPath := writeFile(t, "fraudscan.yaml", "scoring:\n  trustedMerchants: []\n  suspiciousMerchants: [\"amazon\"]\n")

	var stdout, stderr bytes.Buffer
	code := run([]string{"-json", "-config", cfgPath, "-file", writeFile(t, "statement.csv", statement)}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}

	var rpt domain.ScanReport
	json.Unmarshal(stdout.Bytes(), &rpt)
	amazon := rpt.Transactions[1]
	if amazon.FraudScore != 45 || amazon.Status != domain.StatusLegit {
		t.Errorf("expected blocklisted merchant to score 45 and stay legit, got %+v", amazon)
	}
}

func TestRunExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args func(t *testing.T) []string
		want int
	}{
		{"NoFlag", func(t *testing.T) []string { return nil }, exitFailure},
		{"UnknownFlag", func(t *testing.T) []string { return []string{"-nope"} }, exitFailure},
		{"Unsupported", func(t *testing.T) []string {
			return []string{"-file", writeFile(t, "statement.pdf", "%PDF")}
		}, exitFailure},
		{"Missing", func(t *testing.T) []string {
			return []string{"-file", filepath.Join(t.TempDir(), "missing.csv")}
		}, exitFailure},
		{"NoRecords", func(t *testing.T) []string {
			return []string{"-file", writeFile(t, "empty.csv", "merchant,amount\n,5\n")}
		}, exitNoRecords},
		{"BadConfig", func(t *testing.T) []string {
			return []string{"-config", writeFile(t, "bad.yaml", "scoring: ["), "-file", writeFile(t, "s.csv", statement)}
		}, exitFailure},
		{"InvertedThresholds", func(t *testing.T) []string {
			cfg := writeFile(t, "inverted.yaml", "scoring:\n  fraudThreshold: 50\n  highRiskThreshold: 10\n")
			return []string{"-config", cfg, "-file", writeFile(t, "s.csv", statement)}
		}, exitFailure},
		{"ZeroFraudThreshold", func(t *testing.T) []string {
			cfg := writeFile(t, "zero.yaml", "scoring:\n  fraudThreshold: 0\n")
			return []string{"-config", cfg, "-file", writeFile(t, "s.csv", statement)}
		}, exitFailure},
		{"BadDelimiter", func(t *testing.T) []string {
			return []string{"-delimiter", ";;", "-file", writeFile(t, "s.csv", statement)}
		}, exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if got := run(tt.args(t), &stdout, &stderr); got != tt.want {
				t.Errorf("expected exit %d, got %d (stderr: %s)", tt.want, got, stderr.String())
			}
		})
	}
}

func TestRunDelimiter(t *testing.T) {
	semicolons := strings.ReplaceAll(strings.ReplaceAll(statement, ",", ";"), `"75;000"`, "75000")
	path := writeFile(t, "statement.csv", semicolons)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-json", "-delimiter", ";", "-file", path}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}
	var rpt domain.ScanReport
	if err := json.Unmarshal(stdout.Bytes(), &rpt); err != nil {
		t.Fatalf("output is not a report: %v", err)
	}
	if rpt.Summary.Total != 2 || rpt.Summary.Fraud != 1 {
		t.Errorf("unexpected summary %+v", rpt.Summary)
	}

	stdout.Reset()
	stderr.Reset()
	if code := run([]string{"-file", path}, &stdout, &stderr); code != exitNoRecords {
		t.Errorf("comma reading of a semicolon file should find no records, got exit %d", code)
	}
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{",", 0, false},
		{"", 0, false},
		{";", ';', false},
		{"|", '|', false},
		{"tab", '\t', false},
		{`\t`, '\t', false},
		{";;", 0, true},
		{`"`, 0, true},
		{"\n", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDelimiter(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDelimiter(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseDelimiter(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

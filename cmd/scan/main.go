// Offline statement scanner.
//
// Usage:
//
//	go run ./cmd/scan -file statement.csv [-json] [-config fraudscan.yaml] [-delimiter ";"]
//
// Runs ingestion, the rule engine and report aggregation locally without a
// server or database. Exit status is 2 when the file holds no valid
// transactions and 1 for any other failure.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/opensource-finance/fraudscan/internal/config"
	"github.com/opensource-finance/fraudscan/internal/domain"
	"github.com/opensource-finance/fraudscan/internal/ingest"
	"github.com/opensource-finance/fraudscan/internal/report"
	"github.com/opensource-finance/fraudscan/internal/rules"
	"github.com/opensource-finance/fraudscan/internal/scan"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitNoRecords = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	filePath := fs.String("file", "", "Path to a .csv or .xlsx statement")
	asJSON := fs.Bool("json", false, "Print the full report as JSON")
	configPath := fs.String("config", "", "YAML file with scoring overrides")
	verbose := fs.Bool("verbose", false, "Print every transaction, not only flagged ones")
	delimiter := fs.String("delimiter", ",", `Field separator for .csv files ("tab" for tab separated)`)
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}

	if *filePath == "" {
		fmt.Fprintln(stderr, "Usage: scan -file statement.csv [-json] [-config fraudscan.yaml] [-delimiter ;]")
		fmt.Fprintln(stderr, "\nFlags:")
		fs.PrintDefaults()
		return exitFailure
	}

	// Diagnostics go to stderr so -json output stays machine readable.
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	cfg := domain.DefaultConfig()
	if *configPath != "" {
		if err := config.ApplyFile(cfg, *configPath); err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return exitFailure
		}
	}

	fileType, err := ingest.FileTypeFromName(*filePath)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitFailure
	}

	comma, err := parseDelimiter(*delimiter)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitFailure
	}

	engine, err := rules.NewEngine(cfg.Scoring)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: invalid scoring configuration: %v\n", err)
		return exitFailure
	}

	svc := scan.NewService(engine, scan.Options{})
	rpt, err := svc.ScanFile(context.Background(), scan.ScanRequest{
		Path:      *filePath,
		FileName:  filepath.Base(*filePath),
		FileType:  fileType,
		Delimiter: comma,
	})
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		if errors.Is(err, domain.ErrNoValidRecords) {
			return exitNoRecords
		}
		return exitFailure
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rpt); err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return exitFailure
		}
		return exitOK
	}

	printReport(stdout, rpt, *verbose)
	return exitOK
}

// parseDelimiter accepts a single character or "tab".
func parseDelimiter(s string) (rune, error) {
	switch s {
	case "", ",":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	return r, nil
}

func printReport(w io.Writer, rpt *domain.ScanReport, verbose bool) {
	fmt.Fprintf(w, "Source:      %s\n", rpt.Source)
	fmt.Fprintf(w, "Rows read:   %d (%d dropped)\n", rpt.Metadata.RowsRead, rpt.Metadata.RowsDropped)
	fmt.Fprintf(w, "Rules:       %d\n", rpt.Metadata.RulesEvaluated)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total:       %d\n", rpt.Summary.Total)
	fmt.Fprintf(w, "Fraud:       %d\n", rpt.Summary.Fraud)
	fmt.Fprintf(w, "Legitimate:  %d\n", rpt.Summary.Legitimate)
	fmt.Fprintf(w, "High risk:   %d\n", report.CountByRisk(rpt, domain.RiskHigh))

	txs := rpt.Transactions
	if !verbose {
		txs = report.FraudTransactions(rpt)
	}
	if len(txs) == 0 {
		return
	}

	fmt.Fprintln(w)
	for _, tx := range txs {
		fmt.Fprintf(w, "%-10s | %-24.24s | %14.2f | %-8s | %3d %-6s | %s\n",
			tx.Date, tx.Merchant, tx.Amount, tx.Status, tx.FraudScore, tx.RiskLevel, strings.Join(tx.Reasons, "; "))
	}
}

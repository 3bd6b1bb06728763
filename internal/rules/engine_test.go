package rules

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(domain.DefaultScoringConfig())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

func TestEngineCreation(t *testing.T) {
	engine := newTestEngine(t)

	if engine.RulesCount() != 7 {
		t.Errorf("expected 7 rules, got %d", engine.RulesCount())
	}

	want := []string{
		"amount-tier",
		"suspicious-merchant",
		"round-thousand",
		"untrusted-merchant-high-amount",
		"online-high-value",
		"weekend-high-value",
		"multiple-of-5000",
	}
	var got []string
	for _, r := range engine.GetLoadedRules() {
		got = append(got, r.ID)
	}
	if !slices.Equal(got, want) {
		t.Errorf("rule order = %v, want %v", got, want)
	}
}

func TestLoadInvalidRule(t *testing.T) {
	tests := []struct {
		name string
		rule *domain.RuleConfig
	}{
		{
			name: "syntax error",
			rule: &domain.RuleConfig{ID: "bad", Expression: "this is not valid CEL !!!", Enabled: true},
		},
		{
			name: "non-bool without bands",
			rule: &domain.RuleConfig{ID: "bad", Expression: "amount * 2.0", Enabled: true},
		},
		{
			name: "bool with bands",
			rule: &domain.RuleConfig{
				ID:         "bad",
				Expression: "amount > 1.0",
				Bands:      []domain.RuleBand{{Weight: 1, Reason: "x"}},
				Enabled:    true,
			},
		},
		{
			name: "unknown variable",
			rule: &domain.RuleConfig{ID: "bad", Expression: "velocity_count > 3", Enabled: true},
		},
		{
			name: "missing id",
			rule: &domain.RuleConfig{Expression: "amount > 1.0", Enabled: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultScoringConfig()
			cfg.Rules = []*domain.RuleConfig{tt.rule}
			if _, err := NewEngine(cfg); err == nil {
				t.Error("expected error for invalid rule")
			}
		})
	}
}

func TestInvalidThresholds(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*domain.ScoringConfig)
	}{
		{"high risk below fraud", func(c *domain.ScoringConfig) { c.HighRiskThreshold = 10 }},
		{"zero fraud threshold", func(c *domain.ScoringConfig) { c.FraudThreshold = 0 }},
		{"negative fraud threshold", func(c *domain.ScoringConfig) { c.FraudThreshold = -5 }},
		{"max score below high risk", func(c *domain.ScoringConfig) { c.MaxScore = 60 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultScoringConfig()
			tt.modify(&cfg)
			_, err := NewEngine(cfg)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	cfg := domain.DefaultScoringConfig()
	cfg.FraudThreshold, cfg.HighRiskThreshold = 60, 60
	if _, err := NewEngine(cfg); err != nil {
		t.Errorf("equal thresholds should be accepted: %v", err)
	}
}

func TestValidateRule(t *testing.T) {
	engine := newTestEngine(t)

	if err := engine.ValidateRule(&domain.RuleConfig{ID: "ok", Expression: `tx_type == "ATM"`}); err != nil {
		t.Errorf("expected valid rule, got %v", err)
	}
	if err := engine.ValidateRule(nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if engine.RulesCount() != 7 {
		t.Errorf("validation must not load rules, got %d", engine.RulesCount())
	}
}

func TestAmountTierNeverCumulative(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		amount float64
		want   int
	}{
		{0, 0},
		{25000, 0},
		{25000.01, 20},
		{50000, 20},
		{50001, 35},
		{100000, 35},
		{100000.5, 50},
		{5000000, 50},
	}

	for _, tt := range tests {
		tx := &domain.Transaction{Merchant: "Amazon", Amount: tt.amount, Type: "Card"}
		analysis := engine.Detect(tx)
		if got := ruleWeight(analysis, "amount-tier"); got != tt.want {
			t.Errorf("amount %.2f: tier weight = %d, want %d", tt.amount, got, tt.want)
		}
	}

	// Sweep: the tier contribution is always one of the four values.
	for a := 0.0; a <= 100000; a += 1234.5 {
		w := ruleWeight(engine.Detect(&domain.Transaction{Merchant: "Amazon", Amount: a}), "amount-tier")
		if w != 0 && w != 20 && w != 35 && w != 50 {
			t.Fatalf("amount %.2f: unexpected tier weight %d", a, w)
		}
	}
}

func TestScenarioUnknownMerchantOnline(t *testing.T) {
	engine := newTestEngine(t)

	scored := engine.Score(domain.Transaction{
		Date:     "2024-01-16",
		Merchant: "Unknown Merchant",
		Amount:   75000,
		Type:     "Online",
		Status:   domain.StatusPending,
	})

	if scored.FraudScore != 100 {
		t.Errorf("expected score clamped to 100, got %d", scored.FraudScore)
	}
	if scored.Status != domain.StatusFraud {
		t.Errorf("expected Fraud, got %s", scored.Status)
	}
	if scored.RiskLevel != domain.RiskHigh {
		t.Errorf("expected High, got %s", scored.RiskLevel)
	}

	want := []string{
		"High amount transaction",
		"Suspicious merchant detected",
		"Round number amount",
		"Unknown merchant with high amount",
		"Amount in multiples of 5000",
	}
	if !slices.Equal(scored.Reasons, want) {
		t.Errorf("reasons = %v, want %v", scored.Reasons, want)
	}
}

func TestScenarioTrustedSmallOnline(t *testing.T) {
	engine := newTestEngine(t)

	scored := engine.Score(domain.Transaction{
		Merchant: "Amazon India",
		Amount:   2500,
		Type:     "Online",
		Status:   domain.StatusPending,
	})

	if scored.FraudScore != 0 {
		t.Errorf("expected score 0, got %d", scored.FraudScore)
	}
	if scored.Status != domain.StatusLegit {
		t.Errorf("expected Legit, got %s", scored.Status)
	}
	if scored.RiskLevel != domain.RiskLow {
		t.Errorf("expected Low, got %s", scored.RiskLevel)
	}
	if scored.Reasons == nil || len(scored.Reasons) != 0 {
		t.Errorf("expected empty non-nil reasons, got %#v", scored.Reasons)
	}
}

func TestIndividualRules(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name  string
		tx    domain.Transaction
		score int
		risk  domain.RiskLevel
		fired []string
	}{
		{
			name:  "weekend high value",
			tx:    domain.Transaction{Date: "2024-01-20", Merchant: "Amazon", Amount: 40000, Type: "Card"},
			score: 65,
			risk:  domain.RiskMedium,
			fired: []string{"amount-tier", "round-thousand", "weekend-high-value", "multiple-of-5000"},
		},
		{
			name:  "sunday counts as weekend",
			tx:    domain.Transaction{Date: "2024-01-21", Merchant: "Zomato", Amount: 30500, Type: "Card"},
			score: 40,
			risk:  domain.RiskLow,
			fired: []string{"amount-tier", "weekend-high-value"},
		},
		{
			name:  "weekday is not weekend",
			tx:    domain.Transaction{Date: "2024-01-16", Merchant: "Zomato", Amount: 30500, Type: "Card"},
			score: 20,
			risk:  domain.RiskLow,
			fired: []string{"amount-tier"},
		},
		{
			name:  "raw date never matches weekend",
			tx:    domain.Transaction{Date: "sometime", Merchant: "Zomato", Amount: 30500, Type: "Card"},
			score: 20,
			risk:  domain.RiskLow,
			fired: []string{"amount-tier"},
		},
		{
			name:  "online strictly above 75000",
			tx:    domain.Transaction{Merchant: "Flipkart", Amount: 75001, Type: "Online"},
			score: 65,
			risk:  domain.RiskMedium,
			fired: []string{"amount-tier", "online-high-value"},
		},
		{
			name:  "online type is case sensitive",
			tx:    domain.Transaction{Merchant: "Flipkart", Amount: 75001, Type: "online"},
			score: 35,
			risk:  domain.RiskLow,
			fired: []string{"amount-tier"},
		},
		{
			name:  "suspicious merchant case insensitive",
			tx:    domain.Transaction{Merchant: "FAKE Electronics", Amount: 100, Type: "Card"},
			score: 45,
			risk:  domain.RiskLow,
			fired: []string{"suspicious-merchant"},
		},
		{
			name:  "untrusted merchant above 15000",
			tx:    domain.Transaction{Merchant: "Local Shop", Amount: 15500, Type: "Card"},
			score: 25,
			risk:  domain.RiskLow,
			fired: []string{"untrusted-merchant-high-amount"},
		},
		{
			name:  "round thousand overlaps multiple of 5000",
			tx:    domain.Transaction{Merchant: "Uber", Amount: 25000, Type: "Card"},
			score: 25,
			risk:  domain.RiskLow,
			fired: []string{"round-thousand", "multiple-of-5000"},
		},
		{
			name:  "round thousand at 10000 does not fire",
			tx:    domain.Transaction{Merchant: "Uber", Amount: 10000, Type: "Card"},
			score: 0,
			risk:  domain.RiskLow,
		},
		{
			name:  "fractional amount is not round",
			tx:    domain.Transaction{Merchant: "Uber", Amount: 12000.5, Type: "Card"},
			score: 0,
			risk:  domain.RiskLow,
		},
		{
			name:  "everything fires",
			tx:    domain.Transaction{Date: "2024-01-20", Merchant: "Scam Store", Amount: 200000, Type: "Online"},
			score: 100,
			risk:  domain.RiskHigh,
			fired: []string{
				"amount-tier", "suspicious-merchant", "round-thousand", "untrusted-merchant-high-amount",
				"online-high-value", "weekend-high-value", "multiple-of-5000",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := engine.Detect(&tt.tx)

			if analysis.Score != tt.score {
				t.Errorf("score = %d, want %d", analysis.Score, tt.score)
			}
			if analysis.RiskLevel != tt.risk {
				t.Errorf("risk = %s, want %s", analysis.RiskLevel, tt.risk)
			}
			if got := firedIDs(analysis); !slices.Equal(got, tt.fired) {
				t.Errorf("fired = %v, want %v", got, tt.fired)
			}
		})
	}
}

func TestScoreInvariants(t *testing.T) {
	engine := newTestEngine(t)

	merchants := []string{"Amazon", "Unknown Merchant", "Corner Cafe", "Test Merchant Ola"}
	types := []string{"Online", "Card", "Unknown"}
	dates := []string{"2024-01-20", "2024-01-16", ""}

	for _, m := range merchants {
		for _, ty := range types {
			for _, d := range dates {
				for a := -5000.0; a <= 250000; a += 2500 {
					analysis := engine.Detect(&domain.Transaction{Date: d, Merchant: m, Amount: a, Type: ty})

					if analysis.Score < 0 || analysis.Score > 100 {
						t.Fatalf("score %d out of range for %s/%.0f", analysis.Score, m, a)
					}
					if len(analysis.Reasons) != len(firedIDs(analysis)) {
						t.Fatalf("reasons %v do not match fired rules", analysis.Reasons)
					}
					if analysis.IsFraud != (analysis.Score >= 50) {
						t.Fatalf("isFraud %v inconsistent with score %d", analysis.IsFraud, analysis.Score)
					}
					wantRisk := domain.RiskLow
					switch {
					case analysis.Score >= 75:
						wantRisk = domain.RiskHigh
					case analysis.Score >= 50:
						wantRisk = domain.RiskMedium
					}
					if analysis.RiskLevel != wantRisk {
						t.Fatalf("risk %s inconsistent with score %d", analysis.RiskLevel, analysis.Score)
					}
				}
			}
		}
	}
}

func TestCustomMerchantLists(t *testing.T) {
	cfg := domain.DefaultScoringConfig()
	cfg.SuspiciousMerchants = []string{"  Casino ", ""}
	cfg.TrustedMerchants = []string{"Corner Cafe"}

	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	analysis := engine.Detect(&domain.Transaction{Merchant: "Royal CASINO", Amount: 100})
	if got := firedIDs(analysis); !slices.Equal(got, []string{"suspicious-merchant"}) {
		t.Errorf("fired = %v", got)
	}

	analysis = engine.Detect(&domain.Transaction{Merchant: "corner cafe", Amount: 16500})
	if got := firedIDs(analysis); len(got) != 0 {
		t.Errorf("trusted merchant should not fire, got %v", got)
	}

	// "fake" is no longer on the blocklist
	analysis = engine.Detect(&domain.Transaction{Merchant: "Fake Shop", Amount: 100})
	if analysis.Score != 0 {
		t.Errorf("expected 0, got %d", analysis.Score)
	}
}

func TestRuntimeErrorDoesNotFire(t *testing.T) {
	cfg := domain.DefaultScoringConfig()
	cfg.Rules = []*domain.RuleConfig{
		{
			ID:         "index-error",
			Expression: "[true][int(amount)]",
			Weight:     40,
			Reason:     "never",
			Enabled:    true,
		},
		{
			ID:         "always",
			Expression: "amount >= 0.0",
			Weight:     60,
			Reason:     "non-negative",
			Enabled:    true,
		},
		{
			ID:         "disabled",
			Expression: "true",
			Weight:     100,
			Reason:     "disabled",
		},
	}

	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if engine.RulesCount() != 2 {
		t.Fatalf("expected disabled rule to be skipped, got %d rules", engine.RulesCount())
	}

	analysis := engine.Detect(&domain.Transaction{Merchant: "x", Amount: 5})
	if analysis.Score != 60 {
		t.Errorf("expected 60, got %d", analysis.Score)
	}
	if !slices.Equal(analysis.Reasons, []string{"non-negative"}) {
		t.Errorf("reasons = %v", analysis.Reasons)
	}
	if analysis.Rules[0].Fired {
		t.Error("erroring rule must not fire")
	}
}

func TestScoreAllPreservesOrder(t *testing.T) {
	engine := newTestEngine(t)

	txs := make([]domain.Transaction, 1000)
	for i := range txs {
		txs[i] = domain.Transaction{Merchant: "Amazon", Amount: float64(i * 100), Type: "Card"}
	}

	scored, err := engine.ScoreAll(context.Background(), txs)
	if err != nil {
		t.Fatalf("ScoreAll failed: %v", err)
	}
	if len(scored) != len(txs) {
		t.Fatalf("expected %d results, got %d", len(txs), len(scored))
	}
	for i, s := range scored {
		if s.Amount != txs[i].Amount {
			t.Fatalf("result %d out of order: amount %.0f", i, s.Amount)
		}
		want := engine.Score(txs[i])
		if s.FraudScore != want.FraudScore || s.Status != want.Status {
			t.Fatalf("result %d differs from sequential scoring", i)
		}
	}
}

func TestScoreAllCanceled(t *testing.T) {
	engine := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.ScoreAll(ctx, make([]domain.Transaction, 1000))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMatchBand(t *testing.T) {
	bands := []domain.RuleBand{
		{UpperLimit: limit(1), Weight: 0, Reason: "none"},
		{LowerLimit: limit(1), UpperLimit: limit(2), Weight: 10, Reason: "low"},
		{LowerLimit: limit(2), Weight: 20, Reason: "high"},
	}

	tests := []struct {
		score  float64
		reason string
	}{
		{-3, "none"},
		{0.99, "none"},
		{1, "low"},
		{1.5, "low"},
		{2, "high"},
		{1e12, "high"},
	}
	for _, tt := range tests {
		band, ok := matchBand(tt.score, bands)
		if !ok || band.Reason != tt.reason {
			t.Errorf("score %v: got %q (%v), want %q", tt.score, band.Reason, ok, tt.reason)
		}
	}

	if _, ok := matchBand(0, bands[1:]); ok {
		t.Error("expected no band below the first lower limit")
	}
}

func ruleWeight(a domain.FraudAnalysis, id string) int {
	for _, r := range a.Rules {
		if r.RuleID == id && r.Fired {
			return r.Weight
		}
	}
	return 0
}

func firedIDs(a domain.FraudAnalysis) []string {
	var ids []string
	for _, r := range a.Rules {
		if r.Fired {
			ids = append(ids, r.RuleID)
		}
	}
	return ids
}

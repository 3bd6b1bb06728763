// Package rules provides the CEL-Go based fraud scoring engine.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// scoreBatchSize is the number of transactions one ScoreAll worker scores per slot.
const scoreBatchSize = 256

// Engine scores transactions against an ordered, immutable rule set.
type Engine struct {
	env        *cel.Env
	rules      []*CompiledRule
	scoring    domain.ScoringConfig
	suspicious []string
	trusted    []string
	maxWorkers int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine compiles the rule set once. cfg.Rules replaces the built-in
// rules when non-empty; disabled rules are skipped. Inconsistent thresholds
// are rejected with domain.ErrInvalidInput.
func NewEngine(cfg domain.ScoringConfig) (*Engine, error) {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 10
	}
	if cfg.MaxScore <= 0 {
		cfg.MaxScore = 100
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{
		env:        env,
		scoring:    cfg,
		suspicious: normalizeMerchants(cfg.SuspiciousMerchants),
		trusted:    normalizeMerchants(cfg.TrustedMerchants),
		maxWorkers: cfg.MaxWorkers,
	}

	configs := cfg.Rules
	if len(configs) == 0 {
		configs = DefaultRules()
	}
	for _, rc := range configs {
		if !rc.Enabled {
			continue
		}
		compiled, err := e.compileRule(rc)
		if err != nil {
			return nil, err
		}
		e.rules = append(e.rules, compiled)
	}

	return e, nil
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("merchant", cel.StringType),
		cel.Variable("merchant_lower", cel.StringType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("date", cel.StringType),
		// 0 is Sunday; -1 when the date could not be parsed
		cel.Variable("weekday", cel.IntType),
		cel.Variable("suspicious_merchants", cel.ListType(cel.StringType)),
		cel.Variable("trusted_merchants", cel.ListType(cel.StringType)),
		cel.Function("multiple_of",
			cel.Overload("multiple_of_double_double",
				[]*cel.Type{cel.DoubleType, cel.DoubleType},
				cel.BoolType,
				cel.BinaryBinding(multipleOf),
			),
		),
	)
}

// multipleOf reports whether lhs is an exact multiple of rhs.
func multipleOf(lhs, rhs ref.Val) ref.Val {
	a, ok := lhs.(types.Double)
	if !ok {
		return types.NewErr("multiple_of: unexpected left operand %v", lhs.Type())
	}
	b, ok := rhs.(types.Double)
	if !ok {
		return types.NewErr("multiple_of: unexpected right operand %v", rhs.Type())
	}
	if b == 0 {
		return types.False
	}
	return types.Bool(math.Mod(float64(a), float64(b)) == 0)
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: rule config is required", domain.ErrInvalidInput)
	}
	_, err := e.compileRule(cfg)
	return err
}

// Detect evaluates every rule in order against tx.
// It never fails: a rule that errors at runtime counts as not fired.
func (e *Engine) Detect(tx *domain.Transaction) domain.FraudAnalysis {
	activation := e.activation(tx)

	analysis := domain.FraudAnalysis{
		Reasons: []string{},
		Rules:   make([]domain.RuleResult, 0, len(e.rules)),
	}

	total := 0
	for _, rule := range e.rules {
		result := e.evaluateRule(rule, activation)
		analysis.Rules = append(analysis.Rules, result)
		if result.Fired {
			total += result.Weight
			analysis.Reasons = append(analysis.Reasons, result.Reason)
		}
	}

	analysis.Score = clampScore(total, e.scoring.MaxScore)
	analysis.IsFraud = e.scoring.IsFraud(analysis.Score)
	analysis.RiskLevel = e.scoring.RiskLevelFor(analysis.Score)
	return analysis
}

// Score returns tx annotated with its fraud verdict.
func (e *Engine) Score(tx domain.Transaction) domain.ScoredTransaction {
	analysis := e.Detect(&tx)

	scored := domain.ScoredTransaction{
		Transaction: tx,
		FraudScore:  analysis.Score,
		RiskLevel:   analysis.RiskLevel,
		Reasons:     analysis.Reasons,
	}
	if analysis.IsFraud {
		scored.Status = domain.StatusFraud
	} else {
		scored.Status = domain.StatusLegit
	}
	return scored
}

// ScoreAll scores a batch in parallel. Output order equals input order.
func (e *Engine) ScoreAll(ctx context.Context, txs []domain.Transaction) ([]domain.ScoredTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]domain.ScoredTransaction, len(txs))

	if len(txs) <= scoreBatchSize {
		for i := range txs {
			results[i] = e.Score(txs[i])
		}
		return results, nil
	}

	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for start := 0; start < len(txs); start += scoreBatchSize {
		end := min(start+scoreBatchSize, len(txs))

		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}

		select {
		case sem <- struct{}{}: // Acquire
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			defer func() { <-sem }() // Release

			for i := lo; i < hi; i++ {
				results[i] = e.Score(txs[i])
			}
		}(start, end)
	}

	wg.Wait()

	return results, nil
}

func (e *Engine) activation(tx *domain.Transaction) map[string]any {
	weekday := int64(-1)
	if d, ok := tx.ParsedDate(); ok {
		weekday = int64(d.Weekday())
	}

	return map[string]any{
		"amount":               tx.Amount,
		"merchant":             tx.Merchant,
		"merchant_lower":       strings.ToLower(tx.Merchant),
		"tx_type":              tx.Type,
		"date":                 tx.Date,
		"weekday":              weekday,
		"suspicious_merchants": e.suspicious,
		"trusted_merchants":    e.trusted,
	}
}

// evaluateRule evaluates a single rule and returns the result.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) domain.RuleResult {
	result := domain.RuleResult{RuleID: rule.Config.ID}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		slog.Warn("rule evaluation failed",
			"rule_id", rule.Config.ID,
			"error", err,
		)
		return result
	}

	if len(rule.Config.Bands) > 0 {
		if band, ok := matchBand(toScore(out), rule.Config.Bands); ok {
			result.Fired = true
			result.Weight = band.Weight
			result.Reason = band.Reason
		}
		return result
	}

	if fired, ok := out.(types.Bool); ok && bool(fired) {
		result.Fired = true
		result.Weight = rule.Config.Weight
		result.Reason = rule.Config.Reason
	}
	return result
}

// toScore converts a CEL value to a number for band matching.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand returns the first band with lower <= score < upper.
// A nil lower bound is unbounded below and a nil upper bound unbounded above.
func matchBand(score float64, bands []domain.RuleBand) (domain.RuleBand, bool) {
	for _, band := range bands {
		if band.LowerLimit != nil && score < *band.LowerLimit {
			continue
		}
		if band.UpperLimit != nil && score >= *band.UpperLimit {
			continue
		}
		return band, true
	}
	return domain.RuleBand{}, false
}

func clampScore(total, maxScore int) int {
	return max(0, min(total, maxScore))
}

func normalizeMerchants(list []string) []string {
	out := make([]string, 0, len(list))
	for _, m := range list {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	return len(e.rules)
}

// GetLoadedRules returns the loaded rule configurations in evaluation order.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	rules := make([]*domain.RuleConfig, 0, len(e.rules))
	for _, compiled := range e.rules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("%w: rule id is required", domain.ErrInvalidInput)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if len(cfg.Bands) > 0 {
		if !outputType.IsExactType(cel.DoubleType) && !outputType.IsExactType(cel.IntType) {
			return nil, fmt.Errorf("rule %s: banded expression must return int or double, got %s", cfg.ID, outputType)
		}
	} else if !outputType.IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

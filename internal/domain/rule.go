package domain

// RuleConfig defines one fraud heuristic.
//
// A boolean Expression fires with Weight and Reason when it evaluates to true.
// A numeric Expression is matched against Bands instead; the matching band
// supplies the weight and reason, and no match means the rule did not fire.
type RuleConfig struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// CEL expression to evaluate
	Expression string `json:"expression" yaml:"expression"`

	Weight int    `json:"weight" yaml:"weight"`
	Reason string `json:"reason" yaml:"reason"`

	// Bands for tiered rules; mutually exclusive by construction.
	Bands []RuleBand `json:"bands,omitempty" yaml:"bands,omitempty"`

	Enabled bool `json:"enabled" yaml:"enabled"`
}

// RuleBand maps a numeric expression result to a weight.
// LowerLimit is inclusive, UpperLimit exclusive; nil UpperLimit means unbounded.
type RuleBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty" yaml:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty" yaml:"upperLimit,omitempty"`
	Weight     int      `json:"weight" yaml:"weight"`
	Reason     string   `json:"reason" yaml:"reason"`
}

// RuleResult is the outcome of one rule against one transaction.
type RuleResult struct {
	RuleID string `json:"ruleId"`
	Fired  bool   `json:"fired"`
	Weight int    `json:"weight"`
	Reason string `json:"reason,omitempty"`
}

// FraudAnalysis is the verdict for a single transaction.
type FraudAnalysis struct {
	Score     int          `json:"score"`
	IsFraud   bool         `json:"isFraud"`
	RiskLevel RiskLevel    `json:"riskLevel"`
	Reasons   []string     `json:"reasons"`
	Rules     []RuleResult `json:"rules,omitempty"`
}

package rules

import "github.com/opensource-finance/fraudscan/internal/domain"

// amountTierExpression yields 0-3; the amount-tier bands map 1-3 to weights.
const amountTierExpression = `amount > 100000.0 ? 3 : (amount > 50000.0 ? 2 : (amount > 25000.0 ? 1 : 0))`

func limit(v float64) *float64 { return &v }

// DefaultRules returns the built-in rule set in evaluation order.
func DefaultRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:          "amount-tier",
			Name:        "Amount Tier",
			Description: "Tiered weight for large amounts; only the highest tier applies",
			Expression:  amountTierExpression,
			Bands: []domain.RuleBand{
				{LowerLimit: limit(1), UpperLimit: limit(2), Weight: 20, Reason: "Moderate high amount"},
				{LowerLimit: limit(2), UpperLimit: limit(3), Weight: 35, Reason: "High amount transaction"},
				{LowerLimit: limit(3), Weight: 50, Reason: "Extremely high amount"},
			},
			Enabled: true,
		},
		{
			ID:         "suspicious-merchant",
			Name:       "Suspicious Merchant",
			Expression: `suspicious_merchants.exists(s, merchant_lower.contains(s))`,
			Weight:     45,
			Reason:     "Suspicious merchant detected",
			Enabled:    true,
		},
		{
			ID:         "round-thousand",
			Name:       "Round Number Amount",
			Expression: `multiple_of(amount, 1000.0) && amount > 10000.0`,
			Weight:     15,
			Reason:     "Round number amount",
			Enabled:    true,
		},
		{
			ID:         "untrusted-merchant-high-amount",
			Name:       "Untrusted Merchant High Amount",
			Expression: `!trusted_merchants.exists(t, merchant_lower.contains(t)) && amount > 15000.0`,
			Weight:     25,
			Reason:     "Unknown merchant with high amount",
			Enabled:    true,
		},
		{
			ID:         "online-high-value",
			Name:       "High-Value Online",
			Expression: `tx_type == "Online" && amount > 75000.0`,
			Weight:     30,
			Reason:     "Very high-value online transaction",
			Enabled:    true,
		},
		{
			ID:         "weekend-high-value",
			Name:       "High-Value Weekend",
			Expression: `(weekday == 0 || weekday == 6) && amount > 30000.0`,
			Weight:     20,
			Reason:     "High-value weekend transaction",
			Enabled:    true,
		},
		{
			ID:         "multiple-of-5000",
			Name:       "Multiple of 5000",
			Expression: `multiple_of(amount, 5000.0) && amount > 20000.0`,
			Weight:     10,
			Reason:     "Amount in multiples of 5000",
			Enabled:    true,
		},
	}
}

package patterns

import (
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
)

// Builtin returns the default failure patterns observed across settlement
// operations. Frequencies and impacts are reference values; production
// deployments replace them with measured rates.
func Builtin() []*domain.FailurePattern {
	return []*domain.FailurePattern{
		{
			ID:          "counterparty-degradation",
			Name:        "Counterparty performance degradation",
			Description: "Counterparty with slipping success rate and growing delays",
			Conditions: []domain.PatternCondition{
				{Field: "counterpartySuccessRate", Operator: domain.OpLessThan, Value: 0.90, Weight: 0.5},
				{Field: "counterpartyAvgDelayDays", Operator: domain.OpGreaterThan, Value: 1.0, Weight: 0.3},
				{Field: "recentFailureCount", Operator: domain.OpGreaterThan, Value: 0.0, Weight: 0.2},
			},
			Frequency: 0.25,
			AvgImpact: 0.30,
		},
		{
			ID:          "market-stress-squeeze",
			Name:        "Market stress liquidity squeeze",
			Description: "Volatile, illiquid markets around the settlement date",
			Conditions: []domain.PatternCondition{
				{Field: "volatilityIndex", Operator: domain.OpGreaterThan, Value: 0.4, Weight: 0.4},
				{Field: "liquidityIndex", Operator: domain.OpLessThan, Value: 0.6, Weight: 0.4},
				{Field: "creditSpreadIndex", Operator: domain.OpGreaterThan, Value: 0.3, Weight: 0.2},
			},
			Frequency: 0.15,
			AvgImpact: 0.25,
		},
		{
			ID:          "same-day-crunch",
			Name:        "Same-day settlement crunch",
			Description: "Short settlement window under heavy system load",
			Expression:  "time_to_settle_days < 1.0 && system_load > 0.7",
			Frequency:   0.10,
			AvgImpact:   0.20,
		},
		{
			ID:          "large-illiquid-block",
			Name:        "Large illiquid block",
			Description: "Oversized notional in a thinly traded instrument",
			Conditions: []domain.PatternCondition{
				{Field: "notionalAmount", Operator: domain.OpGreaterThan, Value: 50_000_000.0, Weight: 0.6},
				{Field: "liquidityIndex", Operator: domain.OpLessThan, Value: 0.7, Weight: 0.4},
			},
			Frequency: 0.08,
			AvgImpact: 0.35,
		},
		{
			ID:          "manual-fop-handling",
			Name:        "Manual free-of-payment handling",
			Description: "FOP legs requiring manual custodian intervention",
			Conditions: []domain.PatternCondition{
				{Field: "settlementMethod", Operator: domain.OpEquals, Value: string(domain.MethodFOP), Weight: 0.7},
				{Field: "systemLoad", Operator: domain.OpGreaterThan, Value: 0.6, Weight: 0.3},
			},
			Frequency: 0.12,
			AvgImpact: 0.15,
		},
	}
}

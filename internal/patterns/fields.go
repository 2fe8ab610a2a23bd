package patterns

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
)

// FieldValue resolves a condition field name against a prediction input.
// Returns false when the field is unknown.
func FieldValue(input *domain.PredictionInput, field string, now time.Time) (any, bool) {
	instr := input.Instruction
	hist := input.History
	market := input.Market

	switch field {
	case "counterpartyId":
		return instr.CounterpartyID, true
	case "securityId":
		return instr.SecurityID, true
	case "securityType":
		return string(instr.SecurityType), true
	case "settlementMethod":
		return string(instr.Method), true
	case "priority":
		return string(instr.Priority), true
	case "currency":
		return instr.Currency, true
	case "notionalAmount":
		return instr.NotionalAmount, true
	case "timeToSettlementDays":
		days := instr.SettlementDate.Sub(now).Hours() / 24
		if days < 0 {
			days = 0
		}
		return days, true
	case "counterpartySuccessRate":
		return hist.CounterpartySuccessRate, true
	case "counterpartyAvgDelayDays":
		return hist.CounterpartyAvgDelayDays, true
	case "recentFailureCount":
		return float64(hist.RecentFailureCount), true
	case "securityTypeSuccessRate":
		return hist.SecurityTypeSuccessRate, true
	case "seasonalFactor":
		return hist.SeasonalFactor, true
	case "volatilityIndex":
		return market.VolatilityIndex, true
	case "liquidityIndex":
		return market.LiquidityIndex, true
	case "creditSpreadIndex":
		return market.CreditSpreadIndex, true
	case "systemLoad":
		return market.SystemLoad, true
	case "stressLevel":
		return string(market.StressLevel), true
	case "holidayAdjusted":
		return market.HolidayAdjusted, true
	default:
		return nil, false
	}
}

// conditionHolds reports whether one condition is satisfied by the input.
// Unknown fields and type mismatches never match.
func conditionHolds(cond domain.PatternCondition, input *domain.PredictionInput, now time.Time) bool {
	actual, ok := FieldValue(input, cond.Field, now)
	if !ok {
		return false
	}

	switch cond.Operator {
	case domain.OpEquals:
		if a, b, ok := asNumbers(actual, cond.Value); ok {
			return a == b
		}
		return asString(actual) == asString(cond.Value)

	case domain.OpGreaterThan:
		a, b, ok := asNumbers(actual, cond.Value)
		return ok && a > b

	case domain.OpLessThan:
		a, b, ok := asNumbers(actual, cond.Value)
		return ok && a < b

	case domain.OpBetween:
		a, lower, ok := asNumbers(actual, cond.Value)
		if !ok {
			return false
		}
		_, upper, ok := asNumbers(actual, cond.UpperValue)
		return ok && a >= lower && a <= upper

	case domain.OpContains:
		return strings.Contains(asString(actual), asString(cond.Value))

	default:
		return false
	}
}

func asNumbers(a, b any) (float64, float64, bool) {
	fa, okA := asFloat(a)
	fb, okB := asFloat(b)
	return fa, fb, okA && okB
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		if s {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

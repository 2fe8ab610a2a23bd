// Package features turns a raw prediction input into the flat numeric
// feature set consumed by the scoring models and pattern library.
package features

import (
	"math"
	"time"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
)

// Vector is the flat feature set extracted from a prediction input. All
// features are risk-oriented and normalized to [0,1]: higher always means
// more likely to fail.
type Vector struct {
	CounterpartyRisk  float64 // 1 - counterparty success rate
	CounterpartyDelay float64 // avg delay days, scaled by 5-day horizon
	SecurityTypeRisk  float64 // 1 - security-type success rate
	NotionalScale     float64 // log-normalized notional
	Volatility        float64
	LiquidityRisk     float64 // 1 - liquidity index
	CreditSpread      float64
	SystemLoad        float64
	TimePressure      float64 // shorter time to settlement is riskier
	TimeToSettleDays  float64 // raw days, not normalized
	DayOfWeek         float64 // settlement weekday scaled to [0,1]
	SeasonalFactor    float64
	PriorityScore     float64
	MethodScore       float64
	MarketStress      float64
}

// Extract computes the feature vector for a prediction input at the given
// reference time.
func Extract(input *domain.PredictionInput, now time.Time) Vector {
	instr := input.Instruction
	hist := input.History
	market := input.Market

	days := instr.SettlementDate.Sub(now).Hours() / 24
	if days < 0 {
		days = 0
	}

	return Vector{
		CounterpartyRisk:  clamp(1 - hist.CounterpartySuccessRate),
		CounterpartyDelay: clamp(hist.CounterpartyAvgDelayDays / 5),
		SecurityTypeRisk:  clamp(1 - hist.SecurityTypeSuccessRate),
		NotionalScale:     clamp(math.Log10(instr.NotionalAmount+1) / 10),
		Volatility:        clamp(market.VolatilityIndex),
		LiquidityRisk:     clamp(1 - market.LiquidityIndex),
		CreditSpread:      clamp(market.CreditSpreadIndex),
		SystemLoad:        clamp(market.SystemLoad),
		TimePressure:      clamp(1 - days/5),
		TimeToSettleDays:  days,
		DayOfWeek:         float64(instr.SettlementDate.Weekday()) / 6,
		SeasonalFactor:    clamp(hist.SeasonalFactor),
		PriorityScore:     PriorityScore(instr.Priority),
		MethodScore:       MethodScore(instr.Method),
		MarketStress:      StressScore(market.StressLevel),
	}
}

// PriorityScore maps instruction priority to an operational urgency score.
func PriorityScore(p domain.InstructionPriority) float64 {
	switch p {
	case domain.PriorityUrgent:
		return 0.9
	case domain.PriorityHigh:
		return 0.7
	case domain.PriorityNormal:
		return 0.4
	case domain.PriorityLow:
		return 0.2
	default:
		return 0.4
	}
}

// MethodScore maps settlement method to its operational risk. Free-of-payment
// legs carry the most manual handling.
func MethodScore(m domain.SettlementMethod) float64 {
	switch m {
	case domain.MethodDVP:
		return 0.2
	case domain.MethodRVP:
		return 0.3
	case domain.MethodDFP:
		return 0.5
	case domain.MethodFOP:
		return 0.7
	default:
		return 0.4
	}
}

// StressScore maps the market stress level to a numeric score.
func StressScore(s domain.MarketStressLevel) float64 {
	switch s {
	case domain.StressLow:
		return 0.1
	case domain.StressNormal:
		return 0.3
	case domain.StressElevated:
		return 0.5
	case domain.StressHigh:
		return 0.7
	case domain.StressExtreme:
		return 0.9
	default:
		return 0.3
	}
}

// Map returns the vector as named variables for pattern evaluation and CEL
// activation.
func (v Vector) Map() map[string]float64 {
	return map[string]float64{
		"counterparty_risk":   v.CounterpartyRisk,
		"counterparty_delay":  v.CounterpartyDelay,
		"security_type_risk":  v.SecurityTypeRisk,
		"notional_scale":      v.NotionalScale,
		"volatility":          v.Volatility,
		"liquidity_risk":      v.LiquidityRisk,
		"credit_spread":       v.CreditSpread,
		"system_load":         v.SystemLoad,
		"time_pressure":       v.TimePressure,
		"time_to_settle_days": v.TimeToSettleDays,
		"day_of_week":         v.DayOfWeek,
		"seasonal_factor":     v.SeasonalFactor,
		"priority_score":      v.PriorityScore,
		"method_score":        v.MethodScore,
		"market_stress":       v.MarketStress,
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package domain

import (
	"time"
)

// MarketStressLevel summarizes overall market conditions.
type MarketStressLevel string

const (
	StressLow      MarketStressLevel = "LOW"
	StressNormal   MarketStressLevel = "NORMAL"
	StressElevated MarketStressLevel = "ELEVATED"
	StressHigh     MarketStressLevel = "HIGH"
	StressExtreme  MarketStressLevel = "EXTREME"
)

// RiskTier is the failure-probability band of a prediction.
type RiskTier string

const (
	TierVeryLow  RiskTier = "VERY_LOW"
	TierLow      RiskTier = "LOW"
	TierMedium   RiskTier = "MEDIUM"
	TierHigh     RiskTier = "HIGH"
	TierVeryHigh RiskTier = "VERY_HIGH"
)

// TierForProbability maps a failure probability to its risk tier.
// Cut points are fixed; the mapping is monotonic in probability.
func TierForProbability(p float64) RiskTier {
	switch {
	case p >= 0.8:
		return TierVeryHigh
	case p >= 0.6:
		return TierHigh
	case p >= 0.4:
		return TierMedium
	case p >= 0.2:
		return TierLow
	default:
		return TierVeryLow
	}
}

// HistoricalContext carries counterparty and security history for a
// prediction. Produced fresh per prediction call.
type HistoricalContext struct {
	CounterpartySuccessRate  float64 `json:"counterpartySuccessRate"`
	CounterpartyAvgDelayDays float64 `json:"counterpartyAvgDelayDays"`
	CounterpartySampleSize   int     `json:"counterpartySampleSize"`
	RecentFailureCount       int     `json:"recentFailureCount"`
	SecurityTypeSuccessRate  float64 `json:"securityTypeSuccessRate"`
	SeasonalFactor           float64 `json:"seasonalFactor"`
}

// MarketConditions is the market snapshot used by prediction and risk
// scoring. Updated by the external market-data collaborator.
type MarketConditions struct {
	VolatilityIndex   float64           `json:"volatilityIndex"`
	LiquidityIndex    float64           `json:"liquidityIndex"`
	CreditSpreadIndex float64           `json:"creditSpreadIndex"`
	SystemLoad        float64           `json:"systemLoad"`
	StressLevel       MarketStressLevel `json:"stressLevel"`
	HolidayAdjusted   bool              `json:"holidayAdjusted"`
	AsOf              time.Time         `json:"asOf"`
}

// PredictionInput is the read-only value object assembled from an
// instruction plus historical context and market conditions.
type PredictionInput struct {
	Instruction SettlementInstruction `json:"instruction"`
	History     HistoricalContext     `json:"history"`
	Market      MarketConditions      `json:"market"`
}

// RiskFactorCategory groups risk factors for mitigation derivation.
type RiskFactorCategory string

const (
	CategoryCounterparty RiskFactorCategory = "COUNTERPARTY"
	CategoryMarket       RiskFactorCategory = "MARKET"
	CategoryOperational  RiskFactorCategory = "OPERATIONAL"
	CategorySecurity     RiskFactorCategory = "SECURITY"
)

// RiskFactor is one named contributor to a failure prediction.
type RiskFactor struct {
	Name        string             `json:"name"`
	Impact      float64            `json:"impact"`
	Weight      float64            `json:"weight"`
	Description string             `json:"description"`
	Category    RiskFactorCategory `json:"category"`
}

// MitigationSuggestion is a ranked operational action derived from a
// prediction.
type MitigationSuggestion struct {
	Action         string  `json:"action"`
	Priority       int     `json:"priority"` // 1 is most urgent
	ExpectedImpact float64 `json:"expectedImpact"`
	Description    string  `json:"description"`
}

// FailurePrediction is the output of the ensemble predictor. Immutable once
// created; later predictions for the same instruction supersede it.
type FailurePrediction struct {
	ID                 string                 `json:"id"`
	InstructionID      string                 `json:"instructionId"`
	FailureProbability float64                `json:"failureProbability"` // [0,1]
	RiskTier           RiskTier               `json:"riskTier"`
	ExpectedDelayDays  float64                `json:"expectedDelayDays"`
	Confidence         float64                `json:"confidence"` // [0.5,0.99]
	RiskFactors        []RiskFactor           `json:"riskFactors"`          // top 5 by impact
	Mitigations        []MitigationSuggestion `json:"mitigations"`          // top 5 by priority
	EarlyWarnings      []string               `json:"earlyWarnings"`
	ModelVersion       string                 `json:"modelVersion"`
	GeneratedAt        time.Time              `json:"generatedAt"`
	ValidUntil         time.Time              `json:"validUntil"`
}

// Expired reports whether the prediction's soft TTL has passed. Callers must
// recompute rather than reuse an expired prediction.
func (p *FailurePrediction) Expired(now time.Time) bool {
	return now.After(p.ValidUntil)
}

// ModelConfig identifies the active scoring model and its blend weights.
// The member coefficients are illustrative placeholders; a trained model is
// substituted by registering a new version.
type ModelConfig struct {
	Version       string    `json:"version"`
	TrainedAt     time.Time `json:"trainedAt"`
	LinearWeight  float64   `json:"linearWeight"`
	RuleWeight    float64   `json:"ruleWeight"`
	NetworkWeight float64   `json:"networkWeight"`
}

// DefaultModelConfig returns the reference blend: 0.40 linear, 0.35
// rule-based, 0.25 network-style.
func DefaultModelConfig() *ModelConfig {
	return &ModelConfig{
		Version:       "ensemble-v1",
		TrainedAt:     time.Now().UTC(),
		LinearWeight:  0.40,
		RuleWeight:    0.35,
		NetworkWeight: 0.25,
	}
}

// SettlementOutcome is the observed result reported back after settlement.
type SettlementOutcome string

const (
	OutcomeSettled SettlementOutcome = "SETTLED"
	OutcomeFailed  SettlementOutcome = "FAILED"
	OutcomeDelayed SettlementOutcome = "DELAYED"
)

package domain

import (
	"time"
)

// RiskGrade is the composite band of a risk assessment.
type RiskGrade string

const (
	GradeMinimal  RiskGrade = "MINIMAL"
	GradeLow      RiskGrade = "LOW"
	GradeModerate RiskGrade = "MODERATE"
	GradeHigh     RiskGrade = "HIGH"
	GradeSevere   RiskGrade = "SEVERE"
)

// GradeForScore maps a composite risk score to its grade. Cut points mirror
// the prediction tier mapping.
func GradeForScore(s float64) RiskGrade {
	switch {
	case s >= 0.8:
		return GradeSevere
	case s >= 0.6:
		return GradeHigh
	case s >= 0.4:
		return GradeModerate
	case s >= 0.2:
		return GradeLow
	default:
		return GradeMinimal
	}
}

// AlertLevel is the severity attached to assessments and alerts.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// CounterpartyRiskProfile carries the credit standing of a counterparty.
// Updated by the external credit-data collaborator.
type CounterpartyRiskProfile struct {
	CounterpartyID     string    `json:"counterpartyId"`
	CreditRating       string    `json:"creditRating"` // AAA..D scale
	DefaultProbability float64   `json:"defaultProbability"`
	TotalExposure      float64   `json:"totalExposure"`
	ExposureLimit      float64   `json:"exposureLimit"`
	ConcentrationRatio float64   `json:"concentrationRatio"`
	SuccessRate        float64   `json:"successRate"`
	AvgDelayDays       float64   `json:"avgDelayDays"`
	RecentFailures     int       `json:"recentFailures"`
	SampleSize         int       `json:"sampleSize"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// RiskThresholds holds the configurable weights and alert thresholds for the
// risk scoring engine.
type RiskThresholds struct {
	CreditWeight      float64 `json:"creditWeight"`
	LiquidityWeight   float64 `json:"liquidityWeight"`
	OperationalWeight float64 `json:"operationalWeight"`
	MarketWeight      float64 `json:"marketWeight"`

	// CompositeThreshold triggers a CRITICAL alert when exceeded.
	CompositeThreshold float64 `json:"compositeThreshold"`
	// SubScoreThreshold triggers a CRITICAL alert when any sub-score exceeds it.
	SubScoreThreshold float64 `json:"subScoreThreshold"`
	// WarningMargin below CompositeThreshold yields a WARNING.
	WarningMargin float64 `json:"warningMargin"`
}

// DefaultRiskThresholds returns the reference weighting.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{
		CreditWeight:       0.30,
		LiquidityWeight:    0.25,
		OperationalWeight:  0.20,
		MarketWeight:       0.25,
		CompositeThreshold: 0.75,
		SubScoreThreshold:  0.85,
		WarningMargin:      0.10,
	}
}

// RiskAssessment decomposes settlement risk for one instruction. One active
// assessment per instruction; recomputed on demand, prior assessments are
// retained for audit trend analysis.
type RiskAssessment struct {
	ID               string     `json:"id"`
	InstructionID    string     `json:"instructionId"`
	CreditScore      float64    `json:"creditScore"`
	LiquidityScore   float64    `json:"liquidityScore"`
	OperationalScore float64    `json:"operationalScore"`
	MarketScore      float64    `json:"marketScore"`
	CompositeScore   float64    `json:"compositeScore"`
	Grade            RiskGrade  `json:"grade"`
	KeyFactors       []string   `json:"keyFactors"`
	Mitigations      []string   `json:"mitigations"`
	AlertLevel       AlertLevel `json:"alertLevel"`
	AssessedAt       time.Time  `json:"assessedAt"`
	ValidUntil       time.Time  `json:"validUntil"`
}

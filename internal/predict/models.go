// Package predict implements the multi-model settlement failure predictor
// and the feedback tracker that scores it against observed outcomes.
package predict

import (
	"math"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/features"
)

// ScoringModel produces a failure score in [0,1] from a feature vector.
// The bundled implementations carry fixed illustrative coefficients standing
// in for trained models; substituting real weights only requires a new
// implementation, the blending logic is untouched.
type ScoringModel interface {
	Name() string
	Score(v features.Vector) float64
}

// LinearModel is a logistic model over the feature vector.
type LinearModel struct {
	Intercept float64
}

// NewLinearModel returns the reference logistic member.
func NewLinearModel() *LinearModel {
	return &LinearModel{Intercept: 0.0}
}

func (m *LinearModel) Name() string { return "linear" }

// Score computes sigmoid(intercept + sum(weight * feature)) with the fixed
// feature-weight table.
func (m *LinearModel) Score(v features.Vector) float64 {
	z := m.Intercept +
		0.25*v.CounterpartyRisk +
		0.20*v.CounterpartyDelay +
		0.15*v.SecurityTypeRisk +
		0.12*v.Volatility +
		0.10*v.LiquidityRisk +
		0.08*v.CreditSpread +
		0.05*v.NotionalScale +
		0.03*v.TimePressure +
		0.02*v.SystemLoad
	return sigmoid(z)
}

// RuleModel accumulates fixed increments when named thresholds are crossed,
// capped at 1.0. A decision-rule stand-in for a random-forest member.
type RuleModel struct{}

// NewRuleModel returns the reference rule-based member.
func NewRuleModel() *RuleModel { return &RuleModel{} }

func (m *RuleModel) Name() string { return "rule" }

func (m *RuleModel) Score(v features.Vector) float64 {
	var score float64

	if v.CounterpartyRisk > 0.05 { // success rate below 0.95
		score += 0.30
	}
	if v.CounterpartyDelay > 0.20 { // average delay above one day
		score += 0.20
	}
	if v.Volatility > 0.30 {
		score += 0.20
	}
	if v.LiquidityRisk > 0.30 { // liquidity index below 0.7
		score += 0.15
	}
	if v.SystemLoad > 0.80 {
		score += 0.15
	}
	if v.TimeToSettleDays < 1.0 {
		score += 0.10
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// NetworkModel is a small fixed-weight feed-forward scorer: one hyperbolic
// tangent hidden layer, sigmoid output.
type NetworkModel struct{}

// NewNetworkModel returns the reference network-style member.
func NewNetworkModel() *NetworkModel { return &NetworkModel{} }

func (m *NetworkModel) Name() string { return "network" }

func (m *NetworkModel) Score(v features.Vector) float64 {
	h1 := math.Tanh(2.0*v.CounterpartyRisk + 1.5*v.CounterpartyDelay + 1.0*v.Volatility + 1.0*v.SystemLoad - 1.0)
	h2 := math.Tanh(1.0*v.LiquidityRisk + 1.0*v.CreditSpread + 1.0*v.SecurityTypeRisk + 1.0*v.NotionalScale - 0.5)
	h3 := math.Tanh(1.0*v.TimePressure + 1.0*v.SeasonalFactor + 1.0*v.MarketStress - 0.5)

	return sigmoid(1.2*h1 + 0.8*h2 + 0.6*h3 - 0.4)
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

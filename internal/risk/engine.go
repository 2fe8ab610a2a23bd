// Package risk implements the settlement risk scoring engine: independent
// credit, liquidity, operational, and market sub-scores combined into a
// composite grade used for real-time gating decisions.
package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/features"
)

// assessmentValidity is how long an assessment can gate decisions before it
// should be recomputed.
const assessmentValidity = time.Hour

// historyCap bounds the per-instruction assessment audit trail.
const historyCap = 100

// Engine computes risk assessments. It holds the current market conditions
// and counterparty profiles; assessment itself is a pure function of its
// inputs and may run in parallel across instructions.
type Engine struct {
	mu         sync.RWMutex
	thresholds domain.RiskThresholds
	market     domain.MarketConditions
	profiles   map[string]*domain.CounterpartyRiskProfile

	histMu      sync.RWMutex
	assessments map[string][]*domain.RiskAssessment

	bus   domain.EventBus
	cache domain.Cache
	now   func() time.Time
}

// NewEngine creates a risk engine with the given thresholds. bus and cache
// may be nil.
func NewEngine(thresholds domain.RiskThresholds, bus domain.EventBus, cache domain.Cache) *Engine {
	if thresholds.CreditWeight+thresholds.LiquidityWeight+thresholds.OperationalWeight+thresholds.MarketWeight <= 0 {
		thresholds = domain.DefaultRiskThresholds()
	}
	return &Engine{
		thresholds:  thresholds,
		market:      domain.MarketConditions{LiquidityIndex: 1, StressLevel: domain.StressNormal},
		profiles:    make(map[string]*domain.CounterpartyRiskProfile),
		assessments: make(map[string][]*domain.RiskAssessment),
		bus:         bus,
		cache:       cache,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// UpdateMarketConditions replaces the current market snapshot.
func (e *Engine) UpdateMarketConditions(ctx context.Context, mc domain.MarketConditions) {
	if mc.AsOf.IsZero() {
		mc.AsOf = e.now()
	}

	e.mu.Lock()
	e.market = mc
	e.mu.Unlock()

	if e.cache != nil {
		payload, _ := json.Marshal(mc)
		if err := e.cache.Set(ctx, domain.CacheKeyMarketConditions, payload, 15*time.Minute); err != nil {
			slog.Debug("failed to cache market conditions", "error", err)
		}
	}

	slog.Info("market conditions updated",
		"volatility", mc.VolatilityIndex,
		"liquidity", mc.LiquidityIndex,
		"stress_level", mc.StressLevel,
	)
}

// MarketConditions returns the current market snapshot.
func (e *Engine) MarketConditions() domain.MarketConditions {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.market
}

// UpsertProfile stores or replaces a counterparty risk profile.
func (e *Engine) UpsertProfile(p *domain.CounterpartyRiskProfile) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = e.now()
	}
	e.mu.Lock()
	e.profiles[p.CounterpartyID] = p
	e.mu.Unlock()
}

// Profile returns the stored profile for a counterparty.
func (e *Engine) Profile(counterpartyID string) (*domain.CounterpartyRiskProfile, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.profiles[counterpartyID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return p, nil
}

// Assess scores an instruction using the stored profile and market snapshot.
// An unknown counterparty is scored with a conservative default profile.
func (e *Engine) Assess(ctx context.Context, instr *domain.SettlementInstruction) *domain.RiskAssessment {
	e.mu.RLock()
	profile, ok := e.profiles[instr.CounterpartyID]
	market := e.market
	e.mu.RUnlock()

	if !ok {
		profile = defaultProfile(instr.CounterpartyID)
	}
	return e.AssessWith(ctx, instr, profile, market)
}

// AssessWith scores an instruction against an explicit profile and market
// snapshot. The prior assessment for the instruction is superseded; all
// assessments remain queryable for audit trend analysis.
func (e *Engine) AssessWith(ctx context.Context, instr *domain.SettlementInstruction, profile *domain.CounterpartyRiskProfile, market domain.MarketConditions) *domain.RiskAssessment {
	now := e.now()

	credit := creditScore(profile)
	liquidity := liquidityScore(instr, market)
	operational := operationalScore(instr, market)
	marketRisk := marketScore(market)

	t := e.thresholds
	weightSum := t.CreditWeight + t.LiquidityWeight + t.OperationalWeight + t.MarketWeight
	composite := (credit*t.CreditWeight + liquidity*t.LiquidityWeight +
		operational*t.OperationalWeight + marketRisk*t.MarketWeight) / weightSum
	composite = clamp01(composite)

	assessment := &domain.RiskAssessment{
		ID:               uuid.New().String(),
		InstructionID:    instr.ID,
		CreditScore:      credit,
		LiquidityScore:   liquidity,
		OperationalScore: operational,
		MarketScore:      marketRisk,
		CompositeScore:   composite,
		Grade:            domain.GradeForScore(composite),
		KeyFactors:       keyFactors(credit, liquidity, operational, marketRisk),
		Mitigations:      mitigationActions(credit, liquidity, operational, marketRisk, instr),
		AlertLevel:       e.alertLevel(composite, credit, liquidity, operational, marketRisk),
		AssessedAt:       now,
		ValidUntil:       now.Add(assessmentValidity),
	}

	e.record(assessment)
	e.publish(ctx, assessment)

	return assessment
}

// creditScore is driven by counterparty default probability, rating
// multiplier, and exposure concentration.
func creditScore(p *domain.CounterpartyRiskProfile) float64 {
	utilization := 0.0
	if p.ExposureLimit > 0 {
		utilization = clamp01(p.TotalExposure / p.ExposureLimit)
	}

	return clamp01(
		0.40*ratingMultiplier(p.CreditRating) +
			0.30*clamp01(p.DefaultProbability*10) +
			0.20*utilization +
			0.10*clamp01(p.ConcentrationRatio),
	)
}

// liquidityScore is driven by the security-liquidity multiplier and notional
// size.
func liquidityScore(instr *domain.SettlementInstruction, market domain.MarketConditions) float64 {
	notionalScale := clamp01(math.Log10(instr.NotionalAmount+1) / 10)
	marketLiquidityRisk := clamp01(1 - market.LiquidityIndex)

	return clamp01(
		0.45*securityLiquidityMultiplier(instr.SecurityType) +
			0.35*notionalScale +
			0.20*marketLiquidityRisk,
	)
}

// operationalScore is driven by system load and settlement-method complexity.
func operationalScore(instr *domain.SettlementInstruction, market domain.MarketConditions) float64 {
	return clamp01(
		0.60*clamp01(market.SystemLoad) +
			0.40*features.MethodScore(instr.Method),
	)
}

// marketScore is driven by volatility, credit-spread, and stress multipliers.
func marketScore(market domain.MarketConditions) float64 {
	return clamp01(
		0.45*clamp01(market.VolatilityIndex) +
			0.30*clamp01(market.CreditSpreadIndex) +
			0.25*features.StressScore(market.StressLevel),
	)
}

func (e *Engine) alertLevel(composite float64, subs ...float64) domain.AlertLevel {
	t := e.thresholds

	if composite > t.CompositeThreshold {
		return domain.AlertCritical
	}
	for _, s := range subs {
		if s > t.SubScoreThreshold {
			return domain.AlertCritical
		}
	}
	if composite > t.CompositeThreshold-t.WarningMargin {
		return domain.AlertWarning
	}
	return domain.AlertInfo
}

func keyFactors(credit, liquidity, operational, market float64) []string {
	type scored struct {
		name  string
		score float64
	}
	all := []scored{
		{"counterparty credit standing", credit},
		{"instrument and notional liquidity", liquidity},
		{"operational processing load", operational},
		{"market conditions", market},
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })

	var out []string
	for _, s := range all {
		if s.score >= 0.5 {
			out = append(out, fmt.Sprintf("%s (%.2f)", s.name, s.score))
		}
	}
	if len(out) == 0 {
		out = append(out, fmt.Sprintf("%s (%.2f)", all[0].name, all[0].score))
	}
	return out
}

func mitigationActions(credit, liquidity, operational, market float64, instr *domain.SettlementInstruction) []string {
	var out []string
	if credit >= 0.6 {
		out = append(out, "reduce open exposure to this counterparty")
	}
	if liquidity >= 0.6 {
		out = append(out, "stage partial deliveries to limit fail size")
	}
	if operational >= 0.6 {
		out = append(out, "prioritize this instruction in the processing queue")
	}
	if market >= 0.6 {
		out = append(out, "hedge market exposure until settlement completes")
	}
	if instr.NotionalAmount > 50_000_000 {
		out = append(out, "split the notional into smaller settlement batches")
	}
	return out
}

// securityLiquidityMultiplier maps instrument type to market-depth risk.
// Structured products and derivatives are the hardest to move under stress.
func securityLiquidityMultiplier(t domain.SecurityType) float64 {
	switch t {
	case domain.SecurityGovernmentBond:
		return 0.10
	case domain.SecurityMoneyMarket:
		return 0.15
	case domain.SecurityEquity:
		return 0.20
	case domain.SecurityCorporateBond:
		return 0.40
	case domain.SecurityDerivative:
		return 0.60
	case domain.SecurityStructuredProduct:
		return 0.80
	default:
		return 0.50
	}
}

// ratingMultiplier maps an agency rating to a credit risk multiplier.
func ratingMultiplier(rating string) float64 {
	switch rating {
	case "AAA":
		return 0.05
	case "AA":
		return 0.10
	case "A":
		return 0.20
	case "BBB":
		return 0.35
	case "BB":
		return 0.55
	case "B":
		return 0.70
	case "CCC", "CC", "C":
		return 0.85
	case "D":
		return 1.00
	default:
		return 0.50 // unrated
	}
}

func defaultProfile(counterpartyID string) *domain.CounterpartyRiskProfile {
	// Unknown counterparties are treated conservatively until a profile
	// arrives from the credit-data collaborator.
	return &domain.CounterpartyRiskProfile{
		CounterpartyID:     counterpartyID,
		CreditRating:       "NR",
		DefaultProbability: 0.05,
		SuccessRate:        0.95,
		AvgDelayDays:       0.5,
	}
}

func (e *Engine) record(a *domain.RiskAssessment) {
	e.histMu.Lock()
	defer e.histMu.Unlock()

	list := append(e.assessments[a.InstructionID], a)
	if len(list) > historyCap {
		list = list[len(list)-historyCap:]
	}
	e.assessments[a.InstructionID] = list
}

func (e *Engine) publish(ctx context.Context, a *domain.RiskAssessment) {
	if e.bus == nil {
		return
	}
	payload, _ := json.Marshal(a)
	if err := e.bus.Publish(ctx, domain.TopicRiskAssessed, payload); err != nil {
		slog.Error("failed to publish risk assessment event",
			"instruction_id", a.InstructionID,
			"error", err,
		)
	}
}

// Active returns the most recent assessment for an instruction.
func (e *Engine) Active(instructionID string) (*domain.RiskAssessment, bool) {
	e.histMu.RLock()
	defer e.histMu.RUnlock()

	list := e.assessments[instructionID]
	if len(list) == 0 {
		return nil, false
	}
	return list[len(list)-1], true
}

// History returns the retained assessment trail for an instruction, oldest
// first.
func (e *Engine) History(instructionID string) []*domain.RiskAssessment {
	e.histMu.RLock()
	defer e.histMu.RUnlock()

	list := e.assessments[instructionID]
	out := make([]*domain.RiskAssessment, len(list))
	copy(out, list)
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package predict

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/features"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/patterns"
)

// Engine combines the three scoring members with pattern adjustments into a
// calibrated failure prediction. Predictions are pure functions of their
// input and snapshot state and may run fully in parallel across
// instructions; only model registration takes exclusive access.
type Engine struct {
	mu      sync.RWMutex
	model   *domain.ModelConfig
	linear  ScoringModel
	rule    ScoringModel
	network ScoringModel

	library *patterns.Library
	bus     domain.EventBus
	cache   domain.Cache

	validity   time.Duration
	historyCap int

	histMu  sync.RWMutex
	history map[string][]*domain.FailurePrediction

	now func() time.Time
}

// NewEngine creates a prediction engine. bus and cache may be nil (events and
// prediction caching are then skipped). No model is active until
// SetActiveModel is called.
func NewEngine(library *patterns.Library, bus domain.EventBus, cache domain.Cache, cfg domain.PredictionConfig) *Engine {
	validity := cfg.Validity
	if validity <= 0 {
		validity = 4 * time.Hour
	}
	historyCap := cfg.HistoryCap
	if historyCap <= 0 {
		historyCap = 50
	}

	return &Engine{
		linear:     NewLinearModel(),
		rule:       NewRuleModel(),
		network:    NewNetworkModel(),
		library:    library,
		bus:        bus,
		cache:      cache,
		validity:   validity,
		historyCap: historyCap,
		history:    make(map[string][]*domain.FailurePrediction),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetActiveModel installs the model configuration used for subsequent
// predictions.
func (e *Engine) SetActiveModel(model *domain.ModelConfig) {
	e.mu.Lock()
	e.model = model
	e.mu.Unlock()

	if model != nil {
		slog.Info("active scoring model set",
			"model_version", model.Version,
			"trained_at", model.TrainedAt,
		)
	}
}

// SetMembers replaces the ensemble members. Used to substitute trained
// models without touching the blending logic.
func (e *Engine) SetMembers(linear, rule, network ScoringModel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if linear != nil {
		e.linear = linear
	}
	if rule != nil {
		e.rule = rule
	}
	if network != nil {
		e.network = network
	}
}

// ActiveModel returns the current model configuration, or nil.
func (e *Engine) ActiveModel() *domain.ModelConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model
}

// Predict scores one prediction input. Fails with ErrNoActiveModel when no
// model is configured.
func (e *Engine) Predict(ctx context.Context, input *domain.PredictionInput) (*domain.FailurePrediction, error) {
	e.mu.RLock()
	model := e.model
	linear, rule, network := e.linear, e.rule, e.network
	e.mu.RUnlock()

	if model == nil {
		e.publishError(ctx, input.Instruction.ID, domain.ErrNoActiveModel)
		return nil, domain.ErrNoActiveModel
	}

	now := e.now()
	vec := features.Extract(input, now)

	base := model.LinearWeight*linear.Score(vec) +
		model.RuleWeight*rule.Score(vec) +
		model.NetworkWeight*network.Score(vec)

	var adjustment float64
	if e.library != nil {
		adjustment, _ = e.library.Adjustment(input, now)
	}

	probability := clamp(base+adjustment, 0, 1)

	factors := riskFactors(input, vec)
	prediction := &domain.FailurePrediction{
		ID:                 uuid.New().String(),
		InstructionID:      input.Instruction.ID,
		FailureProbability: probability,
		RiskTier:           domain.TierForProbability(probability),
		ExpectedDelayDays:  expectedDelay(probability, input),
		Confidence:         confidence(input, model, now),
		RiskFactors:        factors,
		Mitigations:        mitigations(probability, factors, input),
		EarlyWarnings:      earlyWarnings(input, vec),
		ModelVersion:       model.Version,
		GeneratedAt:        now,
		ValidUntil:         now.Add(e.validity),
	}

	e.record(prediction)
	e.cacheLatest(ctx, prediction)
	e.publish(ctx, prediction)

	slog.Debug("prediction generated",
		"instruction_id", prediction.InstructionID,
		"probability", prediction.FailureProbability,
		"tier", prediction.RiskTier,
		"model_version", prediction.ModelVersion,
	)

	return prediction, nil
}

// expectedDelay implements probability x 3 + 0.3 x counterparty average
// delay, scaled 1.5x under HIGH or EXTREME stress and +1 day when holiday
// adjusted.
func expectedDelay(probability float64, input *domain.PredictionInput) float64 {
	delay := probability*3 + 0.3*input.History.CounterpartyAvgDelayDays

	switch input.Market.StressLevel {
	case domain.StressHigh, domain.StressExtreme:
		delay *= 1.5
	}
	if input.Market.HolidayAdjusted {
		delay += 1
	}
	return delay
}

// confidence starts at 0.8 and is reduced for data-sparse counterparties
// (perfect success rate), extreme stress, and stale models; clamped to
// [0.5, 0.99].
func confidence(input *domain.PredictionInput, model *domain.ModelConfig, now time.Time) float64 {
	c := 0.8

	if input.History.CounterpartySuccessRate >= 1.0 {
		c *= 0.7
	}
	if input.Market.StressLevel == domain.StressExtreme {
		c *= 0.8
	}
	if !model.TrainedAt.IsZero() && now.Sub(model.TrainedAt) > 30*24*time.Hour {
		c *= 0.95
	}

	return clamp(c, 0.5, 0.99)
}

// riskFactors evaluates the fixed checklist against thresholds and keeps the
// top 5 by impact.
func riskFactors(input *domain.PredictionInput, vec features.Vector) []domain.RiskFactor {
	var factors []domain.RiskFactor

	if input.History.CounterpartySuccessRate < 0.90 {
		factors = append(factors, domain.RiskFactor{
			Name:        "Low Counterparty Success Rate",
			Impact:      clamp(vec.CounterpartyRisk*2, 0, 1),
			Weight:      0.25,
			Description: fmt.Sprintf("Counterparty settles successfully only %.0f%% of the time", input.History.CounterpartySuccessRate*100),
			Category:    domain.CategoryCounterparty,
		})
	}
	if input.History.CounterpartyAvgDelayDays > 1.0 {
		factors = append(factors, domain.RiskFactor{
			Name:        "Elevated Counterparty Delays",
			Impact:      vec.CounterpartyDelay,
			Weight:      0.20,
			Description: fmt.Sprintf("Counterparty averages %.1f days of settlement delay", input.History.CounterpartyAvgDelayDays),
			Category:    domain.CategoryCounterparty,
		})
	}
	if input.Market.VolatilityIndex > 0.40 {
		factors = append(factors, domain.RiskFactor{
			Name:        "High Market Volatility",
			Impact:      vec.Volatility,
			Weight:      0.12,
			Description: fmt.Sprintf("Volatility index at %.2f", input.Market.VolatilityIndex),
			Category:    domain.CategoryMarket,
		})
	}
	if input.Market.LiquidityIndex < 0.60 {
		factors = append(factors, domain.RiskFactor{
			Name:        "Poor Market Liquidity",
			Impact:      vec.LiquidityRisk,
			Weight:      0.10,
			Description: fmt.Sprintf("Liquidity index at %.2f", input.Market.LiquidityIndex),
			Category:    domain.CategoryMarket,
		})
	}
	if input.Market.SystemLoad > 0.80 {
		factors = append(factors, domain.RiskFactor{
			Name:        "High System Load",
			Impact:      vec.SystemLoad,
			Weight:      0.02,
			Description: fmt.Sprintf("Settlement system load at %.0f%%", input.Market.SystemLoad*100),
			Category:    domain.CategoryOperational,
		})
	}
	if input.History.SecurityTypeSuccessRate < 0.90 {
		factors = append(factors, domain.RiskFactor{
			Name:        "Weak Security-Type Performance",
			Impact:      vec.SecurityTypeRisk,
			Weight:      0.15,
			Description: fmt.Sprintf("%s instructions settle successfully only %.0f%% of the time", input.Instruction.SecurityType, input.History.SecurityTypeSuccessRate*100),
			Category:    domain.CategorySecurity,
		})
	}

	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].Impact > factors[j].Impact
	})
	if len(factors) > 5 {
		factors = factors[:5]
	}
	return factors
}

// mitigations derives suggestions from the probability tier, risk-factor
// categories, and notional size; ranked by priority then expected impact,
// top 5 kept.
func mitigations(probability float64, factors []domain.RiskFactor, input *domain.PredictionInput) []domain.MitigationSuggestion {
	var out []domain.MitigationSuggestion

	if probability > 0.7 {
		out = append(out,
			domain.MitigationSuggestion{
				Action:         "Proactive counterparty contact",
				Priority:       1,
				ExpectedImpact: 0.30,
				Description:    "Confirm settlement readiness with the counterparty before the value date",
			},
			domain.MitigationSuggestion{
				Action:         "Enable real-time monitoring",
				Priority:       1,
				ExpectedImpact: 0.20,
				Description:    "Track every milestone for this instruction in real time",
			},
		)
	} else if probability > 0.5 {
		out = append(out, domain.MitigationSuggestion{
			Action:         "Schedule settlement review",
			Priority:       2,
			ExpectedImpact: 0.15,
			Description:    "Add the instruction to the operations review queue",
		})
	}

	categories := make(map[domain.RiskFactorCategory]bool, len(factors))
	for _, f := range factors {
		categories[f.Category] = true
	}

	if categories[domain.CategoryCounterparty] {
		out = append(out, domain.MitigationSuggestion{
			Action:         "Require additional confirmation",
			Priority:       2,
			ExpectedImpact: 0.25,
			Description:    "Request affirmation and SSI re-validation from the counterparty",
		})
	}
	if categories[domain.CategoryMarket] {
		out = append(out, domain.MitigationSuggestion{
			Action:         "Review settlement-date flexibility",
			Priority:       3,
			ExpectedImpact: 0.15,
			Description:    "Assess whether partial settlement or date adjustment reduces market exposure",
		})
	}
	if categories[domain.CategoryOperational] {
		out = append(out, domain.MitigationSuggestion{
			Action:         "Pre-validate reference data",
			Priority:       3,
			ExpectedImpact: 0.10,
			Description:    "Verify SSI, account, and security reference data ahead of processing",
		})
	}

	if input.Instruction.NotionalAmount > 50_000_000 {
		out = append(out, domain.MitigationSuggestion{
			Action:         "Split into smaller settlement batches",
			Priority:       2,
			ExpectedImpact: 0.30,
			Description:    "Break the notional into partial deliveries to reduce fail size",
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ExpectedImpact > out[j].ExpectedImpact
	})
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

// earlyWarnings lists leading indicators worth surfacing on dashboards.
func earlyWarnings(input *domain.PredictionInput, vec features.Vector) []string {
	var warnings []string

	if input.History.RecentFailureCount > 0 {
		warnings = append(warnings, fmt.Sprintf("counterparty has %d recent settlement failures", input.History.RecentFailureCount))
	}
	if input.Market.StressLevel == domain.StressHigh || input.Market.StressLevel == domain.StressExtreme {
		warnings = append(warnings, fmt.Sprintf("market stress level is %s", input.Market.StressLevel))
	}
	if input.Market.HolidayAdjusted {
		warnings = append(warnings, "settlement window spans a market holiday")
	}
	if vec.TimeToSettleDays < 1.0 {
		warnings = append(warnings, "less than one day remains to the settlement date")
	}

	return warnings
}

// record appends to the per-instruction history, trimming to the cap.
// Histories are append-only; predictions are superseded, never mutated.
func (e *Engine) record(p *domain.FailurePrediction) {
	e.histMu.Lock()
	defer e.histMu.Unlock()

	list := append(e.history[p.InstructionID], p)
	if len(list) > e.historyCap {
		list = list[len(list)-e.historyCap:]
	}
	e.history[p.InstructionID] = list
}

func (e *Engine) cacheLatest(ctx context.Context, p *domain.FailurePrediction) {
	if e.cache == nil {
		return
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return
	}
	ttl := time.Until(p.ValidUntil)
	if ttl <= 0 {
		return
	}
	if err := e.cache.Set(ctx, domain.CacheKeyLatestPrediction+p.InstructionID, payload, ttl); err != nil {
		slog.Debug("failed to cache prediction", "instruction_id", p.InstructionID, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, p *domain.FailurePrediction) {
	if e.bus == nil {
		return
	}

	payload, _ := json.Marshal(p)
	if err := e.bus.Publish(ctx, domain.TopicPredictionGenerated, payload); err != nil {
		slog.Error("failed to publish prediction event",
			"instruction_id", p.InstructionID,
			"error", err,
		)
	}

	if p.RiskTier == domain.TierHigh || p.RiskTier == domain.TierVeryHigh {
		if err := e.bus.Publish(ctx, domain.TopicHighRiskPrediction, payload); err != nil {
			slog.Error("failed to publish high-risk event",
				"instruction_id", p.InstructionID,
				"error", err,
			)
		}
	}
}

func (e *Engine) publishError(ctx context.Context, instructionID string, cause error) {
	if e.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"instructionId": instructionID,
		"error":         cause.Error(),
	})
	_ = e.bus.Publish(ctx, domain.TopicPredictionError, payload)
}

// Latest returns the most recent prediction for an instruction, expired or
// not. Callers checking freshness use Expired.
func (e *Engine) Latest(instructionID string) (*domain.FailurePrediction, error) {
	e.histMu.RLock()
	defer e.histMu.RUnlock()

	list := e.history[instructionID]
	if len(list) == 0 {
		return nil, domain.ErrPredictionNotFound
	}
	return list[len(list)-1], nil
}

// History returns the append-only prediction history for an instruction,
// oldest first.
func (e *Engine) History(instructionID string) []*domain.FailurePrediction {
	e.histMu.RLock()
	defer e.histMu.RUnlock()

	list := e.history[instructionID]
	out := make([]*domain.FailurePrediction, len(list))
	copy(out, list)
	return out
}

// HighRisk returns the latest prediction of every instruction whose failure
// probability meets the threshold.
func (e *Engine) HighRisk(threshold float64) []*domain.FailurePrediction {
	e.histMu.RLock()
	defer e.histMu.RUnlock()

	var out []*domain.FailurePrediction
	for _, list := range e.history {
		if len(list) == 0 {
			continue
		}
		latest := list[len(list)-1]
		if latest.FailureProbability >= threshold {
			out = append(out, latest)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].FailureProbability > out[j].FailureProbability
	})
	return out
}

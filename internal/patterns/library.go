// Package patterns provides the failure-pattern registry and evaluator.
//
// A pattern is a named, weighted rule set describing a recurring real-world
// cause of settlement failure. Condition tuples are evaluated against the
// prediction input directly; expression patterns are compiled CEL programs
// over the extracted feature variables.
package patterns

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/uuid"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/features"
)

// Library is the registry of failure patterns. Patterns may be registered at
// runtime and immediately participate in subsequent predictions; they are
// never removed.
type Library struct {
	mu       sync.RWMutex
	env      *cel.Env
	patterns map[string]*entry
	order    []string // registration order, for stable listing

	// MatchThreshold is the minimum weighted match fraction for a pattern to
	// contribute to the adjustment term.
	MatchThreshold float64

	bus domain.EventBus
}

type entry struct {
	pattern *domain.FailurePattern
	program cel.Program // nil unless the pattern carries an expression
}

// NewLibrary creates an empty pattern library. bus may be nil; when set,
// registrations publish a pattern-added event.
func NewLibrary(matchThreshold float64, bus domain.EventBus) (*Library, error) {
	if matchThreshold <= 0 {
		matchThreshold = 0.5
	}

	env, err := cel.NewEnv(
		cel.Variable("counterparty_risk", cel.DoubleType),
		cel.Variable("counterparty_delay", cel.DoubleType),
		cel.Variable("security_type_risk", cel.DoubleType),
		cel.Variable("notional_scale", cel.DoubleType),
		cel.Variable("volatility", cel.DoubleType),
		cel.Variable("liquidity_risk", cel.DoubleType),
		cel.Variable("credit_spread", cel.DoubleType),
		cel.Variable("system_load", cel.DoubleType),
		cel.Variable("time_pressure", cel.DoubleType),
		cel.Variable("time_to_settle_days", cel.DoubleType),
		cel.Variable("day_of_week", cel.DoubleType),
		cel.Variable("seasonal_factor", cel.DoubleType),
		cel.Variable("priority_score", cel.DoubleType),
		cel.Variable("method_score", cel.DoubleType),
		cel.Variable("market_stress", cel.DoubleType),
		cel.Variable("notional_amount", cel.DoubleType),
		cel.Variable("recent_failures", cel.IntType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("security_type", cel.StringType),
		cel.Variable("settlement_method", cel.StringType),
		cel.Variable("counterparty_id", cel.StringType),
		cel.Variable("holiday", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Library{
		env:            env,
		patterns:       make(map[string]*entry),
		MatchThreshold: matchThreshold,
		bus:            bus,
	}, nil
}

// Register validates, compiles, and adds a pattern to the library.
func (l *Library) Register(ctx context.Context, p *domain.FailurePattern) error {
	if p == nil {
		return fmt.Errorf("pattern is required")
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	var program cel.Program
	if p.Expression != "" {
		var err error
		program, err = l.compile(p)
		if err != nil {
			return err
		}
	}

	if totalWeight(p) <= 0 && program == nil {
		// Malformed pattern: keep it registered but it evaluates to zero.
		slog.Warn("pattern has zero total condition weight and will never match",
			"pattern_id", p.ID,
			"pattern_name", p.Name,
		)
	}

	l.mu.Lock()
	if _, exists := l.patterns[p.ID]; !exists {
		l.order = append(l.order, p.ID)
	}
	l.patterns[p.ID] = &entry{pattern: p, program: program}
	l.mu.Unlock()

	if l.bus != nil {
		payload, _ := json.Marshal(p)
		if err := l.bus.Publish(ctx, domain.TopicPatternAdded, payload); err != nil {
			slog.Error("failed to publish pattern-added event",
				"pattern_id", p.ID,
				"error", err,
			)
		}
	}

	return nil
}

func (l *Library) compile(p *domain.FailurePattern) (cel.Program, error) {
	ast, issues := l.env.Compile(p.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile pattern %s: %w", p.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType {
		return nil, fmt.Errorf("pattern %s: expression must return bool or double, got %s", p.ID, outputType)
	}

	program, err := l.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for pattern %s: %w", p.ID, err)
	}
	return program, nil
}

// Evaluate returns the weighted fraction of the pattern's conditions
// satisfied by the input, in [0,1]. A compiled expression counts as one
// condition of weight 1.0. Zero total weight evaluates to zero.
func (l *Library) Evaluate(p *domain.FailurePattern, input *domain.PredictionInput, now time.Time) float64 {
	l.mu.RLock()
	ent := l.patterns[p.ID]
	l.mu.RUnlock()

	var program cel.Program
	if ent != nil {
		program = ent.program
	}
	return evaluate(p, program, input, now)
}

func evaluate(p *domain.FailurePattern, program cel.Program, input *domain.PredictionInput, now time.Time) float64 {
	total := totalWeight(p)
	var matched float64

	for _, cond := range p.Conditions {
		if cond.Weight <= 0 {
			continue
		}
		if conditionHolds(cond, input, now) {
			matched += cond.Weight
		}
	}

	if program != nil {
		total += 1.0
		matched += evalExpression(program, input, now)
	}

	if total <= 0 {
		return 0
	}
	frac := matched / total
	if frac < 0 {
		return 0
	}
	if frac > 1 {
		return 1
	}
	return frac
}

func evalExpression(program cel.Program, input *domain.PredictionInput, now time.Time) float64 {
	vec := features.Extract(input, now)
	activation := map[string]any{
		"notional_amount":   input.Instruction.NotionalAmount,
		"recent_failures":   int64(input.History.RecentFailureCount),
		"currency":          input.Instruction.Currency,
		"security_type":     string(input.Instruction.SecurityType),
		"settlement_method": string(input.Instruction.Method),
		"counterparty_id":   input.Instruction.CounterpartyID,
		"holiday":           input.Market.HolidayAdjusted,
	}
	for k, v := range vec.Map() {
		activation[k] = v
	}

	out, _, err := program.Eval(activation)
	if err != nil {
		slog.Debug("pattern expression evaluation error", "error", err)
		return 0
	}
	return toFraction(out)
}

func toFraction(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		f := float64(v)
		if f < 0 {
			return 0
		}
		if f > 1 {
			return 1
		}
		return f
	default:
		return 0.0
	}
}

// Adjustment evaluates every registered pattern against the input and sums
// frequency x avgImpact x matchFraction for each pattern whose match fraction
// exceeds the threshold. Matching patterns get their identified count
// incremented.
func (l *Library) Adjustment(input *domain.PredictionInput, now time.Time) (float64, []*domain.FailurePattern) {
	l.mu.RLock()
	entries := make([]*entry, 0, len(l.patterns))
	for _, id := range l.order {
		entries = append(entries, l.patterns[id])
	}
	l.mu.RUnlock()

	var adjustment float64
	var matchedPatterns []*domain.FailurePattern

	for _, ent := range entries {
		frac := evaluate(ent.pattern, ent.program, input, now)
		if frac <= l.MatchThreshold {
			continue
		}
		adjustment += ent.pattern.Frequency * ent.pattern.AvgImpact * frac
		matchedPatterns = append(matchedPatterns, ent.pattern)
	}

	if len(matchedPatterns) > 0 {
		l.mu.Lock()
		for _, p := range matchedPatterns {
			p.IdentifiedCount++
		}
		l.mu.Unlock()
	}

	return adjustment, matchedPatterns
}

// List returns all registered patterns in registration order.
func (l *Library) List() []*domain.FailurePattern {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*domain.FailurePattern, 0, len(l.order))
	for _, id := range l.order {
		result = append(result, l.patterns[id].pattern)
	}
	return result
}

// Count returns the number of registered patterns.
func (l *Library) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.patterns)
}

// Detect proposes new patterns from observed delay history. A cause that
// recurs at least minOccurrences times yields a candidate pattern whose
// frequency is its share of the history and whose impact reflects the
// average delay duration.
func (l *Library) Detect(history []*domain.SettlementDelay, minOccurrences int) []*domain.FailurePattern {
	if minOccurrences <= 0 {
		minOccurrences = 3
	}
	if len(history) == 0 {
		return nil
	}

	byCause := make(map[domain.DelayCause][]*domain.SettlementDelay)
	for _, d := range history {
		byCause[d.Cause] = append(byCause[d.Cause], d)
	}

	var detected []*domain.FailurePattern
	for cause, delays := range byCause {
		if len(delays) < minOccurrences {
			continue
		}

		var totalHours float64
		for _, d := range delays {
			totalHours += d.ActualHours
		}
		avgHours := totalHours / float64(len(delays))

		impact := avgHours / 72
		if impact > 1 {
			impact = 1
		}

		detected = append(detected, &domain.FailurePattern{
			ID:          strings.ToLower(fmt.Sprintf("detected-%s-%s", cause, uuid.New().String()[:8])),
			Name:        fmt.Sprintf("Recurring %s delays", strings.ToLower(string(cause))),
			Description: fmt.Sprintf("Detected from %d observed delays attributed to %s", len(delays), cause),
			Conditions:  causeConditions(cause),
			Frequency:   float64(len(delays)) / float64(len(history)),
			AvgImpact:   impact,
			CreatedAt:   time.Now().UTC(),
		})
	}

	return detected
}

// causeConditions maps a delay cause to the input conditions that signal it.
func causeConditions(cause domain.DelayCause) []domain.PatternCondition {
	switch cause {
	case domain.CauseCounterparty:
		return []domain.PatternCondition{
			{Field: "counterpartySuccessRate", Operator: domain.OpLessThan, Value: 0.95, Weight: 0.6},
			{Field: "counterpartyAvgDelayDays", Operator: domain.OpGreaterThan, Value: 0.5, Weight: 0.4},
		}
	case domain.CauseCustodian:
		return []domain.PatternCondition{
			{Field: "settlementMethod", Operator: domain.OpEquals, Value: string(domain.MethodFOP), Weight: 0.5},
			{Field: "systemLoad", Operator: domain.OpGreaterThan, Value: 0.6, Weight: 0.5},
		}
	case domain.CauseSystem:
		return []domain.PatternCondition{
			{Field: "systemLoad", Operator: domain.OpGreaterThan, Value: 0.8, Weight: 1.0},
		}
	case domain.CauseMarket:
		return []domain.PatternCondition{
			{Field: "volatilityIndex", Operator: domain.OpGreaterThan, Value: 0.4, Weight: 0.5},
			{Field: "liquidityIndex", Operator: domain.OpLessThan, Value: 0.6, Weight: 0.5},
		}
	case domain.CauseRegulatory:
		return []domain.PatternCondition{
			{Field: "securityType", Operator: domain.OpEquals, Value: string(domain.SecurityStructuredProduct), Weight: 1.0},
		}
	default:
		return []domain.PatternCondition{
			{Field: "timeToSettlementDays", Operator: domain.OpLessThan, Value: 1.0, Weight: 1.0},
		}
	}
}

func totalWeight(p *domain.FailurePattern) float64 {
	var total float64
	for _, c := range p.Conditions {
		if c.Weight > 0 {
			total += c.Weight
		}
	}
	return total
}

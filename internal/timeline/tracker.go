// Package timeline maintains the per-instruction milestone state machine:
// lifecycle checkpoints, delay classification, alerting, and SLA reporting.
package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
)

// delayLogCap bounds the global delay history used for pattern detection
// and reporting.
const delayLogCap = 5000

// state is the tracked timeline of one instruction. Each state carries its
// own mutex and version counter so scans over many instructions never
// serialize on a global lock.
type state struct {
	mu          sync.Mutex
	version     int64
	instruction *domain.SettlementInstruction
	sla         domain.SLADefinition
	milestones  []*domain.SettlementMilestone

	// openDelays maps milestone id to the unresolved delay, if any.
	openDelays map[string]*domain.SettlementDelay

	// alerted tracks the highest severity already alerted per milestone so
	// rescans never duplicate alerts.
	alerted map[string]domain.AlertLevel
}

// Tracker owns the milestone timelines, alerts, and delay history.
type Tracker struct {
	mu        sync.RWMutex
	timelines map[string]*state

	alertMu sync.RWMutex
	alerts  map[string]*domain.SettlementAlert

	delayMu  sync.RWMutex
	delayLog []*domain.SettlementDelay

	bus   domain.EventBus
	cache domain.Cache
	now   func() time.Time
}

// NewTracker creates a timeline tracker. bus and cache may be nil.
func NewTracker(bus domain.EventBus, cache domain.Cache) *Tracker {
	return &Tracker{
		timelines: make(map[string]*state),
		alerts:    make(map[string]*domain.SettlementAlert),
		bus:       bus,
		cache:     cache,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateTimeline instantiates the milestone template for an instruction with
// expected times derived from the applicable SLA definition.
func (t *Tracker) CreateTimeline(ctx context.Context, instr *domain.SettlementInstruction) ([]*domain.SettlementMilestone, error) {
	if instr == nil || instr.ID == "" {
		return nil, fmt.Errorf("instruction with id is required")
	}

	window := instr.SettlementDate.Sub(instr.TradeDate)
	if window <= 0 {
		return nil, fmt.Errorf("settlement date must be after trade date")
	}

	steps := TemplateFor(instr.SecurityType, instr.Method)
	milestones := make([]*domain.SettlementMilestone, 0, len(steps))
	for i, step := range steps {
		expected := instr.TradeDate.Add(time.Duration(step.Fraction * float64(window)))
		if step.AfterHours > 0 {
			expected = instr.SettlementDate.Add(time.Duration(step.AfterHours * float64(time.Hour)))
		}
		milestones = append(milestones, &domain.SettlementMilestone{
			ID:             uuid.New().String(),
			InstructionID:  instr.ID,
			Type:           step.Type,
			Sequence:       i,
			Status:         domain.MilestonePending,
			Required:       step.Required,
			ExpectedTime:   expected,
			Responsible:    step.Responsible,
			AlertThreshold: step.AlertThreshold,
		})
	}

	s := &state{
		instruction: instr,
		sla:         SLAFor(instr.SecurityType, instr.Method),
		milestones:  milestones,
		openDelays:  make(map[string]*domain.SettlementDelay),
		alerted:     make(map[string]domain.AlertLevel),
	}

	t.mu.Lock()
	t.timelines[instr.ID] = s
	t.mu.Unlock()

	t.publishJSON(ctx, domain.TopicInstructionCreated, instr)

	slog.Info("timeline created",
		"instruction_id", instr.ID,
		"security_type", instr.SecurityType,
		"method", instr.Method,
		"milestones", len(milestones),
	)

	return copyMilestones(milestones), nil
}

// UpdateMilestoneStatus records the transition of one milestone and
// recomputes the instruction's derived status. Transitions are one-way and
// repeating the same terminal status is a no-op: no second delay or alert is
// created.
func (t *Tracker) UpdateMilestoneStatus(ctx context.Context, instructionID string, milestoneType domain.MilestoneType, status domain.MilestoneStatus, notes string) (*domain.SettlementMilestone, error) {
	s, err := t.state(instructionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var milestone *domain.SettlementMilestone
	for _, m := range s.milestones {
		if m.Type == milestoneType {
			milestone = m
			break
		}
	}
	if milestone == nil {
		return nil, domain.ErrMilestoneNotFound
	}

	if milestone.Status == status {
		out := *milestone
		return &out, nil
	}
	if milestone.Status.Terminal() {
		return nil, fmt.Errorf("milestone %s is already %s", milestoneType, milestone.Status)
	}

	now := t.now()
	milestone.Status = status
	if notes != "" {
		milestone.Notes = notes
	}
	if status.Terminal() || status == domain.MilestoneDelayed {
		at := now
		milestone.ActualTime = &at
	}
	s.version++

	switch status {
	case domain.MilestoneDelayed, domain.MilestoneFailed:
		t.raiseDelayLocked(ctx, s, milestone, notes, now)
	case domain.MilestoneCompleted:
		t.resolveDelayLocked(ctx, s, milestone, now)
	}

	if status == domain.MilestoneFailed {
		t.raiseAlertLocked(ctx, s, milestone, domain.AlertMilestoneFailed, domain.AlertCritical,
			fmt.Sprintf("milestone %s failed for instruction %s", milestone.Type, instructionID))
	}

	prev := s.instruction.Status
	s.instruction.Status = deriveStatus(s.milestones)
	s.instruction.UpdatedAt = now

	out := *milestone
	instrSnapshot := *s.instruction
	instrStatus := instrSnapshot.Status

	t.publishJSON(ctx, domain.TopicMilestoneUpdated, &domain.MilestoneUpdateEvent{
		Milestone:   &out,
		Instruction: &instrSnapshot,
	})

	slog.Info("milestone updated",
		"instruction_id", instructionID,
		"milestone", milestoneType,
		"status", status,
		"instruction_status", instrStatus,
		"previous_status", prev,
	)

	return &out, nil
}

// deriveStatus computes the instruction-level status from its milestones:
// FAILED beats DELAYED beats SETTLED beats PROCESSING.
func deriveStatus(milestones []*domain.SettlementMilestone) domain.InstructionStatus {
	var anyDelayed, terminalDone bool
	for _, m := range milestones {
		switch m.Status {
		case domain.MilestoneFailed:
			if m.Required {
				return domain.InstructionFailed
			}
		case domain.MilestoneDelayed:
			anyDelayed = true
		case domain.MilestoneCompleted:
			if m.Type == domain.MilestoneFinalSettlement {
				terminalDone = true
			}
		}
	}
	if anyDelayed {
		return domain.InstructionDelayed
	}
	if terminalDone {
		return domain.InstructionSettled
	}
	return domain.InstructionProcessing
}

// raiseDelayLocked creates a SettlementDelay for a milestone unless one is
// already open. Caller holds s.mu.
func (t *Tracker) raiseDelayLocked(ctx context.Context, s *state, m *domain.SettlementMilestone, notes string, now time.Time) {
	if _, open := s.openDelays[m.ID]; open {
		return
	}

	overdue := now.Sub(m.ExpectedTime)
	if overdue < 0 {
		overdue = 0
	}

	delay := &domain.SettlementDelay{
		ID:             uuid.New().String(),
		InstructionID:  s.instruction.ID,
		MilestoneID:    m.ID,
		MilestoneType:  m.Type,
		Cause:          classifyCause(m, notes),
		EstimatedHours: overdue.Hours() + m.AlertThreshold.Hours(),
		ActualHours:    overdue.Hours(),
		Severity:       delaySeverity(overdue, m.AlertThreshold),
		Mitigations:    delayMitigations(m),
		RaisedAt:       now,
	}

	s.openDelays[m.ID] = delay

	t.delayMu.Lock()
	t.delayLog = append(t.delayLog, delay)
	if len(t.delayLog) > delayLogCap {
		t.delayLog = t.delayLog[len(t.delayLog)-delayLogCap:]
	}
	t.delayMu.Unlock()

	t.publishJSON(ctx, domain.TopicDelayRaised, delay)
}

// resolveDelayLocked closes an open delay when its milestone completes.
// Caller holds s.mu.
func (t *Tracker) resolveDelayLocked(_ context.Context, s *state, m *domain.SettlementMilestone, now time.Time) {
	delay, open := s.openDelays[m.ID]
	if !open {
		return
	}
	resolved := now
	delay.ResolvedAt = &resolved
	delay.ActualHours = now.Sub(m.ExpectedTime).Hours()
	if delay.ActualHours < 0 {
		delay.ActualHours = 0
	}
	delete(s.openDelays, m.ID)
}

// classifyCause infers the delay cause from the responsible party, the
// milestone type, and note keywords.
func classifyCause(m *domain.SettlementMilestone, notes string) domain.DelayCause {
	lower := strings.ToLower(notes)
	switch {
	case strings.Contains(lower, "system") || strings.Contains(lower, "outage"):
		return domain.CauseSystem
	case strings.Contains(lower, "market") || strings.Contains(lower, "liquidity"):
		return domain.CauseMarket
	}

	if m.Type == domain.MilestoneReporting {
		return domain.CauseRegulatory
	}

	switch m.Responsible {
	case domain.PartyCounterparty:
		return domain.CauseCounterparty
	case domain.PartyCustodian:
		return domain.CauseCustodian
	case domain.PartyRegulator:
		return domain.CauseRegulatory
	default:
		return domain.CauseOperational
	}
}

// delaySeverity grades a delay by how far past the milestone's alert
// threshold it runs.
func delaySeverity(overdue time.Duration, threshold time.Duration) domain.ImpactSeverity {
	if threshold <= 0 {
		threshold = time.Hour
	}
	ratio := float64(overdue) / float64(threshold)
	switch {
	case ratio >= 3:
		return domain.ImpactCritical
	case ratio >= 2:
		return domain.ImpactHigh
	case ratio >= 1:
		return domain.ImpactMedium
	default:
		return domain.ImpactLow
	}
}

func delayMitigations(m *domain.SettlementMilestone) []string {
	switch m.Responsible {
	case domain.PartyCounterparty:
		return []string{"escalate to counterparty operations desk", "request affirmation status"}
	case domain.PartyCustodian:
		return []string{"contact custodian service desk", "verify instruction receipt"}
	case domain.PartyRegulator:
		return []string{"file delay notification", "prepare exception report"}
	default:
		return []string{"escalate to internal operations", "check processing queue"}
	}
}

// raiseAlertLocked creates an alert for a milestone if no alert at this or a
// higher severity was already raised for it. Caller holds s.mu.
func (t *Tracker) raiseAlertLocked(ctx context.Context, s *state, m *domain.SettlementMilestone, alertType domain.AlertType, severity domain.AlertLevel, message string) *domain.SettlementAlert {
	if !severityExceeds(severity, s.alerted[m.ID]) {
		return nil
	}
	s.alerted[m.ID] = severity

	alert := &domain.SettlementAlert{
		ID:            uuid.New().String(),
		InstructionID: s.instruction.ID,
		MilestoneID:   m.ID,
		Type:          alertType,
		Severity:      severity,
		Message:       message,
		Status:        domain.AlertUnacknowledged,
		CreatedAt:     t.now(),
	}

	t.alertMu.Lock()
	t.alerts[alert.ID] = alert
	t.alertMu.Unlock()

	t.publishJSON(ctx, domain.TopicAlertCreated, alert)

	slog.Warn("settlement alert raised",
		"alert_id", alert.ID,
		"instruction_id", alert.InstructionID,
		"type", alertType,
		"severity", severity,
	)

	return alert
}

// riskAlertKey gates prediction-driven alerts per instruction the same way
// milestone alerts gate on the milestone id.
const riskAlertKey = "risk-score"

// RaiseRiskAlert records a prediction-driven alert against an instruction.
// Repeats at the same or a lower severity are no-ops and return nil.
func (t *Tracker) RaiseRiskAlert(ctx context.Context, instructionID string, severity domain.AlertLevel, message string) (*domain.SettlementAlert, error) {
	s, err := t.state(instructionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !severityExceeds(severity, s.alerted[riskAlertKey]) {
		return nil, nil
	}
	s.alerted[riskAlertKey] = severity

	alert := &domain.SettlementAlert{
		ID:            uuid.New().String(),
		InstructionID: instructionID,
		Type:          domain.AlertHighRiskScore,
		Severity:      severity,
		Message:       message,
		Status:        domain.AlertUnacknowledged,
		CreatedAt:     t.now(),
	}

	t.alertMu.Lock()
	t.alerts[alert.ID] = alert
	t.alertMu.Unlock()

	t.publishJSON(ctx, domain.TopicAlertCreated, alert)

	slog.Warn("settlement alert raised",
		"alert_id", alert.ID,
		"instruction_id", instructionID,
		"type", alert.Type,
		"severity", severity,
	)

	return alert, nil
}

func severityExceeds(a, b domain.AlertLevel) bool {
	return severityRank(a) > severityRank(b)
}

func severityRank(l domain.AlertLevel) int {
	switch l {
	case domain.AlertCritical:
		return 3
	case domain.AlertWarning:
		return 2
	case domain.AlertInfo:
		return 1
	default:
		return 0
	}
}

// AcknowledgeAlert moves an alert to ACKNOWLEDGED.
func (t *Tracker) AcknowledgeAlert(ctx context.Context, alertID string) (*domain.SettlementAlert, error) {
	return t.transitionAlert(ctx, alertID, domain.AlertAcknowledged, domain.TopicAlertAcknowledged)
}

// ResolveAlert moves an alert to RESOLVED.
func (t *Tracker) ResolveAlert(ctx context.Context, alertID string) (*domain.SettlementAlert, error) {
	return t.transitionAlert(ctx, alertID, domain.AlertResolved, domain.TopicAlertResolved)
}

func (t *Tracker) transitionAlert(ctx context.Context, alertID string, status domain.AlertStatus, topic string) (*domain.SettlementAlert, error) {
	t.alertMu.Lock()
	alert, ok := t.alerts[alertID]
	if !ok {
		t.alertMu.Unlock()
		return nil, domain.ErrAlertNotFound
	}

	now := t.now()
	switch status {
	case domain.AlertAcknowledged:
		if alert.Status == domain.AlertUnacknowledged {
			alert.Status = status
			alert.AcknowledgedAt = &now
		}
	case domain.AlertResolved:
		if alert.Status != domain.AlertResolved {
			alert.Status = status
			alert.ResolvedAt = &now
		}
	}
	out := *alert
	t.alertMu.Unlock()

	t.publishJSON(ctx, topic, &out)
	return &out, nil
}

// Alerts returns alerts filtered by severity; empty severity returns all.
// Resolved alerts are excluded unless includeResolved is set.
func (t *Tracker) Alerts(severity domain.AlertLevel, includeResolved bool) []*domain.SettlementAlert {
	t.alertMu.RLock()
	defer t.alertMu.RUnlock()

	var out []*domain.SettlementAlert
	for _, a := range t.alerts {
		if severity != "" && a.Severity != severity {
			continue
		}
		if !includeResolved && a.Status == domain.AlertResolved {
			continue
		}
		copied := *a
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Instruction returns the tracked instruction by id.
func (t *Tracker) Instruction(instructionID string) (*domain.SettlementInstruction, error) {
	s, err := t.state(instructionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *s.instruction
	return &out, nil
}

// Milestones returns a copy of the instruction's milestone list in order.
func (t *Tracker) Milestones(instructionID string) ([]*domain.SettlementMilestone, error) {
	s, err := t.state(instructionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMilestones(s.milestones), nil
}

// Delays returns the recorded delay history, most recent last.
func (t *Tracker) Delays() []*domain.SettlementDelay {
	t.delayMu.RLock()
	defer t.delayMu.RUnlock()

	out := make([]*domain.SettlementDelay, len(t.delayLog))
	copy(out, t.delayLog)
	return out
}

// DelaysFor returns the delay history of one instruction.
func (t *Tracker) DelaysFor(instructionID string) []*domain.SettlementDelay {
	t.delayMu.RLock()
	defer t.delayMu.RUnlock()

	var out []*domain.SettlementDelay
	for _, d := range t.delayLog {
		if d.InstructionID == instructionID {
			out = append(out, d)
		}
	}
	return out
}

func (t *Tracker) state(instructionID string) (*state, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.timelines[instructionID]
	if !ok {
		return nil, domain.ErrInstructionNotFound
	}
	return s, nil
}

func (t *Tracker) instructionIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.timelines))
	for id := range t.timelines {
		ids = append(ids, id)
	}
	return ids
}

func (t *Tracker) publishJSON(ctx context.Context, topic string, v any) {
	if t.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := t.bus.Publish(ctx, topic, payload); err != nil {
		slog.Error("failed to publish timeline event", "topic", topic, "error", err)
	}
}

func copyMilestones(in []*domain.SettlementMilestone) []*domain.SettlementMilestone {
	out := make([]*domain.SettlementMilestone, len(in))
	for i, m := range in {
		copied := *m
		out[i] = &copied
	}
	return out
}

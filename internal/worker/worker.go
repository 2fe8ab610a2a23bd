// Package worker persists domain events to the audit store off the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
)

// Persister subscribes to domain events and writes them through to the
// repository. Persistence is asynchronous so the scoring and tracking paths
// never wait on the database.
type Persister struct {
	bus  domain.EventBus
	repo domain.Repository

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewPersister creates an audit persister over the bus and repository.
func NewPersister(bus domain.EventBus, repo domain.Repository) *Persister {
	ctx, cancel := context.WithCancel(context.Background())
	return &Persister{
		bus:    bus,
		repo:   repo,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to every persisted topic.
func (p *Persister) Start() error {
	handlers := map[string]domain.MessageHandler{
		domain.TopicInstructionCreated:  p.handleInstruction,
		domain.TopicMilestoneUpdated:    p.handleMilestone,
		domain.TopicPredictionGenerated: p.handlePrediction,
		domain.TopicRiskAssessed:        p.handleAssessment,
		domain.TopicDelayRaised:         p.handleDelay,
		domain.TopicAlertCreated:        p.handleAlert,
		domain.TopicAlertAcknowledged:   p.handleAlert,
		domain.TopicAlertResolved:       p.handleAlert,
	}

	for topic, handler := range handlers {
		sub, err := p.bus.Subscribe(p.ctx, topic, handler)
		if err != nil {
			p.Stop()
			return err
		}
		p.subscriptions = append(p.subscriptions, sub)
	}

	slog.Info("audit persister started",
		"subscription_count", len(p.subscriptions),
	)

	return nil
}

func (p *Persister) handleInstruction(ctx context.Context, msg *domain.Message) error {
	var instr domain.SettlementInstruction
	if err := json.Unmarshal(msg.Payload, &instr); err != nil {
		slog.Error("failed to parse instruction event", "message_id", msg.ID, "error", err)
		return err
	}

	if err := p.repo.SaveInstruction(ctx, &instr); err != nil {
		slog.Error("failed to persist instruction",
			"instruction_id", instr.ID,
			"error", err,
		)
		return err
	}
	return nil
}

// handleMilestone refreshes the persisted instruction status after a
// milestone transition.
func (p *Persister) handleMilestone(ctx context.Context, msg *domain.Message) error {
	var event domain.MilestoneUpdateEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("failed to parse milestone event", "message_id", msg.ID, "error", err)
		return err
	}
	if event.Instruction == nil {
		return nil
	}

	if err := p.repo.SaveInstruction(ctx, event.Instruction); err != nil {
		slog.Error("failed to persist instruction status",
			"instruction_id", event.Instruction.ID,
			"error", err,
		)
		return err
	}
	return nil
}

func (p *Persister) handlePrediction(ctx context.Context, msg *domain.Message) error {
	var pred domain.FailurePrediction
	if err := json.Unmarshal(msg.Payload, &pred); err != nil {
		slog.Error("failed to parse prediction event", "message_id", msg.ID, "error", err)
		return err
	}

	if err := p.repo.SavePrediction(ctx, &pred); err != nil {
		slog.Error("failed to persist prediction",
			"prediction_id", pred.ID,
			"instruction_id", pred.InstructionID,
			"error", err,
		)
		return err
	}
	return nil
}

func (p *Persister) handleAssessment(ctx context.Context, msg *domain.Message) error {
	var a domain.RiskAssessment
	if err := json.Unmarshal(msg.Payload, &a); err != nil {
		slog.Error("failed to parse assessment event", "message_id", msg.ID, "error", err)
		return err
	}

	if err := p.repo.SaveAssessment(ctx, &a); err != nil {
		slog.Error("failed to persist assessment",
			"assessment_id", a.ID,
			"instruction_id", a.InstructionID,
			"error", err,
		)
		return err
	}
	return nil
}

func (p *Persister) handleDelay(ctx context.Context, msg *domain.Message) error {
	var d domain.SettlementDelay
	if err := json.Unmarshal(msg.Payload, &d); err != nil {
		slog.Error("failed to parse delay event", "message_id", msg.ID, "error", err)
		return err
	}

	if err := p.repo.SaveDelay(ctx, &d); err != nil {
		slog.Error("failed to persist delay",
			"delay_id", d.ID,
			"instruction_id", d.InstructionID,
			"error", err,
		)
		return err
	}
	return nil
}

func (p *Persister) handleAlert(ctx context.Context, msg *domain.Message) error {
	var a domain.SettlementAlert
	if err := json.Unmarshal(msg.Payload, &a); err != nil {
		slog.Error("failed to parse alert event", "message_id", msg.ID, "error", err)
		return err
	}

	if err := p.repo.SaveAlert(ctx, &a); err != nil {
		slog.Error("failed to persist alert",
			"alert_id", a.ID,
			"instruction_id", a.InstructionID,
			"error", err,
		)
		return err
	}
	return nil
}

// Stop gracefully stops the persister.
func (p *Persister) Stop() error {
	p.cancel()

	for _, sub := range p.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	p.subscriptions = nil

	slog.Info("audit persister stopped")
	return nil
}

// Stats returns persister statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current persister statistics.
func (p *Persister) GetStats() Stats {
	topics := make([]string, len(p.subscriptions))
	for i, sub := range p.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(p.subscriptions),
		Topics:            topics,
	}
}

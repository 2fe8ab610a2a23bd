package predict

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
)

// failureVerdictThreshold converts a probability into a binary predicted
// failure for feedback scoring.
const failureVerdictThreshold = 0.5

// Tracker records actual settlement outcomes against past predictions and
// maintains rolling accuracy metrics per model version.
type Tracker struct {
	mu      sync.RWMutex
	metrics map[string]*domain.ModelPerformanceMetrics

	engine *Engine
	bus    domain.EventBus
}

// NewTracker creates a feedback tracker bound to the prediction engine.
func NewTracker(engine *Engine, bus domain.EventBus) *Tracker {
	return &Tracker{
		metrics: make(map[string]*domain.ModelPerformanceMetrics),
		engine:  engine,
		bus:     bus,
	}
}

// Feedback is the event payload emitted for downstream model retraining.
type Feedback struct {
	InstructionID        string                   `json:"instructionId"`
	ModelVersion         string                   `json:"modelVersion"`
	PredictedProbability float64                  `json:"predictedProbability"`
	PredictedFailure     bool                     `json:"predictedFailure"`
	ActualOutcome        domain.SettlementOutcome `json:"actualOutcome"`
	ActualDelayDays      float64                  `json:"actualDelayDays"`
	Correct              bool                     `json:"correct"`
	RecordedAt           time.Time                `json:"recordedAt"`
}

// RecordOutcome looks up the most recent prediction for the instruction,
// compares predicted-vs-actual failure, and updates the model version's
// running metrics. Fails with ErrPredictionNotFound when the instruction was
// never scored.
func (t *Tracker) RecordOutcome(ctx context.Context, instructionID string, outcome domain.SettlementOutcome, actualDelayDays float64) (*domain.ModelPerformanceMetrics, error) {
	prediction, err := t.engine.Latest(instructionID)
	if err != nil {
		return nil, err
	}

	predictedFailure := prediction.FailureProbability > failureVerdictThreshold
	actualFailure := outcome == domain.OutcomeFailed
	correct := predictedFailure == actualFailure

	t.mu.Lock()
	m, ok := t.metrics[prediction.ModelVersion]
	if !ok {
		m = &domain.ModelPerformanceMetrics{ModelVersion: prediction.ModelVersion}
		t.metrics[prediction.ModelVersion] = m
	}

	m.Predictions++
	if correct {
		m.Correct++
	}
	switch {
	case predictedFailure && actualFailure:
		m.TruePositives++
	case predictedFailure && !actualFailure:
		m.FalsePositives++
	case !predictedFailure && actualFailure:
		m.FalseNegatives++
	default:
		m.TrueNegatives++
	}
	m.UpdatedAt = time.Now().UTC()
	snapshot := *m
	t.mu.Unlock()

	t.publish(ctx, &Feedback{
		InstructionID:        instructionID,
		ModelVersion:         prediction.ModelVersion,
		PredictedProbability: prediction.FailureProbability,
		PredictedFailure:     predictedFailure,
		ActualOutcome:        outcome,
		ActualDelayDays:      actualDelayDays,
		Correct:              correct,
		RecordedAt:           snapshot.UpdatedAt,
	})

	slog.Info("outcome recorded",
		"instruction_id", instructionID,
		"model_version", prediction.ModelVersion,
		"predicted_failure", predictedFailure,
		"actual_outcome", outcome,
		"accuracy", snapshot.Accuracy(),
	)

	return &snapshot, nil
}

func (t *Tracker) publish(ctx context.Context, fb *Feedback) {
	if t.bus == nil {
		return
	}
	payload, _ := json.Marshal(fb)
	if err := t.bus.Publish(ctx, domain.TopicPredictionFeedback, payload); err != nil {
		slog.Error("failed to publish feedback event",
			"instruction_id", fb.InstructionID,
			"error", err,
		)
	}
}

// Metrics returns a snapshot of the metrics for a model version.
func (t *Tracker) Metrics(modelVersion string) (*domain.ModelPerformanceMetrics, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m, ok := t.metrics[modelVersion]
	if !ok {
		return nil, false
	}
	snapshot := *m
	return &snapshot, true
}

// AllMetrics returns snapshots for every tracked model version.
func (t *Tracker) AllMetrics() []*domain.ModelPerformanceMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*domain.ModelPerformanceMetrics, 0, len(t.metrics))
	for _, m := range t.metrics {
		snapshot := *m
		out = append(out, &snapshot)
	}
	return out
}

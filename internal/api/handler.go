package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/history"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/patterns"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/predict"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/risk"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/timeline"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	tracker   *timeline.Tracker
	predictor *predict.Engine
	feedback  *predict.Tracker
	risk      *risk.Engine
	library   *patterns.Library
	history   *history.Store
	repo      domain.Repository
	cache     domain.Cache
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(tracker *timeline.Tracker, predictor *predict.Engine, feedback *predict.Tracker, riskEngine *risk.Engine, library *patterns.Library, store *history.Store, repo domain.Repository, cache domain.Cache, version string) *Handler {
	return &Handler{
		tracker:   tracker,
		predictor: predictor,
		feedback:  feedback,
		risk:      riskEngine,
		library:   library,
		history:   store,
		repo:      repo,
		cache:     cache,
		version:   version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// CreateInstruction handles POST /instructions. It registers the instruction
// and builds its milestone timeline in one step.
func (h *Handler) CreateInstruction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.InstructionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.TradeID == "" || req.CounterpartyID == "" || req.SecurityID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "tradeId, counterpartyId, and securityId are required",
		})
		return
	}
	if req.NotionalAmount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "notionalAmount must be positive",
		})
		return
	}
	if req.TradeDate.IsZero() || req.SettlementDate.IsZero() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "tradeDate and settlementDate are required",
		})
		return
	}

	instr := req.ToInstruction(uuid.New().String())
	milestones, err := h.tracker.CreateTimeline(ctx, instr)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	slog.Info("instruction created",
		"instruction_id", instr.ID,
		"counterparty_id", instr.CounterpartyID,
		"security_type", instr.SecurityType,
	)
	writeJSON(w, http.StatusCreated, map[string]any{
		"instruction": instr,
		"milestones":  milestones,
	})
}

// GetInstruction retrieves a tracked instruction by ID.
func (h *Handler) GetInstruction(w http.ResponseWriter, r *http.Request) {
	instr, err := h.tracker.Instruction(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, err)
		return
	}
	writeJSON(w, http.StatusOK, instr)
}

// GetMilestones returns the milestone timeline for an instruction.
func (h *Handler) GetMilestones(w http.ResponseWriter, r *http.Request) {
	milestones, err := h.tracker.Milestones(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"milestones": milestones,
		"count":      len(milestones),
	})
}

// MilestoneUpdateRequest is the request body for milestone status updates.
type MilestoneUpdateRequest struct {
	Status domain.MilestoneStatus `json:"status"`
	Notes  string                 `json:"notes,omitempty"`
}

// UpdateMilestone handles PUT /instructions/{id}/milestones/{type}.
func (h *Handler) UpdateMilestone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instructionID := chi.URLParam(r, "id")
	milestoneType := domain.MilestoneType(chi.URLParam(r, "type"))

	var req MilestoneUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "status is required",
		})
		return
	}

	milestone, err := h.tracker.UpdateMilestoneStatus(ctx, instructionID, milestoneType, req.Status, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInstructionNotFound), errors.Is(err, domain.ErrMilestoneNotFound):
			writeNotFound(w, err)
		default:
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": err.Error(),
			})
		}
		return
	}

	instr, _ := h.tracker.Instruction(instructionID)
	writeJSON(w, http.StatusOK, map[string]any{
		"milestone":   milestone,
		"instruction": instr,
	})
}

// Predict handles POST /instructions/{id}/predict. The prediction input is
// assembled from the tracked instruction, the counterparty's rolling history,
// and the current market snapshot.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instructionID := chi.URLParam(r, "id")

	instr, err := h.tracker.Instruction(instructionID)
	if err != nil {
		writeNotFound(w, err)
		return
	}

	input := &domain.PredictionInput{
		Instruction: *instr,
		History:     h.history.ContextFor(instr.CounterpartyID, instr.SecurityType, instr.SettlementDate),
		Market:      h.risk.MarketConditions(),
	}

	prediction, err := h.predictor.Predict(ctx, input)
	if err != nil {
		slog.Error("prediction failed", "instruction_id", instructionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "prediction failed: " + err.Error(),
		})
		return
	}

	if prediction.RiskTier == domain.TierHigh || prediction.RiskTier == domain.TierVeryHigh {
		severity := domain.AlertWarning
		if prediction.RiskTier == domain.TierVeryHigh {
			severity = domain.AlertCritical
		}
		msg := fmt.Sprintf("failure probability %.2f (%s) for instruction %s",
			prediction.FailureProbability, prediction.RiskTier, instructionID)
		if _, err := h.tracker.RaiseRiskAlert(ctx, instructionID, severity, msg); err != nil {
			slog.Error("failed to raise risk alert", "instruction_id", instructionID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, prediction)
}

// GetLatestPrediction returns the most recent unexpired prediction.
func (h *Handler) GetLatestPrediction(w http.ResponseWriter, r *http.Request) {
	prediction, err := h.predictor.Latest(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prediction)
}

// GetPredictionHistory returns every retained prediction for an instruction,
// newest first.
func (h *Handler) GetPredictionHistory(w http.ResponseWriter, r *http.Request) {
	predictions := h.predictor.History(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]any{
		"predictions": predictions,
		"count":       len(predictions),
	})
}

// HighRiskPredictions returns current predictions at or above a probability
// threshold. Defaults to the HIGH tier cut.
func (h *Handler) HighRiskPredictions(w http.ResponseWriter, r *http.Request) {
	threshold := 0.6
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "threshold must be a number in [0,1]",
			})
			return
		}
		threshold = v
	}

	predictions := h.predictor.HighRisk(threshold)
	writeJSON(w, http.StatusOK, map[string]any{
		"threshold":   threshold,
		"predictions": predictions,
		"count":       len(predictions),
	})
}

// OutcomeRequest is the request body for settlement outcome feedback.
type OutcomeRequest struct {
	Outcome         domain.SettlementOutcome `json:"outcome"`
	ActualDelayDays float64                  `json:"actualDelayDays"`
}

// RecordOutcome handles POST /instructions/{id}/outcome. The observed result
// feeds both the model performance tracker and the counterparty history.
func (h *Handler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instructionID := chi.URLParam(r, "id")

	var req OutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	switch req.Outcome {
	case domain.OutcomeSettled, domain.OutcomeFailed, domain.OutcomeDelayed:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "outcome must be SETTLED, FAILED, or DELAYED",
		})
		return
	}

	instr, err := h.tracker.Instruction(instructionID)
	if err != nil {
		writeNotFound(w, err)
		return
	}

	h.history.RecordOutcome(instr.CounterpartyID, instr.SecurityType, req.Outcome, req.ActualDelayDays)

	metrics, err := h.feedback.RecordOutcome(ctx, instructionID, req.Outcome, req.ActualDelayDays)
	if err != nil {
		if errors.Is(err, domain.ErrPredictionNotFound) {
			// No prediction to score against; the history contribution above
			// still counts.
			writeJSON(w, http.StatusOK, map[string]any{
				"recorded": true,
				"scored":   false,
			})
			return
		}
		slog.Error("outcome feedback failed", "instruction_id", instructionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to record outcome",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"recorded": true,
		"scored":   true,
		"metrics":  metrics,
	})
}

// Assess handles POST /instructions/{id}/assess.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	instr, err := h.tracker.Instruction(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.risk.Assess(r.Context(), instr))
}

// GetAssessment returns the active risk assessment for an instruction.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	assessment, ok := h.risk.Active(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no assessment for instruction",
		})
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

// GetAssessmentHistory returns retained assessments, newest first.
func (h *Handler) GetAssessmentHistory(w http.ResponseWriter, r *http.Request) {
	assessments := h.risk.History(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]any{
		"assessments": assessments,
		"count":       len(assessments),
	})
}

// GetDelays returns delays for a single instruction.
func (h *Handler) GetDelays(w http.ResponseWriter, r *http.Request) {
	delays := h.tracker.DelaysFor(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]any{
		"delays": delays,
		"count":  len(delays),
	})
}

// UpdateMarketConditions handles PUT /market-conditions.
func (h *Handler) UpdateMarketConditions(w http.ResponseWriter, r *http.Request) {
	var mc domain.MarketConditions
	if err := json.NewDecoder(r.Body).Decode(&mc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if mc.AsOf.IsZero() {
		mc.AsOf = time.Now().UTC()
	}

	h.risk.UpdateMarketConditions(r.Context(), mc)
	writeJSON(w, http.StatusOK, h.risk.MarketConditions())
}

// GetMarketConditions returns the current market snapshot.
func (h *Handler) GetMarketConditions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.risk.MarketConditions())
}

// UpsertProfile handles PUT /counterparties/{id}/profile.
func (h *Handler) UpsertProfile(w http.ResponseWriter, r *http.Request) {
	counterpartyID := chi.URLParam(r, "id")

	var profile domain.CounterpartyRiskProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	profile.CounterpartyID = counterpartyID
	if profile.CreditRating == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "creditRating is required",
		})
		return
	}

	h.risk.UpsertProfile(&profile)
	writeJSON(w, http.StatusOK, &profile)
}

// GetProfile returns a counterparty risk profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.risk.Profile(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// ListPatterns returns every registered failure pattern.
func (h *Handler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	list := h.library.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"patterns": list,
		"count":    len(list),
	})
}

// CreatePatternRequest is the request body for registering a pattern.
type CreatePatternRequest struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description,omitempty"`
	Conditions  []domain.PatternCondition `json:"conditions,omitempty"`
	Expression  string                    `json:"expression,omitempty"`
	Frequency   float64                   `json:"frequency"`
	AvgImpact   float64                   `json:"avgImpact"`
}

// CreatePattern registers a new failure pattern. Expression patterns are
// compiled on registration; a compile failure rejects the pattern.
func (h *Handler) CreatePattern(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreatePatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name is required",
		})
		return
	}
	if len(req.Conditions) == 0 && req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one condition or an expression is required",
		})
		return
	}

	pattern := &domain.FailurePattern{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Conditions:  req.Conditions,
		Expression:  req.Expression,
		Frequency:   req.Frequency,
		AvgImpact:   req.AvgImpact,
		CreatedAt:   time.Now().UTC(),
	}

	if err := h.library.Register(ctx, pattern); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid pattern: " + err.Error(),
		})
		return
	}

	slog.Info("pattern registered", "id", pattern.ID, "name", pattern.Name)
	writeJSON(w, http.StatusCreated, pattern)
}

// DetectPatterns mines the accumulated delay log for recurring cause
// clusters and returns candidate patterns. Candidates are not registered;
// an operator adopts one by submitting it through CreatePattern.
func (h *Handler) DetectPatterns(w http.ResponseWriter, r *http.Request) {
	minOccurrences := 3
	if raw := r.URL.Query().Get("minOccurrences"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "minOccurrences must be a positive integer",
			})
			return
		}
		minOccurrences = v
	}

	detected := h.library.Detect(h.tracker.Delays(), minOccurrences)
	writeJSON(w, http.StatusOK, map[string]any{
		"detected": detected,
		"count":    len(detected),
	})
}

// ListAlerts handles GET /alerts with optional severity and includeResolved
// filters.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	severity := domain.AlertLevel(r.URL.Query().Get("severity"))
	includeResolved := r.URL.Query().Get("includeResolved") == "true"

	alerts := h.tracker.Alerts(severity, includeResolved)
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// AcknowledgeAlert handles POST /alerts/{id}/acknowledge.
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.tracker.AcknowledgeAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrAlertNotFound) {
			writeNotFound(w, err)
			return
		}
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// ResolveAlert handles POST /alerts/{id}/resolve.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.tracker.ResolveAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrAlertNotFound) {
			writeNotFound(w, err)
			return
		}
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// PerformanceReport handles GET /reports/performance. The window may be
// given explicitly via start/end (RFC 3339) or as a named period.
func (h *Handler) PerformanceReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period := q.Get("period")
	if period == "" {
		period = "WEEKLY"
	}

	now := time.Now().UTC()
	var start, end time.Time
	if rawStart, rawEnd := q.Get("start"), q.Get("end"); rawStart != "" || rawEnd != "" {
		var err error
		start, err = time.Parse(time.RFC3339, rawStart)
		if err == nil {
			end, err = time.Parse(time.RFC3339, rawEnd)
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "start and end must both be RFC 3339 timestamps",
			})
			return
		}
	} else {
		end = now
		switch period {
		case "DAILY":
			start = end.AddDate(0, 0, -1)
		case "WEEKLY":
			start = end.AddDate(0, 0, -7)
		case "MONTHLY":
			start = end.AddDate(0, -1, 0)
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "period must be DAILY, WEEKLY, or MONTHLY",
			})
			return
		}
	}
	if !end.After(start) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "end must be after start",
		})
		return
	}

	writeJSON(w, http.StatusOK, h.tracker.GeneratePerformanceReport(period, start, end))
}

// ModelMetrics returns performance metrics for every model version that has
// received outcome feedback.
func (h *Handler) ModelMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := h.feedback.AllMetrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics": metrics,
		"count":   len(metrics),
	})
}

// ActiveModel returns the configured scoring model.
func (h *Handler) ActiveModel(w http.ResponseWriter, r *http.Request) {
	model := h.predictor.ActiveModel()
	if model == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no active scoring model",
		})
		return
	}
	writeJSON(w, http.StatusOK, model)
}

func writeNotFound(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

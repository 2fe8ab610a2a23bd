package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/history"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/patterns"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/predict"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/risk"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/timeline"
)

// createTestServer wires the engines with no bus, cache, or repository.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	library, err := patterns.NewLibrary(0.5, nil)
	if err != nil {
		t.Fatalf("failed to create pattern library: %v", err)
	}

	predictor := predict.NewEngine(library, nil, nil, domain.PredictionConfig{})
	predictor.SetActiveModel(domain.DefaultModelConfig())

	feedback := predict.NewTracker(predictor, nil)
	riskEngine := risk.NewEngine(domain.DefaultRiskThresholds(), nil, nil)
	tracker := timeline.NewTracker(nil, nil)
	store := history.NewStore()

	return NewServer(cfg, tracker, predictor, feedback, riskEngine, library, store, nil, nil, "test-v1")
}

func instructionBody(tradeID string) []byte {
	now := time.Now().UTC()
	req := domain.InstructionRequest{
		TradeID:        tradeID,
		CounterpartyID: "cp-001",
		SecurityID:     "sec-001",
		SecurityType:   domain.SecurityEquity,
		NotionalAmount: 1_000_000,
		Currency:       "USD",
		TradeDate:      now,
		SettlementDate: now.Add(48 * time.Hour),
		Method:         domain.MethodDVP,
	}
	body, _ := json.Marshal(req)
	return body
}

// createInstruction posts an instruction and returns its assigned ID.
func createInstruction(t *testing.T, server *Server, tradeID string) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/instructions", bytes.NewBuffer(instructionBody(tradeID)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Instruction domain.SettlementInstruction  `json:"instruction"`
		Milestones  []*domain.SettlementMilestone `json:"milestones"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Instruction.ID == "" {
		t.Fatal("expected instruction id in response")
	}
	return resp.Instruction.ID
}

func TestInstructionEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("CreateAndGet", func(t *testing.T) {
		id := createInstruction(t, server, "trade-001")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/instructions/"+id, nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var instr domain.SettlementInstruction
		if err := json.Unmarshal(rr.Body.Bytes(), &instr); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if instr.Status != domain.InstructionPending {
			t.Errorf("expected status PENDING, got %s", instr.Status)
		}
	})

	t.Run("MilestoneTimelineBuilt", func(t *testing.T) {
		id := createInstruction(t, server, "trade-002")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/instructions/"+id+"/milestones", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp struct {
			Milestones []*domain.SettlementMilestone `json:"milestones"`
			Count      int                           `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		// Equity DVP uses the full ten-step template.
		if resp.Count != 10 {
			t.Errorf("expected 10 milestones, got %d", resp.Count)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/instructions", bytes.NewBufferString("not-json"))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingRequiredFields", func(t *testing.T) {
		body, _ := json.Marshal(domain.InstructionRequest{TradeID: "trade-003"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/instructions", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("SettlementBeforeTradeDate", func(t *testing.T) {
		now := time.Now().UTC()
		body, _ := json.Marshal(domain.InstructionRequest{
			TradeID:        "trade-004",
			CounterpartyID: "cp-001",
			SecurityID:     "sec-001",
			SecurityType:   domain.SecurityEquity,
			NotionalAmount: 1000,
			Currency:       "USD",
			TradeDate:      now,
			SettlementDate: now.Add(-24 * time.Hour),
			Method:         domain.MethodDVP,
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/instructions", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/instructions/no-such-id", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestMilestoneUpdateEndpoint(t *testing.T) {
	server := createTestServer(t)
	id := createInstruction(t, server, "trade-010")

	updateMilestone := func(t *testing.T, milestoneType string, status domain.MilestoneStatus) *httptest.ResponseRecorder {
		t.Helper()
		body, _ := json.Marshal(MilestoneUpdateRequest{Status: status})
		url := fmt.Sprintf("/api/v1/instructions/%s/milestones/%s", id, milestoneType)
		req := httptest.NewRequest(http.MethodPut, url, bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		return rr
	}

	t.Run("CompleteMilestone", func(t *testing.T) {
		rr := updateMilestone(t, string(domain.MilestoneTradeCapture), domain.MilestoneCompleted)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Milestone   *domain.SettlementMilestone   `json:"milestone"`
			Instruction *domain.SettlementInstruction `json:"instruction"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Milestone.Status != domain.MilestoneCompleted {
			t.Errorf("expected milestone COMPLETED, got %s", resp.Milestone.Status)
		}
		if resp.Milestone.ActualTime == nil {
			t.Error("expected actualTime to be set")
		}
		if resp.Instruction.Status != domain.InstructionProcessing {
			t.Errorf("expected instruction PROCESSING, got %s", resp.Instruction.Status)
		}
	})

	t.Run("TerminalTransitionRejected", func(t *testing.T) {
		rr := updateMilestone(t, string(domain.MilestoneTradeCapture), domain.MilestoneFailed)
		if rr.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("MissingStatus", func(t *testing.T) {
		rr := updateMilestone(t, string(domain.MilestoneTradeConfirmation), "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownMilestoneType", func(t *testing.T) {
		rr := updateMilestone(t, "NO_SUCH_MILESTONE", domain.MilestoneCompleted)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("UnknownInstruction", func(t *testing.T) {
		body, _ := json.Marshal(MilestoneUpdateRequest{Status: domain.MilestoneCompleted})
		url := "/api/v1/instructions/no-such-id/milestones/TRADE_CAPTURE"
		req := httptest.NewRequest(http.MethodPut, url, bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestPredictionEndpoints(t *testing.T) {
	server := createTestServer(t)
	id := createInstruction(t, server, "trade-020")

	t.Run("Predict", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/instructions/"+id+"/predict", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var p domain.FailurePrediction
		if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if p.FailureProbability < 0 || p.FailureProbability > 1 {
			t.Errorf("probability out of range: %f", p.FailureProbability)
		}
		if p.RiskTier == "" {
			t.Error("expected a risk tier")
		}
		if p.ModelVersion != "ensemble-v1" {
			t.Errorf("expected model version ensemble-v1, got %s", p.ModelVersion)
		}
	})

	t.Run("Latest", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/instructions/"+id+"/prediction", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("LatestUnknownInstruction", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/instructions/no-such-id/prediction", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("HighRiskThresholdValidation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/predictions/high-risk?threshold=2.5", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("RecordOutcome", func(t *testing.T) {
		body, _ := json.Marshal(OutcomeRequest{Outcome: domain.OutcomeSettled})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/instructions/"+id+"/outcome", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Recorded bool                            `json:"recorded"`
			Scored   bool                            `json:"scored"`
			Metrics  *domain.ModelPerformanceMetrics `json:"metrics"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if !resp.Recorded || !resp.Scored {
			t.Errorf("expected recorded and scored, got %+v", resp)
		}
		if resp.Metrics == nil || resp.Metrics.Predictions != 1 {
			t.Errorf("expected one scored prediction, got %+v", resp.Metrics)
		}
	})

	t.Run("InvalidOutcome", func(t *testing.T) {
		body, _ := json.Marshal(map[string]string{"outcome": "MAYBE"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/instructions/"+id+"/outcome", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ModelMetrics", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/models/metrics", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected metrics for one model version, got %d", resp.Count)
		}
	})

	t.Run("ActiveModel", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/models/active", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestRiskEndpoints(t *testing.T) {
	server := createTestServer(t)
	id := createInstruction(t, server, "trade-030")

	t.Run("UpdateMarketConditions", func(t *testing.T) {
		body, _ := json.Marshal(domain.MarketConditions{
			VolatilityIndex:   0.4,
			LiquidityIndex:    0.7,
			CreditSpreadIndex: 0.3,
			SystemLoad:        0.5,
			StressLevel:       domain.StressElevated,
		})
		req := httptest.NewRequest(http.MethodPut, "/api/v1/market-conditions", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var mc domain.MarketConditions
		if err := json.Unmarshal(rr.Body.Bytes(), &mc); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if mc.VolatilityIndex != 0.4 {
			t.Errorf("expected volatility 0.4, got %f", mc.VolatilityIndex)
		}
		if mc.AsOf.IsZero() {
			t.Error("expected asOf to be stamped")
		}
	})

	t.Run("Assess", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/instructions/"+id+"/assess", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var a domain.RiskAssessment
		if err := json.Unmarshal(rr.Body.Bytes(), &a); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if a.CompositeScore < 0 || a.CompositeScore > 1 {
			t.Errorf("composite score out of range: %f", a.CompositeScore)
		}
		if a.Grade == "" {
			t.Error("expected a risk grade")
		}
	})

	t.Run("GetAssessment", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/instructions/"+id+"/assessment", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("AssessmentNotFound", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/instructions/no-such-id/assessment", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("UpsertAndGetProfile", func(t *testing.T) {
		body, _ := json.Marshal(domain.CounterpartyRiskProfile{
			CreditRating:       "AA",
			DefaultProbability: 0.01,
			TotalExposure:      5_000_000,
			ExposureLimit:      50_000_000,
			SuccessRate:        0.98,
		})
		req := httptest.NewRequest(http.MethodPut, "/api/v1/counterparties/cp-001/profile", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		req = httptest.NewRequest(http.MethodGet, "/api/v1/counterparties/cp-001/profile", nil)
		rr = httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var profile domain.CounterpartyRiskProfile
		if err := json.Unmarshal(rr.Body.Bytes(), &profile); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if profile.CounterpartyID != "cp-001" {
			t.Errorf("expected counterpartyId cp-001, got %s", profile.CounterpartyID)
		}
	})
}

func TestPatternEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("CreateConditionPattern", func(t *testing.T) {
		body, _ := json.Marshal(CreatePatternRequest{
			Name: "weak counterparty",
			Conditions: []domain.PatternCondition{
				{Field: "counterpartySuccessRate", Operator: domain.OpLessThan, Value: 0.85, Weight: 1.0},
			},
			Frequency: 0.1,
			AvgImpact: 0.3,
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/patterns", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("CreateExpressionPattern", func(t *testing.T) {
		body, _ := json.Marshal(CreatePatternRequest{
			Name:       "stressed market squeeze",
			Expression: "volatility > 0.6 && liquidity_risk > 0.5",
			Frequency:  0.05,
			AvgImpact:  0.4,
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/patterns", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("InvalidExpressionRejected", func(t *testing.T) {
		body, _ := json.Marshal(CreatePatternRequest{
			Name:       "broken",
			Expression: "volatility >>>",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/patterns", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("EmptyPatternRejected", func(t *testing.T) {
		body, _ := json.Marshal(CreatePatternRequest{Name: "empty"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/patterns", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("List", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/patterns", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 2 {
			t.Errorf("expected 2 patterns, got %d", resp.Count)
		}
	})

	t.Run("DetectWithNoDelays", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/patterns/detect", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 0 {
			t.Errorf("expected no detections, got %d", resp.Count)
		}
	})
}

func TestAlertAndReportEndpoints(t *testing.T) {
	server := createTestServer(t)
	id := createInstruction(t, server, "trade-040")

	// Failing a required milestone raises a CRITICAL alert.
	body, _ := json.Marshal(MilestoneUpdateRequest{Status: domain.MilestoneFailed, Notes: "system outage at custodian"})
	url := fmt.Sprintf("/api/v1/instructions/%s/milestones/%s", id, domain.MilestoneTradeCapture)
	req := httptest.NewRequest(http.MethodPut, url, bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("milestone update failed: %d %s", rr.Code, rr.Body.String())
	}

	var alertID string
	t.Run("ListAlerts", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?severity=CRITICAL", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp struct {
			Alerts []*domain.SettlementAlert `json:"alerts"`
			Count  int                       `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 1 {
			t.Fatalf("expected 1 critical alert, got %d", resp.Count)
		}
		if resp.Alerts[0].Type != domain.AlertMilestoneFailed {
			t.Errorf("expected MILESTONE_FAILED alert, got %s", resp.Alerts[0].Type)
		}
		alertID = resp.Alerts[0].ID
	})

	t.Run("AcknowledgeAndResolve", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/"+alertID+"/acknowledge", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("acknowledge failed: %d %s", rr.Code, rr.Body.String())
		}

		req = httptest.NewRequest(http.MethodPost, "/api/v1/alerts/"+alertID+"/resolve", nil)
		rr = httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("resolve failed: %d %s", rr.Code, rr.Body.String())
		}

		var alert domain.SettlementAlert
		if err := json.Unmarshal(rr.Body.Bytes(), &alert); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if alert.Status != domain.AlertResolved {
			t.Errorf("expected RESOLVED, got %s", alert.Status)
		}
	})

	t.Run("AcknowledgeUnknownAlert", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/no-such-id/acknowledge", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("PerformanceReport", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/performance?period=WEEKLY", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var report domain.PerformanceReport
		if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if report.Failed != 1 {
			t.Errorf("expected 1 failed instruction, got %d", report.Failed)
		}
	})

	t.Run("PerformanceReportBadPeriod", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/performance?period=HOURLY", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}

func TestHighRiskPredictionAlert(t *testing.T) {
	server := createTestServer(t)
	id := createInstruction(t, server, "trade-090")

	// Extreme market snapshot pushes the ensemble into the HIGH tier even
	// against a clean default counterparty history.
	mc := domain.MarketConditions{
		VolatilityIndex:   1.0,
		LiquidityIndex:    0.0,
		CreditSpreadIndex: 1.0,
		SystemLoad:        1.0,
		StressLevel:       domain.StressExtreme,
	}
	body, _ := json.Marshal(mc)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/market-conditions", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("market conditions update failed: %d %s", rr.Code, rr.Body.String())
	}

	predictOnce := func(t *testing.T) domain.FailurePrediction {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/instructions/"+id+"/predict", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("predict failed: %d %s", rr.Code, rr.Body.String())
		}
		var p domain.FailurePrediction
		if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		return p
	}

	listAlerts := func(t *testing.T) []*domain.SettlementAlert {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("alert list failed: %d", rr.Code)
		}
		var resp struct {
			Alerts []*domain.SettlementAlert `json:"alerts"`
			Count  int                       `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		return resp.Alerts
	}

	t.Run("HighTierRaisesAlert", func(t *testing.T) {
		p := predictOnce(t)
		if p.RiskTier != domain.TierHigh && p.RiskTier != domain.TierVeryHigh {
			t.Fatalf("expected an elevated tier under extreme conditions, got %s (%.4f)", p.RiskTier, p.FailureProbability)
		}

		alerts := listAlerts(t)
		if len(alerts) != 1 {
			t.Fatalf("expected one alert, got %d", len(alerts))
		}
		a := alerts[0]
		if a.Type != domain.AlertHighRiskScore {
			t.Errorf("expected HIGH_RISK_SCORE alert, got %s", a.Type)
		}
		if a.InstructionID != id {
			t.Errorf("alert bound to %s, want %s", a.InstructionID, id)
		}
		if a.Severity != domain.AlertWarning && a.Severity != domain.AlertCritical {
			t.Errorf("unexpected severity %s", a.Severity)
		}
	})

	t.Run("RepeatPredictionDoesNotDuplicate", func(t *testing.T) {
		predictOnce(t)
		if alerts := listAlerts(t); len(alerts) != 1 {
			t.Errorf("expected the alert gate to hold, got %d alerts", len(alerts))
		}
	})
}

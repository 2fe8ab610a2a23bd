package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "settlecore-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetInstruction", func(t *testing.T) {
		instr := &domain.SettlementInstruction{
			ID:             "instr-001",
			TradeID:        "trade-001",
			CounterpartyID: "cp-001",
			SecurityID:     "sec-001",
			SecurityType:   domain.SecurityEquity,
			NotionalAmount: 2500000,
			Currency:       "USD",
			TradeDate:      now,
			SettlementDate: now.Add(48 * time.Hour),
			Method:         domain.MethodDVP,
			Priority:       domain.PriorityNormal,
			Status:         domain.InstructionPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if err := repo.SaveInstruction(ctx, instr); err != nil {
			t.Fatalf("SaveInstruction failed: %v", err)
		}

		retrieved, err := repo.GetInstruction(ctx, instr.ID)
		if err != nil {
			t.Fatalf("GetInstruction failed: %v", err)
		}

		if retrieved.ID != instr.ID {
			t.Errorf("expected ID %s, got %s", instr.ID, retrieved.ID)
		}
		if retrieved.NotionalAmount != instr.NotionalAmount {
			t.Errorf("expected notional %.2f, got %.2f", instr.NotionalAmount, retrieved.NotionalAmount)
		}
		if retrieved.SecurityType != domain.SecurityEquity {
			t.Errorf("expected security type %s, got %s", domain.SecurityEquity, retrieved.SecurityType)
		}
	})

	t.Run("InstructionStatusUpsert", func(t *testing.T) {
		instr, err := repo.GetInstruction(ctx, "instr-001")
		if err != nil {
			t.Fatalf("GetInstruction failed: %v", err)
		}

		instr.Status = domain.InstructionSettled
		instr.UpdatedAt = now.Add(time.Hour)
		if err := repo.SaveInstruction(ctx, instr); err != nil {
			t.Fatalf("SaveInstruction upsert failed: %v", err)
		}

		retrieved, err := repo.GetInstruction(ctx, "instr-001")
		if err != nil {
			t.Fatalf("GetInstruction failed: %v", err)
		}
		if retrieved.Status != domain.InstructionSettled {
			t.Errorf("expected status %s, got %s", domain.InstructionSettled, retrieved.Status)
		}
	})

	t.Run("SaveAndListPredictions", func(t *testing.T) {
		p := &domain.FailurePrediction{
			ID:                 "pred-001",
			InstructionID:      "instr-001",
			FailureProbability: 0.72,
			RiskTier:           domain.TierHigh,
			ExpectedDelayDays:  2.5,
			Confidence:         0.8,
			RiskFactors: []domain.RiskFactor{
				{Name: "Low Counterparty Success Rate", Category: domain.CategoryCounterparty, Impact: 0.3},
			},
			Mitigations: []domain.MitigationSuggestion{
				{Action: "Proactive counterparty contact", Priority: 1, ExpectedImpact: 0.15},
			},
			EarlyWarnings: []string{"counterparty reliability degrading"},
			ModelVersion:  "ensemble-v1",
			GeneratedAt:   now,
			ValidUntil:    now.Add(4 * time.Hour),
		}

		if err := repo.SavePrediction(ctx, p); err != nil {
			t.Fatalf("SavePrediction failed: %v", err)
		}

		predictions, err := repo.ListPredictions(ctx, "instr-001", 10)
		if err != nil {
			t.Fatalf("ListPredictions failed: %v", err)
		}
		if len(predictions) != 1 {
			t.Fatalf("expected 1 prediction, got %d", len(predictions))
		}
		if predictions[0].FailureProbability != 0.72 {
			t.Errorf("expected probability 0.72, got %.2f", predictions[0].FailureProbability)
		}
		if len(predictions[0].RiskFactors) != 1 {
			t.Errorf("expected 1 risk factor, got %d", len(predictions[0].RiskFactors))
		}
		if predictions[0].Mitigations[0].Action != "Proactive counterparty contact" {
			t.Errorf("unexpected mitigation action: %s", predictions[0].Mitigations[0].Action)
		}
	})

	t.Run("SaveAndListAssessments", func(t *testing.T) {
		a := &domain.RiskAssessment{
			ID:               "assess-001",
			InstructionID:    "instr-001",
			CreditScore:      0.45,
			LiquidityScore:   0.38,
			OperationalScore: 0.52,
			MarketScore:      0.61,
			CompositeScore:   0.49,
			Grade:            domain.GradeModerate,
			KeyFactors:       []string{"elevated market volatility"},
			Mitigations:      []string{"review counterparty exposure"},
			AlertLevel:       domain.AlertInfo,
			AssessedAt:       now,
			ValidUntil:       now.Add(time.Hour),
		}

		if err := repo.SaveAssessment(ctx, a); err != nil {
			t.Fatalf("SaveAssessment failed: %v", err)
		}

		assessments, err := repo.ListAssessments(ctx, "instr-001", 10)
		if err != nil {
			t.Fatalf("ListAssessments failed: %v", err)
		}
		if len(assessments) != 1 {
			t.Fatalf("expected 1 assessment, got %d", len(assessments))
		}
		if assessments[0].Grade != domain.GradeModerate {
			t.Errorf("expected grade %s, got %s", domain.GradeModerate, assessments[0].Grade)
		}
	})

	t.Run("SaveAndListDelays", func(t *testing.T) {
		d := &domain.SettlementDelay{
			ID:             "delay-001",
			InstructionID:  "instr-001",
			MilestoneID:    "ms-001",
			MilestoneType:  domain.MilestoneTradeConfirmation,
			Cause:          domain.CauseCounterparty,
			EstimatedHours: 6,
			ActualHours:    2,
			Severity:       domain.ImpactMedium,
			Mitigations:    []string{"escalate to counterparty operations desk"},
			RaisedAt:       now,
		}

		if err := repo.SaveDelay(ctx, d); err != nil {
			t.Fatalf("SaveDelay failed: %v", err)
		}

		// Resolution replay updates the same row
		resolved := now.Add(3 * time.Hour)
		d.ResolvedAt = &resolved
		d.ActualHours = 3
		if err := repo.SaveDelay(ctx, d); err != nil {
			t.Fatalf("SaveDelay replay failed: %v", err)
		}

		delays, err := repo.ListDelays(ctx, "instr-001")
		if err != nil {
			t.Fatalf("ListDelays failed: %v", err)
		}
		if len(delays) != 1 {
			t.Fatalf("expected 1 delay, got %d", len(delays))
		}
		if delays[0].ResolvedAt == nil {
			t.Error("expected resolved delay")
		}
		if delays[0].ActualHours != 3 {
			t.Errorf("expected actual hours 3, got %.1f", delays[0].ActualHours)
		}
	})

	t.Run("SaveAndListAlerts", func(t *testing.T) {
		a := &domain.SettlementAlert{
			ID:            "alert-001",
			InstructionID: "instr-001",
			MilestoneID:   "ms-001",
			Type:          domain.AlertSLABreach,
			Severity:      domain.AlertCritical,
			Message:       "milestone TRADE_CONFIRMATION is 10.0h past its expected time",
			Status:        domain.AlertUnacknowledged,
			CreatedAt:     now,
		}

		if err := repo.SaveAlert(ctx, a); err != nil {
			t.Fatalf("SaveAlert failed: %v", err)
		}

		alerts, err := repo.ListAlerts(ctx, now.Add(-time.Hour), 10)
		if err != nil {
			t.Fatalf("ListAlerts failed: %v", err)
		}
		if len(alerts) != 1 {
			t.Fatalf("expected 1 alert, got %d", len(alerts))
		}
		if alerts[0].Severity != domain.AlertCritical {
			t.Errorf("expected severity %s, got %s", domain.AlertCritical, alerts[0].Severity)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetInstruction(ctx, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("RequiresID", func(t *testing.T) {
		if err := repo.SaveInstruction(ctx, &domain.SettlementInstruction{}); err == nil {
			t.Error("expected error for missing id")
		}
		if _, err := repo.GetInstruction(ctx, ""); err == nil {
			t.Error("expected error for empty id")
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

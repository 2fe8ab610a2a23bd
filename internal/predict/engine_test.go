package predict

import (
	"context"
	"testing"
	"time"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/features"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/patterns"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	library, err := patterns.NewLibrary(0.5, nil)
	if err != nil {
		t.Fatalf("failed to create library: %v", err)
	}
	engine := NewEngine(library, nil, nil, domain.PredictionConfig{})
	engine.SetActiveModel(domain.DefaultModelConfig())
	return engine
}

// stressedInput is a deliberately risky scenario: a counterparty that fails
// one trade in five and averages two days of delay, under elevated
// volatility and heavy system load.
func stressedInput(instructionID string) *domain.PredictionInput {
	now := time.Now().UTC()
	return &domain.PredictionInput{
		Instruction: domain.SettlementInstruction{
			ID:             instructionID,
			CounterpartyID: "cp-risky",
			SecurityType:   domain.SecurityEquity,
			NotionalAmount: 9_999_999,
			Currency:       "USD",
			TradeDate:      now,
			SettlementDate: now.Add(48 * time.Hour),
			Method:         domain.MethodDVP,
			Priority:       domain.PriorityNormal,
		},
		History: domain.HistoricalContext{
			CounterpartySuccessRate:  0.80,
			CounterpartyAvgDelayDays: 2.0,
			SecurityTypeSuccessRate:  0.95,
			SeasonalFactor:           0.0,
		},
		Market: domain.MarketConditions{
			VolatilityIndex:   0.5,
			LiquidityIndex:    0.7,
			CreditSpreadIndex: 0.3,
			SystemLoad:        0.85,
			StressLevel:       domain.StressElevated,
		},
	}
}

func calmInput(instructionID string) *domain.PredictionInput {
	now := time.Now().UTC()
	return &domain.PredictionInput{
		Instruction: domain.SettlementInstruction{
			ID:             instructionID,
			CounterpartyID: "cp-solid",
			SecurityType:   domain.SecurityGovernmentBond,
			NotionalAmount: 500_000,
			Currency:       "USD",
			TradeDate:      now,
			SettlementDate: now.Add(72 * time.Hour),
			Method:         domain.MethodDVP,
			Priority:       domain.PriorityNormal,
		},
		History: domain.HistoricalContext{
			CounterpartySuccessRate:  0.99,
			CounterpartyAvgDelayDays: 0.1,
			SecurityTypeSuccessRate:  0.99,
		},
		Market: domain.MarketConditions{
			VolatilityIndex:   0.1,
			LiquidityIndex:    0.9,
			CreditSpreadIndex: 0.1,
			SystemLoad:        0.2,
			StressLevel:       domain.StressLow,
		},
	}
}

func TestPredict(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	t.Run("NoActiveModel", func(t *testing.T) {
		library, _ := patterns.NewLibrary(0.5, nil)
		bare := NewEngine(library, nil, nil, domain.PredictionConfig{})
		if _, err := bare.Predict(ctx, stressedInput("instr-0")); err != domain.ErrNoActiveModel {
			t.Errorf("expected ErrNoActiveModel, got %v", err)
		}
	})

	t.Run("StressedScenarioIsHighTier", func(t *testing.T) {
		p, err := engine.Predict(ctx, stressedInput("instr-1"))
		if err != nil {
			t.Fatalf("predict failed: %v", err)
		}

		// Hand-computed blend for this input: 0.40x0.580 + 0.35x0.850 +
		// 0.25x0.821 = 0.735.
		if p.FailureProbability < 0.70 || p.FailureProbability > 0.77 {
			t.Errorf("expected probability near 0.735, got %.4f", p.FailureProbability)
		}
		if p.RiskTier != domain.TierHigh {
			t.Errorf("expected HIGH tier, got %s", p.RiskTier)
		}
		if p.ModelVersion != "ensemble-v1" {
			t.Errorf("expected ensemble-v1, got %s", p.ModelVersion)
		}

		// probability x 3 + 0.3 x 2.0 days of average delay
		if p.ExpectedDelayDays < 2.6 || p.ExpectedDelayDays > 3.0 {
			t.Errorf("expected delay near 2.8 days, got %.4f", p.ExpectedDelayDays)
		}

		names := make(map[string]bool, len(p.RiskFactors))
		for _, f := range p.RiskFactors {
			names[f.Name] = true
		}
		for _, want := range []string{"Low Counterparty Success Rate", "High System Load"} {
			if !names[want] {
				t.Errorf("risk factors missing %q, got %v", want, p.RiskFactors)
			}
		}
	})

	t.Run("CalmScenarioScoresLower", func(t *testing.T) {
		calm, err := engine.Predict(ctx, calmInput("instr-2"))
		if err != nil {
			t.Fatalf("predict failed: %v", err)
		}
		stressed, err := engine.Predict(ctx, stressedInput("instr-3"))
		if err != nil {
			t.Fatalf("predict failed: %v", err)
		}
		if calm.FailureProbability >= stressed.FailureProbability {
			t.Errorf("calm %.4f should score below stressed %.4f",
				calm.FailureProbability, stressed.FailureProbability)
		}
	})

	t.Run("ProbabilityBounds", func(t *testing.T) {
		inputs := []*domain.PredictionInput{calmInput("b-1"), stressedInput("b-2")}

		// Push everything to the extremes as well.
		extreme := stressedInput("b-3")
		extreme.History.CounterpartySuccessRate = 0
		extreme.History.CounterpartyAvgDelayDays = 30
		extreme.Market.VolatilityIndex = 1
		extreme.Market.LiquidityIndex = 0
		extreme.Market.SystemLoad = 1
		extreme.Market.StressLevel = domain.StressExtreme
		inputs = append(inputs, extreme)

		for _, in := range inputs {
			p, err := engine.Predict(ctx, in)
			if err != nil {
				t.Fatalf("predict failed: %v", err)
			}
			if p.FailureProbability < 0 || p.FailureProbability > 1 {
				t.Errorf("probability out of [0,1]: %.4f", p.FailureProbability)
			}
			if p.Confidence < 0.5 || p.Confidence > 0.99 {
				t.Errorf("confidence out of [0.5,0.99]: %.4f", p.Confidence)
			}
			if len(p.RiskFactors) > 5 {
				t.Errorf("more than 5 risk factors: %d", len(p.RiskFactors))
			}
			if len(p.Mitigations) > 5 {
				t.Errorf("more than 5 mitigations: %d", len(p.Mitigations))
			}
		}
	})

	t.Run("PerfectSuccessRateLowersConfidence", func(t *testing.T) {
		sparse := calmInput("c-1")
		sparse.History.CounterpartySuccessRate = 1.0

		p, err := engine.Predict(ctx, sparse)
		if err != nil {
			t.Fatalf("predict failed: %v", err)
		}
		// 0.8 base x 0.7 sparse-data penalty
		if p.Confidence < 0.55 || p.Confidence > 0.57 {
			t.Errorf("expected confidence near 0.56, got %.4f", p.Confidence)
		}
	})

	t.Run("LargeStructuredProductSuggestsBatching", func(t *testing.T) {
		input := stressedInput("c-2")
		input.Instruction.SecurityType = domain.SecurityStructuredProduct
		input.Instruction.NotionalAmount = 60_000_000

		p, err := engine.Predict(ctx, input)
		if err != nil {
			t.Fatalf("predict failed: %v", err)
		}
		found := false
		for _, m := range p.Mitigations {
			if m.Action == "Split into smaller settlement batches" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected batching suggestion for 60M notional, got %+v", p.Mitigations)
		}
	})

	t.Run("EarlyWarnings", func(t *testing.T) {
		input := stressedInput("c-3")
		input.History.RecentFailureCount = 3
		input.Market.StressLevel = domain.StressHigh
		input.Market.HolidayAdjusted = true
		input.Instruction.SettlementDate = time.Now().UTC().Add(6 * time.Hour)

		p, err := engine.Predict(ctx, input)
		if err != nil {
			t.Fatalf("predict failed: %v", err)
		}
		if len(p.EarlyWarnings) != 4 {
			t.Errorf("expected 4 early warnings, got %d: %v", len(p.EarlyWarnings), p.EarlyWarnings)
		}
	})

	t.Run("HolidayAndStressExtendExpectedDelay", func(t *testing.T) {
		base := stressedInput("c-4")
		adjusted := stressedInput("c-5")
		adjusted.Market.StressLevel = domain.StressHigh
		adjusted.Market.HolidayAdjusted = true

		pBase, err := engine.Predict(ctx, base)
		if err != nil {
			t.Fatalf("predict failed: %v", err)
		}
		pAdj, err := engine.Predict(ctx, adjusted)
		if err != nil {
			t.Fatalf("predict failed: %v", err)
		}
		if pAdj.ExpectedDelayDays <= pBase.ExpectedDelayDays {
			t.Errorf("holiday plus high stress should extend delay: %.4f vs %.4f",
				pAdj.ExpectedDelayDays, pBase.ExpectedDelayDays)
		}
	})
}

func TestPredictionHistory(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	t.Run("LatestAndHistory", func(t *testing.T) {
		if _, err := engine.Latest("unknown"); err != domain.ErrPredictionNotFound {
			t.Errorf("expected ErrPredictionNotFound, got %v", err)
		}

		first, _ := engine.Predict(ctx, stressedInput("h-1"))
		second, _ := engine.Predict(ctx, stressedInput("h-1"))

		latest, err := engine.Latest("h-1")
		if err != nil {
			t.Fatalf("latest failed: %v", err)
		}
		if latest.ID != second.ID {
			t.Errorf("expected latest %s, got %s", second.ID, latest.ID)
		}

		hist := engine.History("h-1")
		if len(hist) != 2 {
			t.Fatalf("expected 2 predictions, got %d", len(hist))
		}
		if hist[0].ID != first.ID {
			t.Errorf("history should be oldest first")
		}
	})

	t.Run("HistoryCap", func(t *testing.T) {
		library, _ := patterns.NewLibrary(0.5, nil)
		capped := NewEngine(library, nil, nil, domain.PredictionConfig{HistoryCap: 3})
		capped.SetActiveModel(domain.DefaultModelConfig())

		for i := 0; i < 5; i++ {
			capped.Predict(ctx, stressedInput("h-2"))
		}
		if got := len(capped.History("h-2")); got != 3 {
			t.Errorf("expected history capped at 3, got %d", got)
		}
	})

	t.Run("HighRisk", func(t *testing.T) {
		engine.Predict(ctx, calmInput("h-3"))
		engine.Predict(ctx, stressedInput("h-4"))

		flagged := engine.HighRisk(0.6)
		for _, p := range flagged {
			if p.FailureProbability < 0.6 {
				t.Errorf("prediction below threshold returned: %.4f", p.FailureProbability)
			}
		}
		found := false
		for _, p := range flagged {
			if p.InstructionID == "h-4" {
				found = true
			}
		}
		if !found {
			t.Error("stressed instruction missing from high-risk list")
		}
	})
}

func TestScoringModels(t *testing.T) {
	t.Run("ScoresInBounds", func(t *testing.T) {
		models := []ScoringModel{NewLinearModel(), NewRuleModel(), NewNetworkModel()}
		vectors := []features.Vector{
			{},
			{CounterpartyRisk: 1, CounterpartyDelay: 1, Volatility: 1, LiquidityRisk: 1, SystemLoad: 1},
		}
		for _, m := range models {
			for _, v := range vectors {
				s := m.Score(v)
				if s < 0 || s > 1 {
					t.Errorf("%s score out of [0,1]: %.4f", m.Name(), s)
				}
			}
		}
	})

	t.Run("RuleModelThresholds", func(t *testing.T) {
		m := NewRuleModel()
		quiet := features.Vector{TimeToSettleDays: 3}
		if got := m.Score(quiet); got != 0 {
			t.Errorf("expected 0 for quiet vector, got %.4f", got)
		}

		busy := features.Vector{
			CounterpartyRisk:  0.2,
			CounterpartyDelay: 0.4,
			Volatility:        0.5,
			LiquidityRisk:     0.5,
			SystemLoad:        0.9,
			TimeToSettleDays:  0.5,
		}
		// 0.30 + 0.20 + 0.20 + 0.15 + 0.15 + 0.10 caps at 1.0
		if got := m.Score(busy); got != 1.0 {
			t.Errorf("expected capped 1.0, got %.4f", got)
		}
	})
}

func TestFeedbackTracker(t *testing.T) {
	engine := newTestEngine(t)
	feedback := NewTracker(engine, nil)
	ctx := context.Background()

	t.Run("NoPrediction", func(t *testing.T) {
		if _, err := feedback.RecordOutcome(ctx, "never-scored", domain.OutcomeFailed, 0); err != domain.ErrPredictionNotFound {
			t.Errorf("expected ErrPredictionNotFound, got %v", err)
		}
	})

	t.Run("PerfectRoundTrip", func(t *testing.T) {
		// High-probability prediction followed by an actual failure, and a
		// low-probability prediction followed by a clean settlement: every
		// verdict correct, so precision and recall are both 1.
		engine.Predict(ctx, stressedInput("f-1"))
		engine.Predict(ctx, calmInput("f-2"))

		if _, err := feedback.RecordOutcome(ctx, "f-1", domain.OutcomeFailed, 2.5); err != nil {
			t.Fatalf("record failed: %v", err)
		}
		m, err := feedback.RecordOutcome(ctx, "f-2", domain.OutcomeSettled, 0)
		if err != nil {
			t.Fatalf("record failed: %v", err)
		}

		if m.Predictions != 2 || m.Correct != 2 {
			t.Errorf("expected 2/2 correct, got %d/%d", m.Correct, m.Predictions)
		}
		if m.TruePositives != 1 || m.TrueNegatives != 1 {
			t.Errorf("expected TP=1 TN=1, got TP=%d TN=%d", m.TruePositives, m.TrueNegatives)
		}
		if m.Precision() != 1.0 || m.Recall() != 1.0 {
			t.Errorf("expected precision=recall=1, got %.2f/%.2f", m.Precision(), m.Recall())
		}
		if m.Accuracy() != 1.0 || m.F1() != 1.0 {
			t.Errorf("expected accuracy=f1=1, got %.2f/%.2f", m.Accuracy(), m.F1())
		}
	})

	t.Run("MissedFailureCountsAsFalseNegative", func(t *testing.T) {
		engine.Predict(ctx, calmInput("f-3"))

		m, err := feedback.RecordOutcome(ctx, "f-3", domain.OutcomeFailed, 1)
		if err != nil {
			t.Fatalf("record failed: %v", err)
		}
		if m.FalseNegatives != 1 {
			t.Errorf("expected FN=1, got %d", m.FalseNegatives)
		}
		if m.Recall() >= 1.0 {
			t.Errorf("recall should drop below 1 after a miss, got %.2f", m.Recall())
		}
	})

	t.Run("MetricsLookup", func(t *testing.T) {
		if _, ok := feedback.Metrics("ensemble-v1"); !ok {
			t.Error("expected metrics for ensemble-v1")
		}
		if _, ok := feedback.Metrics("no-such-model"); ok {
			t.Error("expected no metrics for unknown model")
		}
		if got := len(feedback.AllMetrics()); got != 1 {
			t.Errorf("expected 1 model version, got %d", got)
		}
	})
}

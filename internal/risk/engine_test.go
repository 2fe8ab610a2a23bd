package risk

import (
	"context"
	"testing"
	"time"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
)

func testInstruction(id string, secType domain.SecurityType, notional float64, method domain.SettlementMethod) *domain.SettlementInstruction {
	now := time.Now().UTC()
	return &domain.SettlementInstruction{
		ID:             id,
		TradeID:        "trade-" + id,
		CounterpartyID: "cp-001",
		SecurityID:     "sec-001",
		SecurityType:   secType,
		NotionalAmount: notional,
		Currency:       "USD",
		TradeDate:      now,
		SettlementDate: now.Add(48 * time.Hour),
		Method:         method,
		Priority:       domain.PriorityNormal,
		Status:         domain.InstructionPending,
	}
}

func TestAssess(t *testing.T) {
	ctx := context.Background()

	t.Run("CalmConditionsScoreMinimal", func(t *testing.T) {
		engine := NewEngine(domain.DefaultRiskThresholds(), nil, nil)
		engine.UpsertProfile(&domain.CounterpartyRiskProfile{
			CounterpartyID:     "cp-001",
			CreditRating:       "AAA",
			DefaultProbability: 0.005,
			TotalExposure:      1_000_000,
			ExposureLimit:      100_000_000,
			ConcentrationRatio: 0.05,
		})

		a := engine.Assess(ctx, testInstruction("i-1", domain.SecurityEquity, 1_000_000, domain.MethodDVP))

		if a.CompositeScore > 0.2 {
			t.Errorf("expected composite below 0.2, got %.4f", a.CompositeScore)
		}
		if a.Grade != domain.GradeMinimal {
			t.Errorf("expected MINIMAL grade, got %s", a.Grade)
		}
		if a.AlertLevel != domain.AlertInfo {
			t.Errorf("expected INFO alert, got %s", a.AlertLevel)
		}
		if len(a.KeyFactors) == 0 {
			t.Error("expected at least the dominant factor")
		}
	})

	t.Run("StressedConditionsScoreSevere", func(t *testing.T) {
		engine := NewEngine(domain.DefaultRiskThresholds(), nil, nil)
		engine.UpsertProfile(&domain.CounterpartyRiskProfile{
			CounterpartyID:     "cp-001",
			CreditRating:       "CCC",
			DefaultProbability: 0.15,
			TotalExposure:      90_000_000,
			ExposureLimit:      100_000_000,
			ConcentrationRatio: 0.80,
		})
		engine.UpdateMarketConditions(ctx, domain.MarketConditions{
			VolatilityIndex:   0.9,
			LiquidityIndex:    0.2,
			CreditSpreadIndex: 0.8,
			SystemLoad:        0.95,
			StressLevel:       domain.StressExtreme,
		})

		a := engine.Assess(ctx, testInstruction("i-2", domain.SecurityStructuredProduct, 80_000_000, domain.MethodFOP))

		if a.CompositeScore < 0.8 {
			t.Errorf("expected composite at or above 0.8, got %.4f", a.CompositeScore)
		}
		if a.Grade != domain.GradeSevere {
			t.Errorf("expected SEVERE grade, got %s", a.Grade)
		}
		if a.AlertLevel != domain.AlertCritical {
			t.Errorf("expected CRITICAL alert, got %s", a.AlertLevel)
		}
		if len(a.Mitigations) < 4 {
			t.Errorf("expected mitigation for every stressed dimension, got %v", a.Mitigations)
		}
	})

	t.Run("SubScoreBreachEscalatesAlert", func(t *testing.T) {
		engine := NewEngine(domain.DefaultRiskThresholds(), nil, nil)
		// Dreadful credit standing, everything else calm: the composite stays
		// moderate but the credit sub-score alone breaches the threshold.
		engine.UpsertProfile(&domain.CounterpartyRiskProfile{
			CounterpartyID:     "cp-001",
			CreditRating:       "D",
			DefaultProbability: 0.5,
			TotalExposure:      95_000_000,
			ExposureLimit:      100_000_000,
			ConcentrationRatio: 0.9,
		})

		a := engine.Assess(ctx, testInstruction("i-3", domain.SecurityGovernmentBond, 100_000, domain.MethodDVP))

		if a.CreditScore <= 0.85 {
			t.Fatalf("expected credit sub-score above 0.85, got %.4f", a.CreditScore)
		}
		if a.AlertLevel != domain.AlertCritical {
			t.Errorf("expected CRITICAL alert from sub-score breach, got %s", a.AlertLevel)
		}
	})

	t.Run("UnknownCounterpartyGetsConservativeDefault", func(t *testing.T) {
		engine := NewEngine(domain.DefaultRiskThresholds(), nil, nil)

		instr := testInstruction("i-4", domain.SecurityEquity, 1_000_000, domain.MethodDVP)
		instr.CounterpartyID = "cp-unseen"
		a := engine.Assess(ctx, instr)

		// Unrated multiplier 0.5 plus default probability keeps credit in the
		// mid range rather than near zero.
		if a.CreditScore < 0.3 {
			t.Errorf("expected conservative credit score for unknown counterparty, got %.4f", a.CreditScore)
		}
	})

	t.Run("ScoresBounded", func(t *testing.T) {
		engine := NewEngine(domain.DefaultRiskThresholds(), nil, nil)
		engine.UpdateMarketConditions(ctx, domain.MarketConditions{
			VolatilityIndex:   5, // out-of-range inputs are clamped
			CreditSpreadIndex: 5,
			SystemLoad:        5,
			StressLevel:       domain.StressExtreme,
		})

		a := engine.Assess(ctx, testInstruction("i-5", domain.SecurityDerivative, 1e12, domain.MethodFOP))
		for name, s := range map[string]float64{
			"credit":      a.CreditScore,
			"liquidity":   a.LiquidityScore,
			"operational": a.OperationalScore,
			"market":      a.MarketScore,
			"composite":   a.CompositeScore,
		} {
			if s < 0 || s > 1 {
				t.Errorf("%s score out of [0,1]: %.4f", name, s)
			}
		}
	})

	t.Run("LargeNotionalSuggestsBatching", func(t *testing.T) {
		engine := NewEngine(domain.DefaultRiskThresholds(), nil, nil)

		a := engine.Assess(ctx, testInstruction("i-6", domain.SecurityEquity, 60_000_000, domain.MethodDVP))
		found := false
		for _, m := range a.Mitigations {
			if m == "split the notional into smaller settlement batches" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected batching mitigation, got %v", a.Mitigations)
		}
	})
}

func TestProfiles(t *testing.T) {
	engine := NewEngine(domain.DefaultRiskThresholds(), nil, nil)

	t.Run("NotFound", func(t *testing.T) {
		if _, err := engine.Profile("cp-missing"); err != domain.ErrProfileNotFound {
			t.Errorf("expected ErrProfileNotFound, got %v", err)
		}
	})

	t.Run("UpsertStampsUpdatedAt", func(t *testing.T) {
		engine.UpsertProfile(&domain.CounterpartyRiskProfile{
			CounterpartyID: "cp-009",
			CreditRating:   "BBB",
		})
		p, err := engine.Profile("cp-009")
		if err != nil {
			t.Fatalf("profile lookup failed: %v", err)
		}
		if p.UpdatedAt.IsZero() {
			t.Error("expected UpdatedAt to be stamped")
		}
	})
}

func TestAssessmentHistory(t *testing.T) {
	engine := NewEngine(domain.DefaultRiskThresholds(), nil, nil)
	ctx := context.Background()

	t.Run("ActiveSupersedes", func(t *testing.T) {
		if _, ok := engine.Active("i-10"); ok {
			t.Fatal("expected no active assessment before first assess")
		}

		first := engine.Assess(ctx, testInstruction("i-10", domain.SecurityEquity, 1_000_000, domain.MethodDVP))
		second := engine.Assess(ctx, testInstruction("i-10", domain.SecurityEquity, 1_000_000, domain.MethodDVP))

		active, ok := engine.Active("i-10")
		if !ok {
			t.Fatal("expected an active assessment")
		}
		if active.ID != second.ID {
			t.Errorf("expected latest assessment %s, got %s", second.ID, active.ID)
		}

		hist := engine.History("i-10")
		if len(hist) != 2 {
			t.Fatalf("expected 2 assessments, got %d", len(hist))
		}
		if hist[0].ID != first.ID {
			t.Error("history should be oldest first")
		}
	})

	t.Run("MarketConditionsRoundTrip", func(t *testing.T) {
		mc := domain.MarketConditions{
			VolatilityIndex: 0.42,
			LiquidityIndex:  0.65,
			StressLevel:     domain.StressElevated,
		}
		engine.UpdateMarketConditions(ctx, mc)

		got := engine.MarketConditions()
		if got.VolatilityIndex != 0.42 || got.StressLevel != domain.StressElevated {
			t.Errorf("market conditions not stored: %+v", got)
		}
		if got.AsOf.IsZero() {
			t.Error("expected AsOf to be stamped")
		}
	})
}

func TestRatingMultiplier(t *testing.T) {
	cases := []struct {
		rating string
		want   float64
	}{
		{"AAA", 0.05},
		{"BBB", 0.35},
		{"D", 1.00},
		{"NR", 0.50},
		{"", 0.50},
	}
	for _, c := range cases {
		if got := ratingMultiplier(c.rating); got != c.want {
			t.Errorf("ratingMultiplier(%q) = %.2f, want %.2f", c.rating, got, c.want)
		}
	}
}

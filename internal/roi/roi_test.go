package roi

import (
	"errors"
	"math"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

func TestCalculate(t *testing.T) {
	c := NewCalculator()

	t.Run("ClaimContext", func(t *testing.T) {
		result, err := c.Calculate("staged_accident", domain.ContextClaim, "auto", 3200, domain.ComplexityMedium)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}

		// medium effort: 3 analyst (80) + 2 investigator (110) = 460
		if !result.HumanCost.Equal(decimal.NewFromInt(460)) {
			t.Errorf("expected human cost 460, got %s", result.HumanCost)
		}
		// 5 days * 0.1 * 460 = 230
		if !result.OpportunityCost.Equal(decimal.NewFromInt(230)) {
			t.Errorf("expected opportunity cost 230, got %s", result.OpportunityCost)
		}
		// 460 + 500 + 230 = 1190
		if !result.TotalCost.Equal(decimal.NewFromInt(1190)) {
			t.Errorf("expected total cost 1190, got %s", result.TotalCost)
		}
		// 3200 * 1.0 * (1 + 0.15 + 0.20 + 0.10) = 4640
		if !result.Benefit.Equal(decimal.NewFromInt(4640)) {
			t.Errorf("expected benefit 4640, got %s", result.Benefit)
		}
		if !result.NetROI.Equal(decimal.NewFromInt(3450)) {
			t.Errorf("expected net ROI 3450, got %s", result.NetROI)
		}
		if math.Abs(result.Ratio-3450.0/1190.0) > 1e-9 {
			t.Errorf("expected ratio %f, got %f", 3450.0/1190.0, result.Ratio)
		}
		// 0.3 * 30 detection days
		if result.PaybackDays != 9 {
			t.Errorf("expected payback 9 days, got %f", result.PaybackDays)
		}
		if result.HorizonDays != 30 {
			t.Errorf("expected horizon 30 days, got %d", result.HorizonDays)
		}
	})

	t.Run("SubscriptionContext", func(t *testing.T) {
		result, err := c.Calculate("identity_theft", domain.ContextSubscription, "property", 1000, domain.ComplexitySimple)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}

		// simple effort: 2 analyst hours = 160; opportunity 2 * 0.1 * 160 = 32
		if !result.TotalCost.Equal(decimal.NewFromInt(692)) {
			t.Errorf("expected total cost 692, got %s", result.TotalCost)
		}
		// premium at risk 1000 * 3.2 * 1.3 = 4160; lifetime value 10400;
		// (4160 + 10400) * 1.8 = 26208
		if !result.Benefit.Equal(decimal.NewFromInt(26208)) {
			t.Errorf("expected benefit 26208, got %s", result.Benefit)
		}
		// 0.8 * 21 detection days
		if math.Abs(result.PaybackDays-16.8) > 1e-9 {
			t.Errorf("expected payback 16.8 days, got %f", result.PaybackDays)
		}
	})

	t.Run("ManagementContext", func(t *testing.T) {
		result, err := c.Calculate("staged_accident", domain.ContextManagement, "auto", 1000, domain.ComplexitySimple)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}

		// subscription benefit (3200 + 8000) * 2.0 = 22400; claim 1450;
		// blended (22400 + 1450) / 2 * 0.7 = 8347.5
		if !result.Benefit.Equal(decimal.NewFromFloat(8347.5)) {
			t.Errorf("expected benefit 8347.5, got %s", result.Benefit)
		}
		// 0.5 * 30 detection days
		if result.PaybackDays != 15 {
			t.Errorf("expected payback 15 days, got %f", result.PaybackDays)
		}
	})

	t.Run("GenericContext", func(t *testing.T) {
		result, err := c.Calculate("misrepresentation", domain.ContextGeneric, "auto", 1000, domain.ComplexitySimple)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}

		if !result.Benefit.Equal(decimal.NewFromInt(2000)) {
			t.Errorf("expected benefit 2000, got %s", result.Benefit)
		}
		if result.PaybackDays != 14 {
			t.Errorf("expected payback 14 days, got %f", result.PaybackDays)
		}
		if result.HorizonDays != 14 {
			t.Errorf("expected horizon 14 days, got %d", result.HorizonDays)
		}
	})

	t.Run("LineOfBusinessScaling", func(t *testing.T) {
		auto, _ := c.Calculate("staged_accident", domain.ContextClaim, "auto", 1000, domain.ComplexitySimple)
		life, _ := c.Calculate("staged_accident", domain.ContextClaim, "life", 1000, domain.ComplexitySimple)

		if !life.Benefit.Equal(auto.Benefit.Mul(decimal.NewFromInt(2))) {
			t.Errorf("life benefit should be 2x auto: %s vs %s", life.Benefit, auto.Benefit)
		}
	})

	t.Run("ComplexEffort", func(t *testing.T) {
		result, err := c.Calculate("collusion_ring", domain.ContextClaim, "commercial", 50000, domain.ComplexityComplex)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}

		// 4*80 + 4*110 + 4*150 = 1360
		if !result.HumanCost.Equal(decimal.NewFromInt(1360)) {
			t.Errorf("expected human cost 1360, got %s", result.HumanCost)
		}
		// 10 days * 0.1 * 1360 = 1360
		if !result.OpportunityCost.Equal(decimal.NewFromInt(1360)) {
			t.Errorf("expected opportunity cost 1360, got %s", result.OpportunityCost)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		a, err := c.Calculate("phantom_billing", domain.ContextSubscription, "health", 12345.67, domain.ComplexityMedium)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		b, _ := c.Calculate("phantom_billing", domain.ContextSubscription, "health", 12345.67, domain.ComplexityMedium)

		if !a.NetROI.Equal(b.NetROI) || a.Ratio != b.Ratio {
			t.Error("identical inputs must produce identical results")
		}
	})

	t.Run("UnknownFraudType", func(t *testing.T) {
		_, err := c.Calculate("crystal_ball", domain.ContextClaim, "auto", 1000, domain.ComplexitySimple)
		if !errors.Is(err, domain.ErrUnknownFraudType) {
			t.Errorf("expected ErrUnknownFraudType, got %v", err)
		}
	})

	t.Run("UnknownLineOfBusiness", func(t *testing.T) {
		_, err := c.Calculate("staged_accident", domain.ContextClaim, "aviation", 1000, domain.ComplexitySimple)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("UnknownComplexity", func(t *testing.T) {
		_, err := c.Calculate("staged_accident", domain.ContextClaim, "auto", 1000, "extreme")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("UnknownContext", func(t *testing.T) {
		_, err := c.Calculate("staged_accident", "boardroom", "auto", 1000, domain.ComplexitySimple)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("NegativeAmount", func(t *testing.T) {
		_, err := c.Calculate("staged_accident", domain.ContextClaim, "auto", -1, domain.ComplexitySimple)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestKnownFraudTypes(t *testing.T) {
	types := KnownFraudTypes()
	if len(types) != 9 {
		t.Errorf("expected 9 known fraud types, got %d", len(types))
	}
	for _, ft := range types {
		if _, err := NewCalculator().Calculate(ft, domain.ContextGeneric, "auto", 100, domain.ComplexitySimple); err != nil {
			t.Errorf("known type %s failed: %v", ft, err)
		}
	}
}

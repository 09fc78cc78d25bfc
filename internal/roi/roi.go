// Package roi implements the return-on-investigation valuation.
// Calculate is a pure function: identical inputs always produce an
// identical result, with no randomness anywhere in the path.
package roi

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Fixed hourly rates by role.
var (
	rateAnalyst      = decimal.NewFromInt(80)
	rateInvestigator = decimal.NewFromInt(110)
	rateExpert       = decimal.NewFromInt(150)

	// technologyCost is the flat tooling cost per investigation.
	technologyCost = decimal.NewFromInt(500)

	// brandProtectionRate augments claim recoveries for reputational value.
	brandProtectionRate = decimal.NewFromFloat(0.10)

	// annualPremiumFactor converts a detected amount into premium at risk.
	annualPremiumFactor = decimal.NewFromFloat(3.2)

	// lifetimeValueFactor scales premium at risk into customer lifetime
	// value, approximating average retention years.
	lifetimeValueFactor = decimal.NewFromFloat(2.5)
)

// effort is the fixed analyst/investigator/expert hour table per complexity.
type effort struct {
	analystHours      int64
	investigatorHours int64
	expertHours       int64
	investigationDays int64
}

var effortTable = map[domain.Complexity]effort{
	domain.ComplexitySimple:  {analystHours: 2, investigationDays: 2},
	domain.ComplexityMedium:  {analystHours: 3, investigatorHours: 2, investigationDays: 5},
	domain.ComplexityComplex: {analystHours: 4, investigatorHours: 4, expertHours: 4, investigationDays: 10},
}

// fraudProfile holds the per-fraud-type valuation constants.
type fraudProfile struct {
	riskMultiplier       float64
	typicalDetectionDays float64
}

// fraudProfiles is the fixed per-type table. Unknown types fail closed:
// a silent default would misstate financial reporting.
var fraudProfiles = map[string]fraudProfile{
	"identity_theft":     {riskMultiplier: 1.8, typicalDetectionDays: 21},
	"document_forgery":   {riskMultiplier: 1.5, typicalDetectionDays: 14},
	"staged_accident":    {riskMultiplier: 2.0, typicalDetectionDays: 30},
	"premium_evasion":    {riskMultiplier: 1.2, typicalDetectionDays: 45},
	"phantom_billing":    {riskMultiplier: 2.5, typicalDetectionDays: 28},
	"account_takeover":   {riskMultiplier: 2.2, typicalDetectionDays: 7},
	"collusion_ring":     {riskMultiplier: 2.4, typicalDetectionDays: 60},
	"misrepresentation":  {riskMultiplier: 1.0, typicalDetectionDays: 35},
	"synthetic_identity": {riskMultiplier: 2.3, typicalDetectionDays: 42},
}

// lineMultipliers scales valuations per line of business.
var lineMultipliers = map[string]float64{
	"auto":       1.0,
	"property":   1.3,
	"health":     1.6,
	"life":       2.0,
	"commercial": 1.8,
}

// genericHorizonDays is the fixed valuation horizon for the generic context.
const genericHorizonDays = 14

// Calculator computes ROI valuations.
type Calculator struct{}

// NewCalculator creates an ROI calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Calculate values an investigation for the given fraud type, business
// context, line of business, detected amount, and complexity.
func (c *Calculator) Calculate(fraudType string, context domain.BusinessContext, lineOfBusiness string, amount float64, complexity domain.Complexity) (*domain.ROIResult, error) {
	profile, ok := fraudProfiles[fraudType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownFraudType, fraudType)
	}

	lineMult, ok := lineMultipliers[lineOfBusiness]
	if !ok {
		return nil, fmt.Errorf("%w: unknown line of business %q", domain.ErrInvalidInput, lineOfBusiness)
	}

	eff, ok := effortTable[complexity]
	if !ok {
		return nil, fmt.Errorf("%w: unknown complexity %q", domain.ErrInvalidInput, complexity)
	}

	if amount < 0 {
		return nil, fmt.Errorf("%w: amount must be non-negative", domain.ErrInvalidInput)
	}

	amt := decimal.NewFromFloat(amount)
	line := decimal.NewFromFloat(lineMult)

	humanCost := decimal.NewFromInt(eff.analystHours).Mul(rateAnalyst).
		Add(decimal.NewFromInt(eff.investigatorHours).Mul(rateInvestigator)).
		Add(decimal.NewFromInt(eff.expertHours).Mul(rateExpert))

	opportunityCost := decimal.NewFromInt(eff.investigationDays).
		Mul(decimal.NewFromFloat(0.1)).
		Mul(humanCost)

	totalCost := humanCost.Add(technologyCost).Add(opportunityCost)

	var (
		benefit     decimal.Decimal
		paybackDays float64
		horizonDays int
	)

	switch context {
	case domain.ContextSubscription:
		benefit = subscriptionBenefit(amt, line, profile)
		paybackDays = 0.8 * profile.typicalDetectionDays
		horizonDays = int(profile.typicalDetectionDays)
	case domain.ContextClaim:
		benefit = claimBenefit(amt, line)
		paybackDays = 0.3 * profile.typicalDetectionDays
		horizonDays = int(profile.typicalDetectionDays)
	case domain.ContextManagement:
		sub := subscriptionBenefit(amt, line, profile)
		clm := claimBenefit(amt, line)
		benefit = sub.Add(clm).Div(decimal.NewFromInt(2)).Mul(decimal.NewFromFloat(0.7))
		paybackDays = 0.5 * profile.typicalDetectionDays
		horizonDays = int(profile.typicalDetectionDays)
	case domain.ContextGeneric:
		benefit = amt.Mul(line).Mul(decimal.NewFromInt(2))
		paybackDays = genericHorizonDays
		horizonDays = genericHorizonDays
	default:
		return nil, fmt.Errorf("%w: unknown business context %q", domain.ErrInvalidInput, context)
	}

	netROI := benefit.Sub(totalCost)
	ratio := netROI.Div(totalCost).InexactFloat64()

	return &domain.ROIResult{
		FraudType:       fraudType,
		Context:         context,
		LineOfBusiness:  lineOfBusiness,
		Amount:          amt,
		Complexity:      complexity,
		HumanCost:       humanCost,
		TechnologyCost:  technologyCost,
		OpportunityCost: opportunityCost,
		TotalCost:       totalCost,
		Benefit:         benefit,
		NetROI:          netROI,
		Ratio:           ratio,
		PaybackDays:     paybackDays,
		HorizonDays:     horizonDays,
	}, nil
}

// subscriptionBenefit values prevented premium leakage plus retained
// customer lifetime value, scaled by the fraud type's risk multiplier.
func subscriptionBenefit(amount, line decimal.Decimal, profile fraudProfile) decimal.Decimal {
	premiumAtRisk := amount.Mul(annualPremiumFactor).Mul(line)
	lifetimeValue := premiumAtRisk.Mul(lifetimeValueFactor)
	return premiumAtRisk.Add(lifetimeValue).Mul(decimal.NewFromFloat(profile.riskMultiplier))
}

// claimBenefit values the immediate recovery plus fixed deterrence,
// recovery-process, and brand-protection uplifts.
func claimBenefit(amount, line decimal.Decimal) decimal.Decimal {
	immediateRecovery := amount.Mul(line)
	uplift := decimal.NewFromInt(1).
		Add(decimal.NewFromFloat(0.15)).
		Add(decimal.NewFromFloat(0.20)).
		Add(brandProtectionRate)
	return immediateRecovery.Mul(uplift)
}

// KnownFraudTypes returns the recognized fraud type names, for validation
// surfaces and docs.
func KnownFraudTypes() []string {
	types := make([]string, 0, len(fraudProfiles))
	for t := range fraudProfiles {
		types = append(types, t)
	}
	return types
}

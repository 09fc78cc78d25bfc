package domain

import (
	"github.com/shopspring/decimal"
)

// BusinessContext identifies where in the business a fraud was found.
// The ROI benefit model differs per context.
type BusinessContext string

const (
	ContextSubscription BusinessContext = "subscription"
	ContextClaim        BusinessContext = "claim"
	ContextManagement   BusinessContext = "management"
	ContextGeneric      BusinessContext = "generic"
)

// Complexity grades the expected investigation effort.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// ROIResult is the computed return-on-investigation valuation. It is not a
// stored entity: identical inputs always produce an identical result.
type ROIResult struct {
	FraudType      string          `json:"fraudType"`
	Context        BusinessContext `json:"context"`
	LineOfBusiness string          `json:"lineOfBusiness"`
	Amount         decimal.Decimal `json:"amount"`
	Complexity     Complexity      `json:"complexity"`

	HumanCost       decimal.Decimal `json:"humanCost"`
	TechnologyCost  decimal.Decimal `json:"technologyCost"`
	OpportunityCost decimal.Decimal `json:"opportunityCost"`
	TotalCost       decimal.Decimal `json:"totalCost"`

	Benefit decimal.Decimal `json:"benefit"`
	NetROI  decimal.Decimal `json:"netRoi"`

	// Ratio is NetROI / TotalCost.
	Ratio float64 `json:"ratio"`

	PaybackDays float64 `json:"paybackDays"`
	HorizonDays int     `json:"horizonDays"`
}

// ROIRequest is the API request payload for POST /roi.
type ROIRequest struct {
	FraudType      string  `json:"fraudType"`
	Context        string  `json:"context"`
	LineOfBusiness string  `json:"lineOfBusiness"`
	Amount         float64 `json:"amount"`
	Complexity     string  `json:"complexity"`
}

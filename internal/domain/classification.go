package domain

import (
	"time"
)

// RiskLevel is the four-level classification taxonomy.
// It is intentionally distinct from the six-level SeverityLevel used for
// risk entities; the two scales are not interchangeable.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// GenericCatalogID is the sentinel catalog id used when no typology matches.
const GenericCatalogID = "generic"

// RiskLevelFromScore buckets an anomaly score into the four-level taxonomy.
func RiskLevelFromScore(score float64) RiskLevel {
	switch {
	case score >= 85:
		return RiskCritical
	case score >= 70:
		return RiskHigh
	case score >= 50:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Bump raises a risk level one step, saturating at critical.
func (l RiskLevel) Bump() RiskLevel {
	switch l {
	case RiskLow:
		return RiskMedium
	case RiskMedium:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// ClassificationResult is the immutable outcome of classifying one detection.
type ClassificationResult struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	DetectionID string `json:"detectionId"`

	// CatalogID is the matched typology, or GenericCatalogID on fallback.
	CatalogID string `json:"catalogId"`

	Confidence     float64  `json:"confidence"` // 0.0 - 1.0
	Score          float64  `json:"score"`      // original anomaly score
	TriggeredRules []string `json:"triggeredRules,omitempty"`

	RiskLevel      RiskLevel `json:"riskLevel"`
	BusinessImpact RiskLevel `json:"businessImpact"`

	Team           string  `json:"team"`
	EstimatedHours float64 `json:"estimatedHours"`

	EscalationRequired bool `json:"escalationRequired"`

	// SLADeadline is a computed value; enforcement is external.
	SLADeadline  time.Time `json:"slaDeadline"`
	ClassifiedAt time.Time `json:"classifiedAt"`
}

// ClassificationResponse is the API response for POST /classify.
type ClassificationResponse struct {
	ClassificationID   string    `json:"classificationId"`
	DetectionID        string    `json:"detectionId"`
	CatalogID          string    `json:"catalogId"`
	RiskLevel          RiskLevel `json:"riskLevel"`
	BusinessImpact     RiskLevel `json:"businessImpact"`
	Confidence         float64   `json:"confidence"`
	Team               string    `json:"team"`
	EstimatedHours     float64   `json:"estimatedHours"`
	EscalationRequired bool      `json:"escalationRequired"`
	SLADeadline        time.Time `json:"slaDeadline"`
	TriggeredRules     []string  `json:"triggeredRules,omitempty"`
	Metadata           struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

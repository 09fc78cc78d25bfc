package domain

import (
	"time"
)

// SeverityLevel is the six-level taxonomy for risk entities.
// Distinct from the four-level RiskLevel used by classification results.
type SeverityLevel string

const (
	SeverityVeryLow  SeverityLevel = "very_low"
	SeverityLow      SeverityLevel = "low"
	SeverityMedium   SeverityLevel = "medium"
	SeverityHigh     SeverityLevel = "high"
	SeverityVeryHigh SeverityLevel = "very_high"
	SeverityCritical SeverityLevel = "critical"
)

// SeverityFromScore buckets a final score into the six-level taxonomy.
func SeverityFromScore(score float64) SeverityLevel {
	switch {
	case score >= 90:
		return SeverityCritical
	case score >= 75:
		return SeverityVeryHigh
	case score >= 60:
		return SeverityHigh
	case score >= 40:
		return SeverityMedium
	case score >= 20:
		return SeverityLow
	default:
		return SeverityVeryLow
	}
}

// EntityStatus is the lifecycle state of a risk entity.
type EntityStatus string

const (
	StatusDetected      EntityStatus = "detected"
	StatusInvestigating EntityStatus = "investigating"
	StatusMitigated     EntityStatus = "mitigated"
	StatusAccepted      EntityStatus = "accepted"
	StatusClosed        EntityStatus = "closed"
)

// validTransitions maps each status to its allowed successors.
// closed is terminal and has no outgoing transitions.
var validTransitions = map[EntityStatus][]EntityStatus{
	StatusDetected:      {StatusInvestigating, StatusClosed},
	StatusInvestigating: {StatusMitigated, StatusAccepted, StatusClosed},
	StatusMitigated:     {StatusClosed},
	StatusAccepted:      {StatusClosed},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to EntityStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ComponentScores holds the four scoring dimensions, each 0-100.
type ComponentScores struct {
	Behavioral    float64 `json:"behavioral"`
	Transactional float64 `json:"transactional"`
	Network       float64 `json:"network"`
	Historical    float64 `json:"historical"`
}

// AdjustmentFactors holds the five signed multipliers applied to the base
// score. Positive values raise the adjusted score, negative values lower it.
type AdjustmentFactors struct {
	Velocity     float64 `json:"velocity"`
	Geographic   float64 `json:"geographic"`
	Seasonal     float64 `json:"seasonal"`
	Intelligence float64 `json:"intelligence"`
	Recidivism   float64 `json:"recidivism"`
}

// Sum returns the total signed adjustment.
func (a AdjustmentFactors) Sum() float64 {
	return a.Velocity + a.Geographic + a.Seasonal + a.Intelligence + a.Recidivism
}

// QualityMetrics holds the four data-quality measures, each in [0,1].
type QualityMetrics struct {
	Completeness float64 `json:"completeness"`
	Reliability  float64 `json:"reliability"`
	Timeliness   float64 `json:"timeliness"`
	Consistency  float64 `json:"consistency"`
}

// Mean returns the average of the four quality metrics.
func (q QualityMetrics) Mean() float64 {
	return (q.Completeness + q.Reliability + q.Timeliness + q.Consistency) / 4
}

// Scoring is the full scoring block of a risk entity.
type Scoring struct {
	Base       float64           `json:"base"`
	Adjusted   float64           `json:"adjusted"`
	Final      float64           `json:"final"`
	Confidence float64           `json:"confidence"`
	Components ComponentScores   `json:"components"`
	Factors    AdjustmentFactors `json:"factors"`
	Quality    QualityMetrics    `json:"quality"`
}

// ScoreRecord is one append-only history entry. History grows by exactly one
// record each time the final score changes and is never rewritten.
type ScoreRecord struct {
	Timestamp time.Time     `json:"timestamp"`
	Score     float64       `json:"score"`
	Level     SeverityLevel `json:"level"`
	Reason    string        `json:"reason"`
	Actor     string        `json:"actor"`
}

// Approval records an explicit sign-off required for high-severity entities
// before they may leave the detected state.
type Approval struct {
	Approver  string    `json:"approver"`
	Timestamp time.Time `json:"timestamp"`
}

// RiskEntity is a long-lived, mutable record of an open risk investigation.
type RiskEntity struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	SubjectID string `json:"subjectId"`
	Category  string `json:"category"`

	Level  SeverityLevel `json:"level"`
	Status EntityStatus  `json:"status"`

	Scoring Scoring       `json:"scoring"`
	History []ScoreRecord `json:"history"`

	EvidenceIDs   []string `json:"evidenceIds,omitempty"`
	MitigationIDs []string `json:"mitigationIds,omitempty"`

	RequiresApproval bool      `json:"requiresApproval"`
	Approval         *Approval `json:"approval,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Closed reports whether the entity has reached its terminal state.
func (e *RiskEntity) Closed() bool {
	return e.Status == StatusClosed
}

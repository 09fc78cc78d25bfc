package domain

import (
	"time"
)

// AlertContext carries the alert attributes that shape an investigation plan.
type AlertContext struct {
	Severity   RiskLevel `json:"severity"`
	Confidence float64   `json:"confidence"`
}

// PlanStep is one task in an investigation plan, with severity-adjusted hours.
type PlanStep struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Role      string   `json:"role"`
	Hours     float64  `json:"hours"`
	DependsOn []string `json:"dependsOn,omitempty"`
	Mandatory bool     `json:"mandatory"`
}

// InvestigationPlan is an executable task plan derived from a catalog
// playbook and an alert's severity and confidence.
type InvestigationPlan struct {
	CatalogID string     `json:"catalogId"`
	Steps     []PlanStep `json:"steps"`

	// CriticalPath is the ordered ids of the mandatory steps.
	CriticalPath []string `json:"criticalPath"`

	// ParallelTracks groups steps that can run concurrently. Steps with no
	// declared dependencies form a single track.
	ParallelTracks [][]string `json:"parallelTracks"`

	TotalHours  float64   `json:"totalHours"`
	GeneratedAt time.Time `json:"generatedAt"`
}

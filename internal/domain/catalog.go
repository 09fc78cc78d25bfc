package domain

import (
	"fmt"
	"time"
)

// SourceTag identifies the detection pipeline that produced a signal.
type SourceTag string

// Known source taxonomies. Catalog entries and detections share this set.
const (
	SourceCyber       SourceTag = "cyber"
	SourceAML         SourceTag = "aml"
	SourceDocumentary SourceTag = "documentary"
	SourceBehavioral  SourceTag = "behavioral"
)

// CatalogEntry is a named fraud typology definition.
// Entries are created by administrative action and are read-only to the engine.
type CatalogEntry struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Version     string    `json:"version"`
	Source      SourceTag `json:"source"`

	// Districts lists the business districts this typology applies to.
	Districts []string `json:"districts"`

	// Severity range observed for this typology, low <= high, 0-100 scale.
	SeverityLow  float64 `json:"severityLow"`
	SeverityHigh float64 `json:"severityHigh"`

	Rules      []DetectionRule    `json:"rules"`
	Playbook   Playbook           `json:"playbook"`
	Governance GovernancePolicy   `json:"governance"`
	Metrics    PerformanceMetrics `json:"metrics"`

	// SLAHours is the target resolution window for classified detections.
	SLAHours int `json:"slaHours"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// DetectionRule is a threshold test belonging to exactly one catalog entry.
// A rule is triggered by a signal iff score >= Threshold AND
// confidence >= RequiredConfidence AND its optional Condition holds.
type DetectionRule struct {
	ID                 string  `json:"id"`
	Threshold          float64 `json:"threshold"`
	RequiredConfidence float64 `json:"requiredConfidence"`
	EscalationScore    float64 `json:"escalationScore"`
	Team               string  `json:"team"`

	// Contexts restricts the rule to specific business contexts.
	// Empty means the rule applies everywhere.
	Contexts []string `json:"contexts,omitempty"`

	// Condition is an optional CEL expression over the detection signal.
	// Empty means only the threshold and confidence checks apply.
	Condition string `json:"condition,omitempty"`

	Enabled bool `json:"enabled"`
}

// AppliesTo reports whether the rule is active for the given business context.
func (r *DetectionRule) AppliesTo(context string) bool {
	if !r.Enabled {
		return false
	}
	if len(r.Contexts) == 0 {
		return true
	}
	for _, c := range r.Contexts {
		if c == context {
			return true
		}
	}
	return false
}

// GovernancePolicy captures the audit and retention requirements of an entry.
type GovernancePolicy struct {
	AuditLevel     string   `json:"auditLevel"` // "standard", "enhanced", "regulatory"
	RegulatoryTags []string `json:"regulatoryTags,omitempty"`
	RetentionDays  int      `json:"retentionDays"`
}

// PerformanceMetrics holds rolling effectiveness figures for an entry.
type PerformanceMetrics struct {
	SuccessRate      float64 `json:"successRate"`      // 0.0 - 1.0
	AvgDurationHours float64 `json:"avgDurationHours"` // historical investigation time
}

// Playbook is the ordered investigation procedure attached to a catalog entry.
type Playbook struct {
	Steps []PlaybookStep `json:"steps"`
}

// PlaybookStep is one investigation task within a playbook.
type PlaybookStep struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Role      string   `json:"role"`
	BaseHours float64  `json:"baseHours"`
	DependsOn []string `json:"dependsOn,omitempty"`
	Mandatory bool     `json:"mandatory"`
}

// Validate checks the catalog entry invariants: at least one district,
// at least one detection rule, and a coherent severity range.
func (e *CatalogEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: catalog entry id is required", ErrInvalidInput)
	}
	if len(e.Districts) == 0 {
		return fmt.Errorf("%w: catalog entry %s has no districts", ErrInvalidInput, e.ID)
	}
	if len(e.Rules) == 0 {
		return fmt.Errorf("%w: catalog entry %s has no detection rules", ErrInvalidInput, e.ID)
	}
	if e.SeverityLow > e.SeverityHigh {
		return fmt.Errorf("%w: catalog entry %s severity range inverted", ErrInvalidInput, e.ID)
	}
	return nil
}

// CoversDistrict reports whether the entry applies to the given district.
func (e *CatalogEntry) CoversDistrict(district string) bool {
	for _, d := range e.Districts {
		if d == district {
			return true
		}
	}
	return false
}

// Package plan builds executable investigation plans from catalog playbooks.
package plan

import (
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// lowConfidenceThreshold marks alerts whose uncertainty inflates every step.
const lowConfidenceThreshold = 0.6

// Builder derives investigation plans from loaded catalog playbooks.
type Builder struct {
	catalog *catalog.Catalog
}

// NewBuilder creates a plan builder over the given catalog.
func NewBuilder(cat *catalog.Catalog) *Builder {
	return &Builder{catalog: cat}
}

// Build produces an investigation plan for a catalog entry under the given
// alert context. Step hours scale with severity (x1.5 critical, x1.2 high)
// and with low confidence (x1.3 below 0.6); the multipliers compose.
func (b *Builder) Build(catalogEntryID string, alert domain.AlertContext) (*domain.InvestigationPlan, error) {
	entry, ok := b.catalog.Get(catalogEntryID)
	if !ok {
		return nil, fmt.Errorf("%w: catalog entry %s", domain.ErrNotFound, catalogEntryID)
	}

	multiplier := 1.0
	switch alert.Severity {
	case domain.RiskCritical:
		multiplier = 1.5
	case domain.RiskHigh:
		multiplier = 1.2
	}
	if alert.Confidence < lowConfidenceThreshold {
		multiplier *= 1.3
	}

	plan := &domain.InvestigationPlan{
		CatalogID:   entry.ID,
		Steps:       make([]domain.PlanStep, 0, len(entry.Playbook.Steps)),
		GeneratedAt: time.Now().UTC(),
	}

	var parallel []string
	for _, ps := range entry.Playbook.Steps {
		step := domain.PlanStep{
			ID:        ps.ID,
			Name:      ps.Name,
			Role:      ps.Role,
			Hours:     ps.BaseHours * multiplier,
			DependsOn: ps.DependsOn,
			Mandatory: ps.Mandatory,
		}
		plan.Steps = append(plan.Steps, step)
		plan.TotalHours += step.Hours

		if ps.Mandatory {
			plan.CriticalPath = append(plan.CriticalPath, ps.ID)
		}
		if len(ps.DependsOn) == 0 {
			parallel = append(parallel, ps.ID)
		}
	}

	// Dependency-free steps can all start at once and form one track.
	if len(parallel) > 0 {
		plan.ParallelTracks = append(plan.ParallelTracks, parallel)
	}

	return plan, nil
}

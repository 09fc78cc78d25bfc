// Package correlate discovers pairwise relationships between the risk
// entities of a single subject. Detection is subject-scoped by design:
// the O(n²) pass runs only over one subject's entities.
package correlate

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	// temporalWindowDays bounds how far apart two entities may be created
	// and still correlate temporally.
	temporalWindowDays = 7.0

	// minStrength floors the temporal correlation strength.
	minStrength = 0.3

	// temporalConfidence is the fixed confidence assigned to temporal
	// correlations. A heuristic constant, not a calibrated probability.
	temporalConfidence = 0.7
)

// Detector finds correlations between a subject's risk entities.
type Detector struct {
	repo     domain.Repository
	cache    domain.Cache
	cacheTTL time.Duration
}

// NewDetector creates a detector. cache may be nil to disable caching.
func NewDetector(repo domain.Repository, cache domain.Cache, cacheTTL time.Duration) *Detector {
	return &Detector{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// DetectCorrelations returns the correlations among a subject's risk
// entities. It returns an empty slice when the subject has fewer than two
// entities; repository failures are the only error path.
func (d *Detector) DetectCorrelations(ctx context.Context, tenantID, subjectID string) ([]domain.Correlation, error) {
	if d.cache != nil && d.cacheTTL > 0 {
		cached, err := d.cache.GetCorrelations(ctx, tenantID, subjectID)
		if err == nil && cached != nil {
			return cached, nil
		}
	}

	entities, err := d.repo.ListRiskEntitiesBySubject(ctx, tenantID, subjectID)
	if err != nil {
		return nil, err
	}

	correlations := Correlate(entities)

	if d.cache != nil && d.cacheTTL > 0 {
		_ = d.cache.SetCorrelations(ctx, tenantID, subjectID, correlations, d.cacheTTL)
	}

	return correlations, nil
}

// Invalidate drops any cached correlations for a subject. Called when a new
// risk entity is created for it.
func (d *Detector) Invalidate(ctx context.Context, tenantID, subjectID string) {
	if d.cache != nil {
		_ = d.cache.Delete(ctx, tenantID, "corr:"+subjectID)
	}
}

// Correlate runs the pairwise detection over a set of entities belonging to
// one subject. Pure with respect to its input; exported for direct testing.
//
// Two entities correlate temporally when they share a category and were
// created within temporalWindowDays of each other. One correlation is
// emitted per unordered pair, with the lexically smaller id as primary, so
// the pair surfaces identically from either entity's perspective.
func Correlate(entities []*domain.RiskEntity) []domain.Correlation {
	correlations := make([]domain.Correlation, 0)
	if len(entities) < 2 {
		return correlations
	}

	sorted := make([]*domain.RiskEntity, len(entities))
	copy(sorted, entities)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			a, b := sorted[i], sorted[j]
			if a.Category != b.Category {
				continue
			}

			daysDiff := math.Abs(a.CreatedAt.Sub(b.CreatedAt).Hours()) / 24
			if daysDiff > temporalWindowDays {
				continue
			}

			correlations = append(correlations, domain.Correlation{
				PrimaryID:  a.ID,
				RelatedIDs: []string{b.ID},
				Type:       domain.CorrelationTemporal,
				Strength:   math.Max(minStrength, 1-daysDiff/temporalWindowDays),
				Confidence: temporalConfidence,
				LagDays:    daysDiff,
			})
		}
	}

	return correlations
}

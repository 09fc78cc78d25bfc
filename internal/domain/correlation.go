package domain

// CorrelationType classifies how two risk entities are related.
type CorrelationType string

const (
	CorrelationTemporal    CorrelationType = "temporal"
	CorrelationCategorical CorrelationType = "categorical"
	CorrelationNetwork     CorrelationType = "network"
)

// Correlation is a derived relationship between risk entities of one subject.
// It is owned by neither entity: correlations are recomputed on demand and
// only ever persisted as an explicit cache entry.
type Correlation struct {
	PrimaryID  string          `json:"primaryId"`
	RelatedIDs []string        `json:"relatedIds"`
	Type       CorrelationType `json:"type"`
	Strength   float64         `json:"strength"`   // 0.0 - 1.0
	Confidence float64         `json:"confidence"` // 0.0 - 1.0
	LagDays    float64         `json:"lagDays"`
}

// Involves reports whether the correlation references the given entity id.
func (c *Correlation) Involves(entityID string) bool {
	if c.PrimaryID == entityID {
		return true
	}
	for _, id := range c.RelatedIDs {
		if id == entityID {
			return true
		}
	}
	return false
}

// Package risk implements risk entity scoring, the entity state machine,
// and the append-only score history.
package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Scorer applies composite scores to risk entities. Mutations to a single
// entity are serialized through a per-entity lock so the score history stays
// strictly append-only and time-ordered.
type Scorer struct {
	repo domain.Repository

	mu    sync.Mutex
	locks map[string]*sync.Mutex // key: tenantID + "/" + entityID
}

// NewScorer creates a scorer backed by the given repository.
func NewScorer(repo domain.Repository) *Scorer {
	return &Scorer{
		repo:  repo,
		locks: make(map[string]*sync.Mutex),
	}
}

// entityLock returns the mutex serializing writes for one entity.
func (s *Scorer) entityLock(tenantID, entityID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tenantID + "/" + entityID
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// CreateEntity creates a risk entity from a confirmed classification.
// The entity starts in the detected state; entities landing at very_high or
// critical severity require approval before they may leave it.
func (s *Scorer) CreateEntity(ctx context.Context, tenantID string, subjectID, category string, scoring domain.Scoring, actor string) (*domain.RiskEntity, error) {
	if tenantID == "" || subjectID == "" {
		return nil, fmt.Errorf("%w: tenantID and subjectID are required", domain.ErrInvalidInput)
	}

	now := time.Now().UTC()
	scoring = computeScoring(scoring)
	level := domain.SeverityFromScore(scoring.Final)

	entity := &domain.RiskEntity{
		ID:               uuid.New().String(),
		TenantID:         tenantID,
		SubjectID:        subjectID,
		Category:         category,
		Level:            level,
		Status:           domain.StatusDetected,
		Scoring:          scoring,
		RequiresApproval: level == domain.SeverityVeryHigh || level == domain.SeverityCritical,
		History: []domain.ScoreRecord{{
			Timestamp: now,
			Score:     scoring.Final,
			Level:     level,
			Reason:    "initial score",
			Actor:     actor,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.SaveRiskEntity(ctx, tenantID, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// ApplyScore recomputes an entity's score from fresh component, adjustment
// and quality inputs. A history record is appended only when the final score
// actually changes. Closed entities reject all score mutations.
func (s *Scorer) ApplyScore(ctx context.Context, tenantID, entityID string, components domain.ComponentScores, factors domain.AdjustmentFactors, quality domain.QualityMetrics, actor, reason string) (*domain.RiskEntity, error) {
	if tenantID == "" || entityID == "" {
		return nil, fmt.Errorf("%w: tenantID and entityID are required", domain.ErrInvalidInput)
	}

	lock := s.entityLock(tenantID, entityID)
	lock.Lock()
	defer lock.Unlock()

	entity, err := s.repo.GetRiskEntity(ctx, tenantID, entityID)
	if err != nil {
		return nil, err
	}

	if entity.Closed() {
		return nil, fmt.Errorf("%w: entity %s is closed", domain.ErrInvalidStateTransition, entityID)
	}

	scoring := computeScoring(domain.Scoring{
		Confidence: entity.Scoring.Confidence,
		Components: components,
		Factors:    factors,
		Quality:    quality,
	})

	now := time.Now().UTC()
	previous := entity.Scoring.Final
	entity.Scoring = scoring
	entity.UpdatedAt = now

	if scoring.Final != previous {
		level := domain.SeverityFromScore(scoring.Final)
		entity.Level = level
		if reason == "" {
			reason = "score recomputed"
		}
		entity.History = append(entity.History, domain.ScoreRecord{
			Timestamp: now,
			Score:     scoring.Final,
			Level:     level,
			Reason:    reason,
			Actor:     actor,
		})
	}

	if err := s.repo.SaveRiskEntity(ctx, tenantID, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// Approve records an explicit approval on an entity, enabling transitions
// out of the detected state for very_high/critical entities.
func (s *Scorer) Approve(ctx context.Context, tenantID, entityID, approver string) (*domain.RiskEntity, error) {
	lock := s.entityLock(tenantID, entityID)
	lock.Lock()
	defer lock.Unlock()

	entity, err := s.repo.GetRiskEntity(ctx, tenantID, entityID)
	if err != nil {
		return nil, err
	}
	if entity.Closed() {
		return nil, fmt.Errorf("%w: entity %s is closed", domain.ErrInvalidStateTransition, entityID)
	}

	entity.Approval = &domain.Approval{
		Approver:  approver,
		Timestamp: time.Now().UTC(),
	}
	entity.UpdatedAt = entity.Approval.Timestamp

	if err := s.repo.SaveRiskEntity(ctx, tenantID, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// Transition moves an entity through its lifecycle state machine:
// detected → investigating → {mitigated, accepted}; any non-closed state may
// move to closed, which is terminal.
func (s *Scorer) Transition(ctx context.Context, tenantID, entityID string, to domain.EntityStatus, actor string) (*domain.RiskEntity, error) {
	lock := s.entityLock(tenantID, entityID)
	lock.Lock()
	defer lock.Unlock()

	entity, err := s.repo.GetRiskEntity(ctx, tenantID, entityID)
	if err != nil {
		return nil, err
	}

	if !domain.CanTransition(entity.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStateTransition, entity.Status, to)
	}

	// High-severity entities need a recorded approval before leaving detected.
	if entity.Status == domain.StatusDetected && to != domain.StatusClosed &&
		entity.RequiresApproval && entity.Approval == nil {
		return nil, fmt.Errorf("%w: entity %s", domain.ErrApprovalRequired, entityID)
	}

	entity.Status = to
	entity.UpdatedAt = time.Now().UTC()

	if err := s.repo.SaveRiskEntity(ctx, tenantID, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// Get returns an entity by id.
func (s *Scorer) Get(ctx context.Context, tenantID, entityID string) (*domain.RiskEntity, error) {
	return s.repo.GetRiskEntity(ctx, tenantID, entityID)
}

// computeScoring derives base, adjusted and final scores:
//
//	base     = mean(component scores)
//	adjusted = clamp(base * (1 + sum(adjustment factors)), 0, 100)
//	final    = clamp(adjusted * (0.5 + 0.5*mean(quality metrics)), 0, 100)
func computeScoring(in domain.Scoring) domain.Scoring {
	c := in.Components
	in.Base = (c.Behavioral + c.Transactional + c.Network + c.Historical) / 4
	in.Adjusted = clamp(in.Base*(1+in.Factors.Sum()), 0, 100)
	in.Final = clamp(in.Adjusted*(0.5+0.5*in.Quality.Mean()), 0, 100)
	return in
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

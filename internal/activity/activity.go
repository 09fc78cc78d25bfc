// Package activity provides subject activity counting.
package activity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// countCacheTTL bounds how stale a cached activity count may be.
const countCacheTTL = time.Minute

// Service counts recent risk entities per subject. It backs the prior_count
// variable available to catalog rule conditions.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new activity service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// CountRecentEntities returns the number of risk entities recorded for a
// subject within the lookback window.
func (s *Service) CountRecentEntities(ctx context.Context, tenantID, subjectID string, windowDays int) (int64, error) {
	if tenantID == "" || subjectID == "" {
		return 0, fmt.Errorf("%w: tenantID and subjectID are required", domain.ErrInvalidInput)
	}

	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	key := fmt.Sprintf("activity:%s:%d", subjectID, windowDays)

	// A short-lived cached count keeps hot subjects off the database. Staleness
	// is bounded by countCacheTTL, acceptable for a prior-activity signal.
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, tenantID, key); err == nil && raw != nil {
			if n, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
				return n, nil
			}
		}
	}

	if s.repo == nil {
		return 0, fmt.Errorf("no repository configured")
	}

	count, err := s.repo.CountRiskEntitiesBySubject(ctx, tenantID, subjectID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count risk entities: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, tenantID, key, []byte(strconv.FormatInt(count, 10)), countCacheTTL)
	}
	return count, nil
}

// Getter returns the ActivityGetter function consumed by the classifier.
func (s *Service) Getter() func(ctx context.Context, tenantID, subjectID string, windowDays int) (int64, error) {
	return s.CountRecentEntities
}

package risk

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "scorer-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return NewScorer(repo)
}

func mediumScoring() domain.Scoring {
	return domain.Scoring{
		Confidence: 0.8,
		Components: domain.ComponentScores{Behavioral: 60, Transactional: 50, Network: 40, Historical: 30},
		Quality:    domain.QualityMetrics{Completeness: 1, Reliability: 1, Timeliness: 1, Consistency: 1},
	}
}

func criticalScoring() domain.Scoring {
	return domain.Scoring{
		Confidence: 0.9,
		Components: domain.ComponentScores{Behavioral: 95, Transactional: 95, Network: 95, Historical: 95},
		Quality:    domain.QualityMetrics{Completeness: 1, Reliability: 1, Timeliness: 1, Consistency: 1},
	}
}

func TestComputeScoring(t *testing.T) {
	tests := []struct {
		name         string
		in           domain.Scoring
		wantBase     float64
		wantAdjusted float64
		wantFinal    float64
	}{
		{
			name:         "PerfectQualityNoFactors",
			in:           mediumScoring(),
			wantBase:     45,
			wantAdjusted: 45,
			wantFinal:    45,
		},
		{
			name: "PositiveFactors",
			in: domain.Scoring{
				Components: domain.ComponentScores{Behavioral: 40, Transactional: 40, Network: 40, Historical: 40},
				Factors:    domain.AdjustmentFactors{Velocity: 0.2, Geographic: 0.3},
				Quality:    domain.QualityMetrics{Completeness: 1, Reliability: 1, Timeliness: 1, Consistency: 1},
			},
			wantBase:     40,
			wantAdjusted: 60,
			wantFinal:    60,
		},
		{
			name: "NegativeFactorsClampAtZero",
			in: domain.Scoring{
				Components: domain.ComponentScores{Behavioral: 40, Transactional: 40, Network: 40, Historical: 40},
				Factors:    domain.AdjustmentFactors{Intelligence: -1.5},
				Quality:    domain.QualityMetrics{Completeness: 1, Reliability: 1, Timeliness: 1, Consistency: 1},
			},
			wantBase:     40,
			wantAdjusted: 0,
			wantFinal:    0,
		},
		{
			name: "AdjustedClampAtHundred",
			in: domain.Scoring{
				Components: domain.ComponentScores{Behavioral: 90, Transactional: 90, Network: 90, Historical: 90},
				Factors:    domain.AdjustmentFactors{Velocity: 0.5, Recidivism: 0.5},
				Quality:    domain.QualityMetrics{Completeness: 1, Reliability: 1, Timeliness: 1, Consistency: 1},
			},
			wantBase:     90,
			wantAdjusted: 100,
			wantFinal:    100,
		},
		{
			name: "PoorQualityHalvesScore",
			in: domain.Scoring{
				Components: domain.ComponentScores{Behavioral: 80, Transactional: 80, Network: 80, Historical: 80},
				Quality:    domain.QualityMetrics{},
			},
			wantBase:     80,
			wantAdjusted: 80,
			wantFinal:    40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeScoring(tt.in)
			if got.Base != tt.wantBase {
				t.Errorf("base: expected %f, got %f", tt.wantBase, got.Base)
			}
			if got.Adjusted != tt.wantAdjusted {
				t.Errorf("adjusted: expected %f, got %f", tt.wantAdjusted, got.Adjusted)
			}
			if got.Final != tt.wantFinal {
				t.Errorf("final: expected %f, got %f", tt.wantFinal, got.Final)
			}
		})
	}
}

func TestScorer(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("CreateEntity", func(t *testing.T) {
		s := newTestScorer(t)

		entity, err := s.CreateEntity(ctx, tenantID, "subj-001", "account_takeover", mediumScoring(), "analyst-1")
		if err != nil {
			t.Fatalf("CreateEntity failed: %v", err)
		}

		if entity.Status != domain.StatusDetected {
			t.Errorf("expected status detected, got %s", entity.Status)
		}
		if entity.Level != domain.SeverityMedium {
			t.Errorf("expected level medium for score 45, got %s", entity.Level)
		}
		if entity.RequiresApproval {
			t.Error("medium entity should not require approval")
		}
		if len(entity.History) != 1 {
			t.Fatalf("expected 1 history record, got %d", len(entity.History))
		}
		if entity.History[0].Score != 45 {
			t.Errorf("expected initial history score 45, got %f", entity.History[0].Score)
		}
	})

	t.Run("CreateCriticalRequiresApproval", func(t *testing.T) {
		s := newTestScorer(t)

		entity, err := s.CreateEntity(ctx, tenantID, "subj-002", "collusion_ring", criticalScoring(), "analyst-1")
		if err != nil {
			t.Fatalf("CreateEntity failed: %v", err)
		}
		if entity.Level != domain.SeverityCritical {
			t.Errorf("expected critical level, got %s", entity.Level)
		}
		if !entity.RequiresApproval {
			t.Error("critical entity should require approval")
		}
	})

	t.Run("RequiresSubjectID", func(t *testing.T) {
		s := newTestScorer(t)

		_, err := s.CreateEntity(ctx, tenantID, "", "x", mediumScoring(), "analyst-1")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("HistoryAppendsOnlyOnChange", func(t *testing.T) {
		s := newTestScorer(t)

		entity, err := s.CreateEntity(ctx, tenantID, "subj-003", "account_takeover", mediumScoring(), "analyst-1")
		if err != nil {
			t.Fatalf("CreateEntity failed: %v", err)
		}

		// Identical inputs produce the same final score: no new record.
		in := mediumScoring()
		updated, err := s.ApplyScore(ctx, tenantID, entity.ID, in.Components, in.Factors, in.Quality, "analyst-1", "recheck")
		if err != nil {
			t.Fatalf("ApplyScore failed: %v", err)
		}
		if len(updated.History) != 1 {
			t.Errorf("unchanged score must not append history, got %d records", len(updated.History))
		}

		// A changed score appends exactly one record.
		in.Components.Behavioral = 100
		updated, err = s.ApplyScore(ctx, tenantID, entity.ID, in.Components, in.Factors, in.Quality, "analyst-1", "new evidence")
		if err != nil {
			t.Fatalf("ApplyScore failed: %v", err)
		}
		if len(updated.History) != 2 {
			t.Fatalf("changed score must append history, got %d records", len(updated.History))
		}
		if updated.History[1].Reason != "new evidence" {
			t.Errorf("expected reason preserved, got %q", updated.History[1].Reason)
		}
		if updated.History[1].Score != updated.Scoring.Final {
			t.Errorf("history score %f does not match final %f", updated.History[1].Score, updated.Scoring.Final)
		}
	})

	t.Run("ClosedEntityRejectsScoring", func(t *testing.T) {
		s := newTestScorer(t)

		entity, _ := s.CreateEntity(ctx, tenantID, "subj-004", "account_takeover", mediumScoring(), "analyst-1")
		if _, err := s.Transition(ctx, tenantID, entity.ID, domain.StatusClosed, "analyst-1"); err != nil {
			t.Fatalf("Transition to closed failed: %v", err)
		}

		in := mediumScoring()
		_, err := s.ApplyScore(ctx, tenantID, entity.ID, in.Components, in.Factors, in.Quality, "analyst-1", "")
		if !errors.Is(err, domain.ErrInvalidStateTransition) {
			t.Errorf("expected ErrInvalidStateTransition for closed entity, got %v", err)
		}
	})

	t.Run("Lifecycle", func(t *testing.T) {
		s := newTestScorer(t)

		entity, _ := s.CreateEntity(ctx, tenantID, "subj-005", "account_takeover", mediumScoring(), "analyst-1")

		steps := []domain.EntityStatus{
			domain.StatusInvestigating,
			domain.StatusMitigated,
			domain.StatusClosed,
		}
		for _, to := range steps {
			if _, err := s.Transition(ctx, tenantID, entity.ID, to, "analyst-1"); err != nil {
				t.Fatalf("transition to %s failed: %v", to, err)
			}
		}

		// Closed is terminal.
		_, err := s.Transition(ctx, tenantID, entity.ID, domain.StatusInvestigating, "analyst-1")
		if !errors.Is(err, domain.ErrInvalidStateTransition) {
			t.Errorf("expected terminal state to reject transitions, got %v", err)
		}
	})

	t.Run("InvalidTransition", func(t *testing.T) {
		s := newTestScorer(t)

		entity, _ := s.CreateEntity(ctx, tenantID, "subj-006", "account_takeover", mediumScoring(), "analyst-1")

		_, err := s.Transition(ctx, tenantID, entity.ID, domain.StatusMitigated, "analyst-1")
		if !errors.Is(err, domain.ErrInvalidStateTransition) {
			t.Errorf("expected detected -> mitigated to be rejected, got %v", err)
		}
	})

	t.Run("ApprovalGate", func(t *testing.T) {
		s := newTestScorer(t)

		entity, _ := s.CreateEntity(ctx, tenantID, "subj-007", "collusion_ring", criticalScoring(), "analyst-1")

		_, err := s.Transition(ctx, tenantID, entity.ID, domain.StatusInvestigating, "analyst-1")
		if !errors.Is(err, domain.ErrApprovalRequired) {
			t.Fatalf("expected ErrApprovalRequired, got %v", err)
		}

		// Closing without approval is still allowed.
		other, _ := s.CreateEntity(ctx, tenantID, "subj-008", "collusion_ring", criticalScoring(), "analyst-1")
		if _, err := s.Transition(ctx, tenantID, other.ID, domain.StatusClosed, "analyst-1"); err != nil {
			t.Errorf("closing without approval should be allowed: %v", err)
		}

		approved, err := s.Approve(ctx, tenantID, entity.ID, "supervisor-1")
		if err != nil {
			t.Fatalf("Approve failed: %v", err)
		}
		if approved.Approval == nil || approved.Approval.Approver != "supervisor-1" {
			t.Fatal("expected approval to be recorded")
		}

		if _, err := s.Transition(ctx, tenantID, entity.ID, domain.StatusInvestigating, "analyst-1"); err != nil {
			t.Errorf("transition after approval failed: %v", err)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		s := newTestScorer(t)

		_, err := s.Get(ctx, tenantID, "no-such-entity")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

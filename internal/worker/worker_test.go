package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/classify"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestClassifier(t *testing.T) *classify.Classifier {
	t.Helper()

	cat := catalog.New()
	err := cat.Load([]*domain.CatalogEntry{
		{
			ID:           "cat-ato",
			Name:         "Account Takeover",
			Source:       domain.SourceCyber,
			Districts:    []string{"auto"},
			SeverityLow:  40,
			SeverityHigh: 95,
			Rules: []domain.DetectionRule{
				{ID: "r1", Threshold: 75, RequiredConfidence: 0.7, EscalationScore: 85, Team: "cyber-forensics", Enabled: true},
			},
			Enabled: true,
		},
	})
	if err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}

	classifier, err := classify.New(cat, nil, classify.Options{})
	if err != nil {
		t.Fatalf("failed to create classifier: %v", err)
	}
	return classifier
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	classifier := newTestClassifier(t)

	worker := NewWorker(eventBus, nil, classifier)

	t.Run("StartAndStop", func(t *testing.T) {
		cfg := Config{
			TenantIDs:   []string{"tenant-001"},
			WorkerCount: 1,
		}

		err := worker.Start(cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		err = worker.Stop()
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = worker.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessDetection", func(t *testing.T) {
		w := NewWorker(eventBus, nil, classifier)

		cfg := Config{
			TenantIDs: []string{"tenant-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track classification results
		var resultReceived atomic.Bool
		var resultPayload []byte

		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicClassificationCompleted, func(ctx context.Context, msg *domain.Message) error {
			resultPayload = msg.Payload
			resultReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		detMsg := DetectionMessage{
			DetectionID: "det-001",
			TenantID:    "tenant-test",
			TraceID:     "trace-001",
			SubjectID:   "subj-001",
			Source:      "cyber",
			District:    "auto",
			Context:     "claim",
			Score:       60,
			Confidence:  0.9,
		}

		payload, _ := json.Marshal(detMsg)
		err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicDetectionReceived, payload)
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(100 * time.Millisecond)

		if !resultReceived.Load() {
			t.Fatal("expected classification to be published")
		}

		var result domain.ClassificationResult
		if err := json.Unmarshal(resultPayload, &result); err != nil {
			t.Fatalf("failed to parse classification: %v", err)
		}

		if result.DetectionID != "det-001" {
			t.Errorf("expected detectionID 'det-001', got '%s'", result.DetectionID)
		}
		if result.TenantID != "tenant-test" {
			t.Errorf("expected tenantID 'tenant-test', got '%s'", result.TenantID)
		}
		if result.CatalogID != "cat-ato" {
			t.Errorf("expected catalog 'cat-ato', got '%s'", result.CatalogID)
		}
		if result.EscalationRequired {
			t.Error("score 60 should not trigger escalation")
		}
	})

	t.Run("EscalationPublished", func(t *testing.T) {
		w := NewWorker(eventBus, nil, classifier)

		cfg := Config{
			TenantIDs: []string{"tenant-esc"},
		}
		w.Start(cfg)
		defer w.Stop()

		var escalationReceived atomic.Bool

		eventBus.Subscribe(context.Background(), "tenant-esc", domain.TopicEscalationRaised, func(ctx context.Context, msg *domain.Message) error {
			escalationReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		// Score 90 with confidence 0.9 triggers r1 and clears its escalation score
		detMsg := DetectionMessage{
			TenantID:   "tenant-esc",
			SubjectID:  "subj-002",
			Source:     "cyber",
			District:   "auto",
			Context:    "claim",
			Score:      90,
			Confidence: 0.9,
		}

		payload, _ := json.Marshal(detMsg)
		eventBus.Publish(context.Background(), "tenant-esc", domain.TopicDetectionReceived, payload)

		time.Sleep(100 * time.Millisecond)

		if !escalationReceived.Load() {
			t.Error("expected escalation to be published for high-score detection")
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, nil, classifier)

		cfg := Config{
			TenantIDs: []string{"tenant-a", "tenant-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

// Package worker provides async detection processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/classify"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Worker processes detection signals asynchronously from the EventBus.
type Worker struct {
	bus        domain.EventBus
	repo       domain.Repository
	classifier *classify.Classifier

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// WorkerCount is the number of concurrent workers per tenant
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, classifier *classify.Classifier) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:        bus,
		repo:       repo,
		classifier: classifier,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicDetectionReceived, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicDetectionReceived, func(ctx context.Context, msg *domain.Message) error {
		return w.processDetection(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicDetectionReceived,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processDetection(ctx, msg.TenantID, msg)
}

// DetectionMessage is the message payload for detection processing.
type DetectionMessage struct {
	DetectionID  string         `json:"detectionId,omitempty"`
	TenantID     string         `json:"tenantId"`
	TraceID      string         `json:"traceId,omitempty"`
	SubjectID    string         `json:"subjectId"`
	Source       string         `json:"source"`
	District     string         `json:"district"`
	Context      string         `json:"context"`
	Score        float64        `json:"score"`
	Confidence   float64        `json:"confidence"`
	Amount       float64        `json:"amount,omitempty"`
	FindingCodes []string       `json:"findingCodes,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// processDetection classifies a detection signal through the pipeline.
func (w *Worker) processDetection(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var detMsg DetectionMessage
	if err := json.Unmarshal(msg.Payload, &detMsg); err != nil {
		slog.Error("failed to parse detection message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if detMsg.TenantID != "" {
		tenantID = detMsg.TenantID
	}

	traceID := detMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	det := &domain.Detection{
		ID:           detMsg.DetectionID,
		TenantID:     tenantID,
		SubjectID:    detMsg.SubjectID,
		Source:       domain.SourceTag(detMsg.Source),
		District:     detMsg.District,
		Context:      detMsg.Context,
		Score:        detMsg.Score,
		Confidence:   detMsg.Confidence,
		Amount:       detMsg.Amount,
		FindingCodes: detMsg.FindingCodes,
		Payload:      detMsg.Payload,
		ReceivedAt:   time.Now().UTC(),
	}
	if det.ID == "" {
		det.ID = uuid.New().String()
	}

	slog.Debug("processing detection",
		"detection_id", det.ID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	// 1. Classify
	result := w.classifier.Classify(ctx, det)

	// 2. Persist detection and classification
	if w.repo != nil {
		if err := w.repo.SaveDetection(ctx, tenantID, det); err != nil {
			slog.Error("failed to save detection",
				"detection_id", det.ID,
				"error", err,
			)
		}
		if err := w.repo.SaveClassification(ctx, tenantID, result); err != nil {
			slog.Error("failed to save classification",
				"classification_id", result.ID,
				"error", err,
			)
		}
	}

	// 3. Publish classification result
	resultPayload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicClassificationCompleted, resultPayload); err != nil {
		slog.Error("failed to publish classification",
			"classification_id", result.ID,
			"error", err,
		)
	}

	// 4. If escalation required, notify the workflow layer
	if result.EscalationRequired {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicEscalationRaised, resultPayload); err != nil {
			slog.Error("failed to publish escalation",
				"classification_id", result.ID,
				"error", err,
			)
		}
	}

	slog.Info("detection processed",
		"detection_id", det.ID,
		"tenant_id", tenantID,
		"catalog_id", result.CatalogID,
		"risk_level", result.RiskLevel,
		"escalation", result.EscalationRequired,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

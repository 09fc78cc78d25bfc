package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/classify"
	"github.com/opensource-finance/kestrel/internal/correlate"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/plan"
	"github.com/opensource-finance/kestrel/internal/risk"
	"github.com/opensource-finance/kestrel/internal/roi"
)

// GlobalTenantID is used for catalog entries that apply to all tenants.
const GlobalTenantID = "*"

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	catalog    *catalog.Catalog
	classifier *classify.Classifier
	scorer     *risk.Scorer
	detector   *correlate.Detector
	calculator *roi.Calculator
	planner    *plan.Builder
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		repo:       deps.Repo,
		cache:      deps.Cache,
		bus:        deps.Bus,
		catalog:    deps.Catalog,
		classifier: deps.Classifier,
		scorer:     deps.Scorer,
		detector:   deps.Detector,
		calculator: deps.Calculator,
		planner:    deps.Planner,
		version:    deps.Version,
	}
}

// Classify handles POST /classify requests: the synchronous decision path.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req domain.DetectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Source == "" || req.District == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "source and district are required",
		})
		return
	}
	if req.Score < 0 || req.Score > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "score must be between 0 and 100",
		})
		return
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "confidence must be between 0 and 1",
		})
		return
	}

	det := req.ToDetection()
	det.ID = uuid.New().String()
	det.TenantID = tenantID

	if h.repo != nil {
		// Persistence is best-effort; classification still proceeds.
		if err := h.repo.SaveDetection(ctx, tenantID, det); err != nil {
			slog.Error("failed to save detection", "detection_id", det.ID, "error", err)
		}
	}

	result := h.classifier.Classify(ctx, det)

	if h.repo != nil {
		if err := h.repo.SaveClassification(ctx, tenantID, result); err != nil {
			slog.Error("failed to save classification", "classification_id", result.ID, "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(result)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicClassificationCompleted, payload); err != nil {
			slog.Error("failed to publish classification", "classification_id", result.ID, "error", err)
		}
		if result.EscalationRequired {
			if err := h.bus.Publish(ctx, tenantID, domain.TopicEscalationRaised, payload); err != nil {
				slog.Error("failed to publish escalation", "classification_id", result.ID, "error", err)
			}
		}
	}

	resp := domain.ClassificationResponse{
		ClassificationID:   result.ID,
		DetectionID:        result.DetectionID,
		CatalogID:          result.CatalogID,
		RiskLevel:          result.RiskLevel,
		BusinessImpact:     result.BusinessImpact,
		Confidence:         result.Confidence,
		Team:               result.Team,
		EstimatedHours:     result.EstimatedHours,
		EscalationRequired: result.EscalationRequired,
		SLADeadline:        result.SLADeadline,
		TriggeredRules:     result.TriggeredRules,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// GetClassification retrieves a classification result by ID.
func (h *Handler) GetClassification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	resultID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	result, err := h.repo.GetClassification(ctx, tenantID, resultID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetDetection retrieves a stored detection by ID.
func (h *Handler) GetDetection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	detID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	det, err := h.repo.GetDetection(ctx, tenantID, detID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, det)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListCatalog returns all loaded catalog entries.
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	entries := h.catalog.List()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// GetCatalogEntry retrieves a loaded catalog entry by ID.
func (h *Handler) GetCatalogEntry(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "id")

	entry, ok := h.catalog.Get(entryID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "catalog entry not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// CreateCatalogEntry creates a catalog entry and saves it to the database.
// Entries are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /catalog/reload to hot-reload into the engine.
func (h *Handler) CreateCatalogEntry(w http.ResponseWriter, r *http.Request) {
	h.saveCatalogEntry(w, r, "")
}

// UpdateCatalogEntry updates an existing catalog entry.
func (h *Handler) UpdateCatalogEntry(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "id")
	if entryID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "catalog entry id is required",
		})
		return
	}
	h.saveCatalogEntry(w, r, entryID)
}

func (h *Handler) saveCatalogEntry(w http.ResponseWriter, r *http.Request, entryID string) {
	ctx := r.Context()

	var entry domain.CatalogEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if entryID != "" {
		entry.ID = entryID
	}

	if err := entry.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	// Reject broken condition expressions before they reach the database.
	for _, rule := range entry.Rules {
		if rule.Condition == "" {
			continue
		}
		if err := h.classifier.ValidateCondition(rule.Condition); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid rule condition: " + err.Error(),
			})
			return
		}
	}

	entry.TenantID = GlobalTenantID

	if h.repo != nil {
		if err := h.repo.SaveCatalogEntry(ctx, GlobalTenantID, &entry); err != nil {
			slog.Error("failed to save catalog entry", "id", entry.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save catalog entry",
			})
			return
		}
	}

	slog.Info("catalog entry saved", "id", entry.ID, "name", entry.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"entry":   entry,
		"message": "Catalog entry saved. Call POST /catalog/reload to apply changes.",
	})
}

// DeleteCatalogEntry deletes a catalog entry and auto-reloads the engine.
func (h *Handler) DeleteCatalogEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entryID := chi.URLParam(r, "id")

	if h.repo != nil {
		if err := h.repo.DeleteCatalogEntry(ctx, GlobalTenantID, entryID); err != nil {
			writeError(w, err)
			return
		}

		if err := h.reloadCatalogFromRepo(r); err != nil {
			slog.Error("failed to reload catalog after delete", "error", err)
		}
	}

	slog.Info("catalog entry deleted", "id", entryID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Catalog entry deleted and engine reloaded.",
	})
}

// ReloadCatalog reloads all catalog entries from the database into the engine.
func (h *Handler) ReloadCatalog(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.reloadCatalogFromRepo(r); err != nil {
		slog.Error("failed to reload catalog", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload catalog: " + err.Error(),
		})
		return
	}

	count := h.catalog.Count()
	slog.Info("catalog reloaded from database", "count", count)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "catalog reloaded successfully",
		"count":   count,
	})
}

func (h *Handler) reloadCatalogFromRepo(r *http.Request) error {
	entries, err := h.repo.ListCatalogEntries(r.Context(), GlobalTenantID)
	if err != nil {
		return err
	}
	if err := h.catalog.Reload(entries); err != nil {
		return err
	}
	return h.classifier.LoadConditions(h.catalog.List())
}

// CreateRiskEntityRequest is the request body for POST /risk-entities.
type CreateRiskEntityRequest struct {
	SubjectID string         `json:"subjectId"`
	Category  string         `json:"category"`
	Scoring   domain.Scoring `json:"scoring"`
	Actor     string         `json:"actor"`
}

// CreateRiskEntity creates a risk entity from a confirmed classification.
func (h *Handler) CreateRiskEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateRiskEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.SubjectID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "subjectId is required",
		})
		return
	}

	entity, err := h.scorer.CreateEntity(ctx, tenantID, req.SubjectID, req.Category, req.Scoring, req.Actor)
	if err != nil {
		writeError(w, err)
		return
	}

	// The subject gained an entity, so its cached correlations are stale.
	if h.detector != nil {
		h.detector.Invalidate(ctx, tenantID, req.SubjectID)
	}

	h.publishEntityEvent(r, tenantID, domain.TopicRiskScored, entity)

	writeJSON(w, http.StatusCreated, entity)
}

// GetRiskEntity retrieves a risk entity by ID.
func (h *Handler) GetRiskEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	entityID := chi.URLParam(r, "id")

	entity, err := h.scorer.Get(ctx, tenantID, entityID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entity)
}

// ScoreRequest is the request body for POST /risk-entities/{id}/score.
type ScoreRequest struct {
	Components domain.ComponentScores   `json:"components"`
	Factors    domain.AdjustmentFactors `json:"factors"`
	Quality    domain.QualityMetrics    `json:"quality"`
	Actor      string                   `json:"actor"`
	Reason     string                   `json:"reason,omitempty"`
}

// ScoreRiskEntity recomputes an entity's composite score.
func (h *Handler) ScoreRiskEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	entityID := chi.URLParam(r, "id")

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	entity, err := h.scorer.ApplyScore(ctx, tenantID, entityID, req.Components, req.Factors, req.Quality, req.Actor, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publishEntityEvent(r, tenantID, domain.TopicRiskScored, entity)

	writeJSON(w, http.StatusOK, entity)
}

// ApproveRequest is the request body for POST /risk-entities/{id}/approve.
type ApproveRequest struct {
	Approver string `json:"approver"`
}

// ApproveRiskEntity records an approval on a high-severity entity.
func (h *Handler) ApproveRiskEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	entityID := chi.URLParam(r, "id")

	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Approver == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "approver is required",
		})
		return
	}

	entity, err := h.scorer.Approve(ctx, tenantID, entityID, req.Approver)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entity)
}

// TransitionRequest is the request body for POST /risk-entities/{id}/transition.
type TransitionRequest struct {
	To    string `json:"to"`
	Actor string `json:"actor"`
}

// TransitionRiskEntity moves an entity through its lifecycle state machine.
func (h *Handler) TransitionRiskEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	entityID := chi.URLParam(r, "id")

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	entity, err := h.scorer.Transition(ctx, tenantID, entityID, domain.EntityStatus(req.To), req.Actor)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publishEntityEvent(r, tenantID, domain.TopicEntityTransitioned, entity)

	writeJSON(w, http.StatusOK, entity)
}

// GetCorrelations returns the correlations among a subject's risk entities.
func (h *Handler) GetCorrelations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	subjectID := chi.URLParam(r, "id")

	correlations, err := h.detector.DetectCorrelations(ctx, tenantID, subjectID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"subjectId":    subjectID,
		"correlations": correlations,
		"count":        len(correlations),
	})
}

// CalculateROI handles POST /roi requests.
func (h *Handler) CalculateROI(w http.ResponseWriter, r *http.Request) {
	var req domain.ROIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.calculator.Calculate(
		req.FraudType,
		domain.BusinessContext(req.Context),
		req.LineOfBusiness,
		req.Amount,
		domain.Complexity(req.Complexity),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// PlanRequest is the request body for POST /plans.
type PlanRequest struct {
	CatalogID  string  `json:"catalogId"`
	Severity   string  `json:"severity"`
	Confidence float64 `json:"confidence"`
}

// BuildPlan handles POST /plans requests.
func (h *Handler) BuildPlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.CatalogID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "catalogId is required",
		})
		return
	}

	investigationPlan, err := h.planner.Build(req.CatalogID, domain.AlertContext{
		Severity:   domain.RiskLevel(req.Severity),
		Confidence: req.Confidence,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, investigationPlan)
}

// publishEntityEvent publishes a risk entity event, best-effort.
func (h *Handler) publishEntityEvent(r *http.Request, tenantID, topic string, entity *domain.RiskEntity) {
	if h.bus == nil {
		return
	}
	payload, _ := json.Marshal(entity)
	if err := h.bus.Publish(r.Context(), tenantID, topic, payload); err != nil {
		slog.Error("failed to publish entity event",
			"topic", topic,
			"entity_id", entity.ID,
			"error", err,
		)
	}
}

// writeError maps domain sentinel errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownFraudType):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrApprovalRequired):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidStateTransition):
		status = http.StatusConflict
	}

	writeJSON(w, status, map[string]string{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

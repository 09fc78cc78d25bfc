// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveCatalogEntry upserts a catalog entry with tenant isolation.
func (r *SQLRepository) SaveCatalogEntry(ctx context.Context, tenantID string, entry *domain.CatalogEntry) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	districts, _ := json.Marshal(entry.Districts)
	rules, _ := json.Marshal(entry.Rules)
	playbook, _ := json.Marshal(entry.Playbook)
	governance, _ := json.Marshal(entry.Governance)
	metrics, _ := json.Marshal(entry.Metrics)

	enabled := 0
	if entry.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO catalog_entries (
			id, tenant_id, name, description, version, source, districts,
			severity_low, severity_high, rules, playbook, governance, metrics,
			sla_hours, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			source = excluded.source,
			districts = excluded.districts,
			severity_low = excluded.severity_low,
			severity_high = excluded.severity_high,
			rules = excluded.rules,
			playbook = excluded.playbook,
			governance = excluded.governance,
			metrics = excluded.metrics,
			sla_hours = excluded.sla_hours,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, tenantID, entry.Name, entry.Description,
		entry.Version, string(entry.Source), string(districts),
		entry.SeverityLow, entry.SeverityHigh,
		string(rules), string(playbook), string(governance), string(metrics),
		entry.SLAHours, enabled,
		createdAt, now,
	)
	return err
}

// GetCatalogEntry retrieves a catalog entry by ID with tenant isolation.
func (r *SQLRepository) GetCatalogEntry(ctx context.Context, tenantID string, entryID string) (*domain.CatalogEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, source, districts,
			   severity_low, severity_high, rules, playbook, governance, metrics,
			   sla_hours, enabled, created_at, updated_at
		FROM catalog_entries
		WHERE tenant_id = ? AND id = ? AND enabled = 1
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, entryID)
	entry, err := scanCatalogEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: catalog entry %s", domain.ErrNotFound, entryID)
	}
	return entry, err
}

// ListCatalogEntries retrieves all active catalog entries for a tenant.
func (r *SQLRepository) ListCatalogEntries(ctx context.Context, tenantID string) ([]*domain.CatalogEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, source, districts,
			   severity_low, severity_high, rules, playbook, governance, metrics,
			   sla_hours, enabled, created_at, updated_at
		FROM catalog_entries
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.CatalogEntry
	for rows.Next() {
		entry, err := scanCatalogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// DeleteCatalogEntry soft-deletes a catalog entry by setting enabled = 0.
func (r *SQLRepository) DeleteCatalogEntry(ctx context.Context, tenantID string, entryID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		UPDATE catalog_entries
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, entryID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: catalog entry %s", domain.ErrNotFound, entryID)
	}

	return nil
}

// SaveRiskEntity upserts a risk entity with tenant isolation.
func (r *SQLRepository) SaveRiskEntity(ctx context.Context, tenantID string, entity *domain.RiskEntity) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	scoring, _ := json.Marshal(entity.Scoring)
	history, _ := json.Marshal(entity.History)
	evidence, _ := json.Marshal(entity.EvidenceIDs)
	mitigations, _ := json.Marshal(entity.MitigationIDs)

	var approval sql.NullString
	if entity.Approval != nil {
		raw, _ := json.Marshal(entity.Approval)
		approval = sql.NullString{String: string(raw), Valid: true}
	}

	requiresApproval := 0
	if entity.RequiresApproval {
		requiresApproval = 1
	}

	query := `
		INSERT INTO risk_entities (
			id, tenant_id, subject_id, category, level, status,
			scoring, history, evidence_ids, mitigation_ids,
			requires_approval, approval, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject_id = excluded.subject_id,
			category = excluded.category,
			level = excluded.level,
			status = excluded.status,
			scoring = excluded.scoring,
			history = excluded.history,
			evidence_ids = excluded.evidence_ids,
			mitigation_ids = excluded.mitigation_ids,
			requires_approval = excluded.requires_approval,
			approval = excluded.approval,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entity.ID, tenantID, entity.SubjectID, entity.Category,
		string(entity.Level), string(entity.Status),
		string(scoring), string(history), string(evidence), string(mitigations),
		requiresApproval, approval,
		entity.CreatedAt, entity.UpdatedAt,
	)
	return err
}

// GetRiskEntity retrieves a risk entity by ID with tenant isolation.
func (r *SQLRepository) GetRiskEntity(ctx context.Context, tenantID string, entityID string) (*domain.RiskEntity, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, subject_id, category, level, status,
			   scoring, history, evidence_ids, mitigation_ids,
			   requires_approval, approval, created_at, updated_at
		FROM risk_entities
		WHERE tenant_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, entityID)
	entity, err := scanRiskEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: risk entity %s", domain.ErrNotFound, entityID)
	}
	return entity, err
}

// ListRiskEntitiesBySubject retrieves all risk entities for a subject.
func (r *SQLRepository) ListRiskEntitiesBySubject(ctx context.Context, tenantID string, subjectID string) ([]*domain.RiskEntity, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, subject_id, category, level, status,
			   scoring, history, evidence_ids, mitigation_ids,
			   requires_approval, approval, created_at, updated_at
		FROM risk_entities
		WHERE tenant_id = ? AND subject_id = ?
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []*domain.RiskEntity
	for rows.Next() {
		entity, err := scanRiskEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}

	return entities, rows.Err()
}

// CountRiskEntitiesBySubject counts a subject's risk entities created since
// the given time. Backs the activity lookback used by rule conditions.
func (r *SQLRepository) CountRiskEntitiesBySubject(ctx context.Context, tenantID string, subjectID string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM risk_entities
		WHERE tenant_id = ? AND subject_id = ? AND created_at >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, subjectID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count risk entities: %w", err)
	}

	return count, nil
}

// SaveClassification stores a classification result with tenant isolation.
// Results are immutable, so this is insert-only.
func (r *SQLRepository) SaveClassification(ctx context.Context, tenantID string, result *domain.ClassificationResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	triggered, _ := json.Marshal(result.TriggeredRules)

	escalation := 0
	if result.EscalationRequired {
		escalation = 1
	}

	query := `
		INSERT INTO classifications (
			id, tenant_id, detection_id, catalog_id, confidence, score,
			triggered_rules, risk_level, business_impact, team,
			estimated_hours, escalation_required, sla_deadline, classified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		result.ID, tenantID, result.DetectionID, result.CatalogID,
		result.Confidence, result.Score, string(triggered),
		string(result.RiskLevel), string(result.BusinessImpact), result.Team,
		result.EstimatedHours, escalation,
		result.SLADeadline, result.ClassifiedAt,
	)
	return err
}

// GetClassification retrieves a classification result by ID.
func (r *SQLRepository) GetClassification(ctx context.Context, tenantID string, resultID string) (*domain.ClassificationResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, detection_id, catalog_id, confidence, score,
			   triggered_rules, risk_level, business_impact, team,
			   estimated_hours, escalation_required, sla_deadline, classified_at
		FROM classifications
		WHERE tenant_id = ? AND id = ?
	`

	var result domain.ClassificationResult
	var triggered string
	var riskLevel, businessImpact string
	var escalation int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, resultID).Scan(
		&result.ID, &result.TenantID, &result.DetectionID, &result.CatalogID,
		&result.Confidence, &result.Score, &triggered,
		&riskLevel, &businessImpact, &result.Team,
		&result.EstimatedHours, &escalation,
		&result.SLADeadline, &result.ClassifiedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: classification %s", domain.ErrNotFound, resultID)
	}
	if err != nil {
		return nil, err
	}

	result.RiskLevel = domain.RiskLevel(riskLevel)
	result.BusinessImpact = domain.RiskLevel(businessImpact)
	result.EscalationRequired = escalation == 1
	json.Unmarshal([]byte(triggered), &result.TriggeredRules)

	return &result, nil
}

// SaveDetection stores a detection signal with tenant isolation.
func (r *SQLRepository) SaveDetection(ctx context.Context, tenantID string, det *domain.Detection) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	codes, _ := json.Marshal(det.FindingCodes)
	payload, _ := json.Marshal(det.Payload)

	query := `
		INSERT INTO detections (
			id, tenant_id, subject_id, source, district, context,
			score, confidence, amount, finding_codes, payload, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		det.ID, tenantID, det.SubjectID, string(det.Source),
		det.District, det.Context,
		det.Score, det.Confidence, det.Amount,
		string(codes), string(payload), det.ReceivedAt,
	)
	return err
}

// GetDetection retrieves a detection by ID with tenant isolation.
func (r *SQLRepository) GetDetection(ctx context.Context, tenantID string, detID string) (*domain.Detection, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, subject_id, source, district, context,
			   score, confidence, amount, finding_codes, payload, received_at
		FROM detections
		WHERE tenant_id = ? AND id = ?
	`

	var det domain.Detection
	var source, codes, payload string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, detID).Scan(
		&det.ID, &det.TenantID, &det.SubjectID, &source,
		&det.District, &det.Context,
		&det.Score, &det.Confidence, &det.Amount,
		&codes, &payload, &det.ReceivedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: detection %s", domain.ErrNotFound, detID)
	}
	if err != nil {
		return nil, err
	}

	det.Source = domain.SourceTag(source)
	json.Unmarshal([]byte(codes), &det.FindingCodes)
	json.Unmarshal([]byte(payload), &det.Payload)

	return &det, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// scanner abstracts sql.Row and sql.Rows for the shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanCatalogEntry(s scanner) (*domain.CatalogEntry, error) {
	var entry domain.CatalogEntry
	var source, districts, rules, playbook, governance, metrics string
	var enabled int

	err := s.Scan(
		&entry.ID, &entry.TenantID, &entry.Name, &entry.Description,
		&entry.Version, &source, &districts,
		&entry.SeverityLow, &entry.SeverityHigh,
		&rules, &playbook, &governance, &metrics,
		&entry.SLAHours, &enabled,
		&entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Source = domain.SourceTag(source)
	entry.Enabled = enabled == 1

	if err := json.Unmarshal([]byte(districts), &entry.Districts); err != nil {
		return nil, fmt.Errorf("failed to parse districts for %s: %w", entry.ID, err)
	}
	if err := json.Unmarshal([]byte(rules), &entry.Rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules for %s: %w", entry.ID, err)
	}
	json.Unmarshal([]byte(playbook), &entry.Playbook)
	json.Unmarshal([]byte(governance), &entry.Governance)
	json.Unmarshal([]byte(metrics), &entry.Metrics)

	return &entry, nil
}

func scanRiskEntity(s scanner) (*domain.RiskEntity, error) {
	var entity domain.RiskEntity
	var level, status, scoring, history string
	var evidence, mitigations, approval sql.NullString
	var requiresApproval int

	err := s.Scan(
		&entity.ID, &entity.TenantID, &entity.SubjectID, &entity.Category,
		&level, &status,
		&scoring, &history, &evidence, &mitigations,
		&requiresApproval, &approval,
		&entity.CreatedAt, &entity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	entity.Level = domain.SeverityLevel(level)
	entity.Status = domain.EntityStatus(status)
	entity.RequiresApproval = requiresApproval == 1

	if err := json.Unmarshal([]byte(scoring), &entity.Scoring); err != nil {
		return nil, fmt.Errorf("failed to parse scoring for %s: %w", entity.ID, err)
	}
	if err := json.Unmarshal([]byte(history), &entity.History); err != nil {
		return nil, fmt.Errorf("failed to parse history for %s: %w", entity.ID, err)
	}
	if evidence.Valid {
		json.Unmarshal([]byte(evidence.String), &entity.EvidenceIDs)
	}
	if mitigations.Valid {
		json.Unmarshal([]byte(mitigations.String), &entity.MitigationIDs)
	}
	if approval.Valid {
		var a domain.Approval
		if err := json.Unmarshal([]byte(approval.String), &a); err == nil {
			entity.Approval = &a
		}
	}

	return &entity, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

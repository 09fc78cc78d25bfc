// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Catalog entry operations
	SaveCatalogEntry(ctx context.Context, tenantID string, entry *CatalogEntry) error
	GetCatalogEntry(ctx context.Context, tenantID string, entryID string) (*CatalogEntry, error)
	ListCatalogEntries(ctx context.Context, tenantID string) ([]*CatalogEntry, error)
	DeleteCatalogEntry(ctx context.Context, tenantID string, entryID string) error

	// Risk entity operations
	SaveRiskEntity(ctx context.Context, tenantID string, entity *RiskEntity) error
	GetRiskEntity(ctx context.Context, tenantID string, entityID string) (*RiskEntity, error)
	ListRiskEntitiesBySubject(ctx context.Context, tenantID string, subjectID string) ([]*RiskEntity, error)
	CountRiskEntitiesBySubject(ctx context.Context, tenantID string, subjectID string, since time.Time) (int64, error)

	// Classification results
	SaveClassification(ctx context.Context, tenantID string, result *ClassificationResult) error
	GetClassification(ctx context.Context, tenantID string, resultID string) (*ClassificationResult, error)

	// Detections
	SaveDetection(ctx context.Context, tenantID string, det *Detection) error
	GetDetection(ctx context.Context, tenantID string, detID string) (*Detection, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

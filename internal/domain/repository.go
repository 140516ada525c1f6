package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Catalog document operations
	SaveCatalog(ctx context.Context, tenantID string, record *CatalogRecord) error
	GetCatalog(ctx context.Context, tenantID string, catalogID string) (*CatalogRecord, error)
	ListCatalogs(ctx context.Context, tenantID string) ([]*CatalogRecord, error)
	DeleteCatalog(ctx context.Context, tenantID string, catalogID string) error

	// Audit run operations
	SaveRun(ctx context.Context, tenantID string, run *AuditRun) error
	GetRun(ctx context.Context, tenantID string, runID string) (*AuditRun, error)
	ListRuns(ctx context.Context, tenantID string, limit int) ([]*AuditRun, error)

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

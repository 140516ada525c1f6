// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NowenCR/expense-auditor/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
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

// SaveCatalog stores a catalog version with tenant isolation. Saving the
// same (id, version) again updates the stored document in place.
func (r *SQLRepository) SaveCatalog(ctx context.Context, tenantID string, rec *domain.CatalogRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rec.ID == "" {
		return fmt.Errorf("%w: catalog ID is required", ErrInvalidInput)
	}

	document, err := json.Marshal(rec.Document)
	if err != nil {
		return fmt.Errorf("failed to encode catalog document: %w", err)
	}

	enabled := 0
	if rec.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO catalogs (
			id, tenant_id, name, version, document, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			document = excluded.document,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, tenantID, rec.Name, rec.Version,
		string(document), enabled, now, now,
	)
	return err
}

// GetCatalog retrieves the latest enabled version of a catalog with tenant
// isolation.
func (r *SQLRepository) GetCatalog(ctx context.Context, tenantID string, catalogID string) (*domain.CatalogRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, version, document, enabled
		FROM catalogs
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var rec domain.CatalogRecord
	var document string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, catalogID).Scan(
		&rec.ID, &rec.TenantID, &rec.Name, &rec.Version, &document, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(document), &rec.Document); err != nil {
		return nil, fmt.Errorf("failed to parse catalog document: %w", err)
	}

	return &rec, nil
}

// ListCatalogs retrieves all enabled catalogs for a tenant.
func (r *SQLRepository) ListCatalogs(ctx context.Context, tenantID string) ([]*domain.CatalogRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, version, document, enabled
		FROM catalogs
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.CatalogRecord
	for rows.Next() {
		var rec domain.CatalogRecord
		var document string
		var enabled int

		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.Name, &rec.Version, &document, &enabled,
		); err != nil {
			return nil, err
		}

		rec.Enabled = enabled == 1
		if err := json.Unmarshal([]byte(document), &rec.Document); err != nil {
			return nil, fmt.Errorf("failed to parse catalog document for %s: %w", rec.ID, err)
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// DeleteCatalog soft-deletes every version of a catalog by setting
// enabled = 0.
func (r *SQLRepository) DeleteCatalog(ctx context.Context, tenantID string, catalogID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE catalogs
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, catalogID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveRun stores an audit run record with tenant isolation.
func (r *SQLRepository) SaveRun(ctx context.Context, tenantID string, run *domain.AuditRun) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if run.ID == "" {
		return fmt.Errorf("%w: run ID is required", ErrInvalidInput)
	}

	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}

	query := `
		INSERT INTO audit_runs (
			id, tenant_id, catalog_id, catalog_version, status,
			row_count, summary, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		run.ID, tenantID, run.CatalogID, run.CatalogVersion, run.Status,
		run.RowCount, string(summary), run.Error, run.StartedAt, run.FinishedAt,
	)
	return err
}

// GetRun retrieves an audit run by ID with tenant isolation.
func (r *SQLRepository) GetRun(ctx context.Context, tenantID string, runID string) (*domain.AuditRun, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, catalog_id, catalog_version, status,
			   row_count, summary, error, started_at, finished_at
		FROM audit_runs
		WHERE tenant_id = ? AND id = ?
	`

	var run domain.AuditRun
	var summary string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, runID).Scan(
		&run.ID, &run.TenantID, &run.CatalogID, &run.CatalogVersion, &run.Status,
		&run.RowCount, &summary, &run.Error, &run.StartedAt, &run.FinishedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(summary), &run.Summary); err != nil {
		return nil, fmt.Errorf("failed to parse run summary: %w", err)
	}

	return &run, nil
}

// ListRuns retrieves the most recent audit runs for a tenant, newest first.
func (r *SQLRepository) ListRuns(ctx context.Context, tenantID string, limit int) ([]*domain.AuditRun, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, catalog_id, catalog_version, status,
			   row_count, summary, error, started_at, finished_at
		FROM audit_runs
		WHERE tenant_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.AuditRun
	for rows.Next() {
		var run domain.AuditRun
		var summary string

		if err := rows.Scan(
			&run.ID, &run.TenantID, &run.CatalogID, &run.CatalogVersion, &run.Status,
			&run.RowCount, &summary, &run.Error, &run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(summary), &run.Summary); err != nil {
			return nil, fmt.Errorf("failed to parse run summary for %s: %w", run.ID, err)
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

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

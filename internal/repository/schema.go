package repository

// Schema definitions for the auditor database.
// Compatible with both SQLite and PostgreSQL.

const schemaCatalogs = `
CREATE TABLE IF NOT EXISTS catalogs (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    version TEXT NOT NULL,
    document TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_catalogs_tenant ON catalogs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_catalogs_enabled ON catalogs(tenant_id, enabled);
`

const schemaAuditRuns = `
CREATE TABLE IF NOT EXISTS audit_runs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    catalog_id TEXT NOT NULL,
    catalog_version TEXT NOT NULL,
    status TEXT NOT NULL,
    row_count INTEGER NOT NULL DEFAULT 0,
    summary TEXT NOT NULL,
    error TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_runs_tenant ON audit_runs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_audit_runs_catalog ON audit_runs(tenant_id, catalog_id);
CREATE INDEX IF NOT EXISTS idx_audit_runs_status ON audit_runs(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_audit_runs_started ON audit_runs(tenant_id, started_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCatalogs,
		schemaAuditRuns,
	}
}

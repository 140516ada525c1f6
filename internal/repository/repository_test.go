package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/NowenCR/expense-auditor/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "auditor-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetCatalog", func(t *testing.T) {
		rec := &domain.CatalogRecord{
			ID:      "cat-001",
			Name:    "Corporate Cards",
			Version: "1.3",
			Document: domain.Catalog{
				Version:            "1.3",
				AllowlistMerchants: []string{"costco"},
				KeywordRules: []domain.KeywordRule{
					{Pattern: "(?i)casino", Severity: domain.SeverityDirectWarn, Reason: "gambling"},
				},
			},
			Enabled: true,
		}

		if err := repo.SaveCatalog(ctx, tenantID, rec); err != nil {
			t.Fatalf("SaveCatalog failed: %v", err)
		}

		retrieved, err := repo.GetCatalog(ctx, tenantID, rec.ID)
		if err != nil {
			t.Fatalf("GetCatalog failed: %v", err)
		}

		if retrieved.ID != rec.ID {
			t.Errorf("expected ID %s, got %s", rec.ID, retrieved.ID)
		}
		if retrieved.TenantID != tenantID {
			t.Errorf("expected TenantID %s, got %s", tenantID, retrieved.TenantID)
		}
		if len(retrieved.Document.KeywordRules) != 1 {
			t.Errorf("catalog document did not round-trip: %+v", retrieved.Document)
		}
	})

	t.Run("SaveCatalogUpsertsVersion", func(t *testing.T) {
		rec := &domain.CatalogRecord{
			ID:      "cat-001",
			Name:    "Corporate Cards",
			Version: "1.3",
			Document: domain.Catalog{
				Version:            "1.3",
				DisallowedKeywords: []string{"casino"},
			},
			Enabled: true,
		}

		if err := repo.SaveCatalog(ctx, tenantID, rec); err != nil {
			t.Fatalf("SaveCatalog upsert failed: %v", err)
		}

		retrieved, err := repo.GetCatalog(ctx, tenantID, rec.ID)
		if err != nil {
			t.Fatalf("GetCatalog failed: %v", err)
		}
		if len(retrieved.Document.DisallowedKeywords) != 1 {
			t.Errorf("expected updated document, got %+v", retrieved.Document)
		}
	})

	t.Run("GetCatalogReturnsLatestVersion", func(t *testing.T) {
		for _, version := range []string{"1.0", "2.0"} {
			rec := &domain.CatalogRecord{
				ID:       "cat-multi",
				Name:     "Versioned",
				Version:  version,
				Document: domain.Catalog{Version: version},
				Enabled:  true,
			}
			if err := repo.SaveCatalog(ctx, tenantID, rec); err != nil {
				t.Fatalf("SaveCatalog failed: %v", err)
			}
		}

		retrieved, err := repo.GetCatalog(ctx, tenantID, "cat-multi")
		if err != nil {
			t.Fatalf("GetCatalog failed: %v", err)
		}
		if retrieved.Version != "2.0" {
			t.Errorf("expected latest version 2.0, got %s", retrieved.Version)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetCatalog(ctx, "tenant-002", "cat-001")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		rec := &domain.CatalogRecord{ID: "cat-test"}

		if err := repo.SaveCatalog(ctx, "", rec); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := repo.GetCatalog(ctx, "", "cat-001"); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("DeleteCatalog", func(t *testing.T) {
		rec := &domain.CatalogRecord{
			ID:       "cat-del",
			Name:     "To Delete",
			Version:  "1.0",
			Document: domain.Catalog{Version: "1.0"},
			Enabled:  true,
		}
		if err := repo.SaveCatalog(ctx, tenantID, rec); err != nil {
			t.Fatalf("SaveCatalog failed: %v", err)
		}

		if err := repo.DeleteCatalog(ctx, tenantID, "cat-del"); err != nil {
			t.Fatalf("DeleteCatalog failed: %v", err)
		}

		if _, err := repo.GetCatalog(ctx, tenantID, "cat-del"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound after delete, got: %v", err)
		}

		if err := repo.DeleteCatalog(ctx, tenantID, "nonexistent"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound for missing catalog, got: %v", err)
		}
	})

	t.Run("SaveAndGetRun", func(t *testing.T) {
		run := &domain.AuditRun{
			ID:             "run-001",
			CatalogID:      "cat-001",
			CatalogVersion: "1.3",
			Status:         domain.RunStatusCompleted,
			RowCount:       1200,
			Summary: domain.RunSummary{
				RowCount:          1200,
				OKCount:           1100,
				PossibleWarnCount: 80,
				DirectWarnCount:   20,
				TopReasons: []domain.ReasonCount{
					{Reason: "high amount", Count: 60},
				},
			},
			StartedAt:  time.Now().UTC(),
			FinishedAt: time.Now().UTC(),
		}

		if err := repo.SaveRun(ctx, tenantID, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}

		retrieved, err := repo.GetRun(ctx, tenantID, run.ID)
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}

		if retrieved.Status != domain.RunStatusCompleted {
			t.Errorf("expected status %s, got %s", domain.RunStatusCompleted, retrieved.Status)
		}
		if retrieved.Summary.DirectWarnCount != 20 {
			t.Errorf("summary did not round-trip: %+v", retrieved.Summary)
		}
		if len(retrieved.Summary.TopReasons) != 1 {
			t.Errorf("top reasons did not round-trip: %+v", retrieved.Summary.TopReasons)
		}
	})

	t.Run("ListRuns", func(t *testing.T) {
		run := &domain.AuditRun{
			ID:             "run-002",
			CatalogID:      "cat-001",
			CatalogVersion: "1.3",
			Status:         domain.RunStatusFailed,
			Error:          "rows 0-5000: rule evaluation panic",
			StartedAt:      time.Now().UTC().Add(time.Minute),
			FinishedAt:     time.Now().UTC().Add(time.Minute),
		}
		if err := repo.SaveRun(ctx, tenantID, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}

		runs, err := repo.ListRuns(ctx, tenantID, 10)
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if runs[0].ID != "run-002" {
			t.Errorf("expected newest run first, got %s", runs[0].ID)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetCatalog(ctx, tenantID, "nonexistent"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetRun(ctx, tenantID, "nonexistent"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

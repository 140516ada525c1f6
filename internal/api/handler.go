package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/NowenCR/expense-auditor/internal/ai"
	"github.com/NowenCR/expense-auditor/internal/catalog"
	"github.com/NowenCR/expense-auditor/internal/domain"
	"github.com/NowenCR/expense-auditor/internal/engine"
	"github.com/NowenCR/expense-auditor/internal/report"
	"github.com/NowenCR/expense-auditor/internal/repository"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *engine.Engine
	annotator *ai.Annotator
	version   string
}

// NewHandler creates a new API handler. The annotator is optional.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, eng *engine.Engine, annotator *ai.Annotator, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		engine:    eng,
		annotator: annotator,
		version:   version,
	}
}

// AuditRequest is the request body for POST /audit and POST /audit/async.
type AuditRequest struct {
	Rows []domain.Transaction `json:"rows"`

	// CatalogID names a stored catalog. Ignored when Catalog is inline.
	CatalogID string `json:"catalogId,omitempty"`

	// Catalog carries an inline rule set.
	Catalog *domain.Catalog `json:"catalog,omitempty"`

	// Annotate requests the AI classification pass on the results.
	Annotate bool `json:"annotate,omitempty"`
}

// AuditResponse is the response for POST /audit.
type AuditResponse struct {
	RunID    string                      `json:"runId"`
	Status   string                      `json:"status"`
	Summary  domain.RunSummary           `json:"summary"`
	Results  []domain.AuditedTransaction `json:"results"`
	Metadata struct {
		TraceID        string `json:"traceId"`
		CatalogVersion string `json:"catalogVersion,omitempty"`
		TotalMs        int64  `json:"totalMs"`
		Version        string `json:"version"`
	} `json:"metadata"`
}

// resolveCatalog returns the rule set for an audit request, loading from the
// repository when no inline catalog is given.
func (h *Handler) resolveCatalog(r *http.Request, req *AuditRequest) (*domain.Catalog, string, error) {
	if req.Catalog != nil {
		return req.Catalog, req.Catalog.Version, nil
	}
	if req.CatalogID == "" {
		return nil, "", errors.New("catalog or catalogId is required")
	}
	if h.repo == nil {
		return nil, "", errors.New("repository not available")
	}
	rec, err := h.repo.GetCatalog(r.Context(), GetTenantID(r.Context()), req.CatalogID)
	if err != nil {
		return nil, "", err
	}
	return &rec.Document, rec.Version, nil
}

// Audit handles POST /audit requests: synchronous batch evaluation.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req AuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Rows) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rows are required",
		})
		return
	}

	cat, catVersion, err := h.resolveCatalog(r, &req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, repository.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	runID := uuid.New().String()
	run := &domain.AuditRun{
		ID:             runID,
		TenantID:       tenantID,
		CatalogID:      req.CatalogID,
		CatalogVersion: catVersion,
		RowCount:       len(req.Rows),
		StartedAt:      start.UTC(),
	}

	audited, err := h.engine.Apply(ctx, req.Rows, cat)
	if err != nil {
		run.Status = domain.RunStatusFailed
		if errors.Is(err, engine.ErrCanceled) {
			run.Status = domain.RunStatusCanceled
		}
		run.Error = err.Error()
		run.FinishedAt = time.Now().UTC()
		h.saveRun(ctx, tenantID, run)

		slog.Error("audit failed", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "audit failed: " + err.Error(),
		})
		return
	}

	if req.Annotate && h.annotator != nil {
		if _, err := h.annotator.Annotate(ctx, tenantID, audited); err != nil {
			slog.Warn("AI annotation interrupted", "run_id", runID, "error", err)
		}
	}

	run.Status = domain.RunStatusCompleted
	run.Summary = report.Summarize(audited)
	run.FinishedAt = time.Now().UTC()
	h.saveRun(ctx, tenantID, run)

	if h.bus != nil && report.ShouldAlert(run.Summary) {
		payload, _ := json.Marshal(run)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicAuditAlert, payload); err != nil {
			slog.Error("failed to publish alert", "run_id", runID, "error", err)
		}
	}

	resp := AuditResponse{
		RunID:   runID,
		Status:  run.Status,
		Summary: run.Summary,
		Results: audited,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.CatalogVersion = catVersion
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// AuditAsync handles POST /audit/async: the job is queued on the event bus
// and picked up by a worker.
func (h *Handler) AuditAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	var req AuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Rows) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rows are required",
		})
		return
	}
	if req.Catalog == nil && req.CatalogID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "catalog or catalogId is required",
		})
		return
	}

	runID := uuid.New().String()
	job := map[string]any{
		"runId":     runID,
		"tenantId":  tenantID,
		"catalogId": req.CatalogID,
		"rows":      req.Rows,
		"catalog":   req.Catalog,
		"annotate":  req.Annotate,
	}
	payload, err := json.Marshal(job)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode job",
		})
		return
	}

	if err := h.bus.Publish(ctx, tenantID, domain.TopicAuditRequested, payload); err != nil {
		slog.Error("failed to queue audit job", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to queue audit job",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"runId":  runID,
		"status": "queued",
	})
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

// ListCatalogs returns all enabled catalogs for the tenant.
func (h *Handler) ListCatalogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	records, err := h.repo.ListCatalogs(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list catalogs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list catalogs",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"catalogs": records,
		"count":    len(records),
	})
}

// GetCatalog retrieves the latest enabled version of a catalog.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	catalogID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rec, err := h.repo.GetCatalog(ctx, tenantID, catalogID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "catalog not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// CreateCatalogRequest is the request body for creating or updating a catalog.
type CreateCatalogRequest struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Document domain.Catalog `json:"document"`
}

// CreateCatalog stores a new catalog version. The document is validated
// before it is accepted; a catalog with broken patterns or conditions is
// rejected rather than silently degraded.
func (h *Handler) CreateCatalog(w http.ResponseWriter, r *http.Request) {
	h.saveCatalog(w, r, chi.URLParam(r, "id"), http.StatusCreated)
}

// UpdateCatalog stores a new version of an existing catalog. Versions are
// immutable; an update is a new version row.
func (h *Handler) UpdateCatalog(w http.ResponseWriter, r *http.Request) {
	h.saveCatalog(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (h *Handler) saveCatalog(w http.ResponseWriter, r *http.Request, catalogID string, okStatus int) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	var req CreateCatalogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if catalogID != "" {
		req.ID = catalogID
	}
	if req.ID == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and name are required",
		})
		return
	}

	if problems := catalog.Validate(&req.Document, h.engine); len(problems) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":    "catalog validation failed",
			"problems": problems,
		})
		return
	}

	rec := &domain.CatalogRecord{
		ID:       req.ID,
		TenantID: tenantID,
		Name:     req.Name,
		Version:  req.Document.Version,
		Document: req.Document,
		Enabled:  true,
	}
	if rec.Version == "" {
		rec.Version = "1.0"
		rec.Document.Version = "1.0"
	}

	if err := h.repo.SaveCatalog(ctx, tenantID, rec); err != nil {
		slog.Error("failed to save catalog", "id", rec.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save catalog",
		})
		return
	}

	slog.Info("catalog saved", "id", rec.ID, "version", rec.Version, "tenant_id", tenantID)
	writeJSON(w, okStatus, rec)
}

// DeleteCatalog disables all versions of a catalog. The rows are kept for
// run provenance.
func (h *Handler) DeleteCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	catalogID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteCatalog(ctx, tenantID, catalogID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "catalog not found",
		})
		return
	}

	slog.Info("catalog disabled", "id", catalogID, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "catalog disabled",
	})
}

// ValidateCatalog handles POST /catalogs/{id}/validate: it reports every
// pattern and condition problem in the stored document without changing it.
func (h *Handler) ValidateCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	catalogID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rec, err := h.repo.GetCatalog(ctx, tenantID, catalogID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "catalog not found",
		})
		return
	}

	problems := catalog.Validate(&rec.Document, h.engine)

	writeJSON(w, http.StatusOK, map[string]any{
		"catalogId": catalogID,
		"version":   rec.Version,
		"valid":     len(problems) == 0,
		"problems":  problems,
	})
}

// ListRuns returns recent audit runs for the tenant, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	runs, err := h.repo.ListRuns(ctx, tenantID, 0)
	if err != nil {
		slog.Error("failed to list runs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list runs",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun retrieves an audit run by ID.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	runID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	run, err := h.repo.GetRun(ctx, tenantID, runID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) saveRun(ctx context.Context, tenantID string, run *domain.AuditRun) {
	if h.repo == nil {
		return
	}
	if err := h.repo.SaveRun(ctx, tenantID, run); err != nil {
		slog.Error("failed to save audit run", "run_id", run.ID, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

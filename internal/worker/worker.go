// Package worker provides async audit job processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NowenCR/expense-auditor/internal/ai"
	"github.com/NowenCR/expense-auditor/internal/domain"
	"github.com/NowenCR/expense-auditor/internal/engine"
	"github.com/NowenCR/expense-auditor/internal/report"
)

// Worker executes audit jobs from the EventBus.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	engine    *engine.Engine
	annotator *ai.Annotator

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string
}

// NewWorker creates a new async worker. The annotator is optional.
func NewWorker(bus domain.EventBus, repo domain.Repository, eng *engine.Engine, annotator *ai.Annotator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		engine:    eng,
		annotator: annotator,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing audit jobs for the given tenants.
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
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicAuditRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicAuditRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processJob(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicAuditRequested,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processJob(ctx, msg.TenantID, msg)
}

// AuditJob is the message payload for an async audit run.
type AuditJob struct {
	RunID     string               `json:"runId"`
	TenantID  string               `json:"tenantId"`
	CatalogID string               `json:"catalogId"`
	Rows      []domain.Transaction `json:"rows"`

	// Catalog carries an inline rule set. When absent, the catalog is
	// loaded from the repository by CatalogID.
	Catalog *domain.Catalog `json:"catalog,omitempty"`

	// Annotate requests the AI classification pass after rule evaluation.
	Annotate bool `json:"annotate,omitempty"`
}

// AuditCompleted is published when a run finishes, in any terminal state.
type AuditCompleted struct {
	RunID    string            `json:"runId"`
	TenantID string            `json:"tenantId"`
	Status   string            `json:"status"`
	Summary  domain.RunSummary `json:"summary"`
	Error    string            `json:"error,omitempty"`
}

// processJob runs one audit job end to end.
func (w *Worker) processJob(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now().UTC()

	var job AuditJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		slog.Error("failed to parse audit job",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if job.TenantID != "" {
		tenantID = job.TenantID
	}
	if job.RunID == "" {
		job.RunID = uuid.New().String()
	}

	slog.Debug("processing audit job",
		"run_id", job.RunID,
		"tenant_id", tenantID,
		"row_count", len(job.Rows),
	)

	run := &domain.AuditRun{
		ID:        job.RunID,
		TenantID:  tenantID,
		CatalogID: job.CatalogID,
		RowCount:  len(job.Rows),
		StartedAt: start,
	}

	cat := job.Catalog
	if cat == nil {
		rec, err := w.repo.GetCatalog(ctx, tenantID, job.CatalogID)
		if err != nil {
			return w.finishFailed(ctx, tenantID, run, err)
		}
		cat = &rec.Document
		run.CatalogVersion = rec.Version
	} else {
		run.CatalogVersion = cat.Version
	}

	audited, err := w.engine.Apply(ctx, job.Rows, cat)
	if err != nil {
		return w.finishFailed(ctx, tenantID, run, err)
	}

	if job.Annotate && w.annotator != nil {
		if _, err := w.annotator.Annotate(ctx, tenantID, audited); err != nil {
			slog.Warn("AI annotation interrupted",
				"run_id", job.RunID,
				"error", err,
			)
		}
	}

	run.Status = domain.RunStatusCompleted
	run.Summary = report.Summarize(audited)
	run.FinishedAt = time.Now().UTC()

	if w.repo != nil {
		if err := w.repo.SaveRun(ctx, tenantID, run); err != nil {
			slog.Error("failed to save audit run",
				"run_id", job.RunID,
				"error", err,
			)
		}
	}

	completed := AuditCompleted{
		RunID:    run.ID,
		TenantID: tenantID,
		Status:   run.Status,
		Summary:  run.Summary,
	}
	payload, _ := json.Marshal(completed)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAuditCompleted, payload); err != nil {
		slog.Error("failed to publish completion",
			"run_id", job.RunID,
			"error", err,
		)
	}

	if report.ShouldAlert(run.Summary) {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAuditAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"run_id", job.RunID,
				"error", err,
			)
		}
	}

	slog.Info("audit job processed",
		"run_id", run.ID,
		"tenant_id", tenantID,
		"row_count", run.RowCount,
		"direct_warns", run.Summary.DirectWarnCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// finishFailed records and publishes a failed or canceled run. No partial
// results survive.
func (w *Worker) finishFailed(ctx context.Context, tenantID string, run *domain.AuditRun, cause error) error {
	run.Status = domain.RunStatusFailed
	if errors.Is(cause, engine.ErrCanceled) || errors.Is(cause, context.Canceled) {
		run.Status = domain.RunStatusCanceled
	}
	run.Error = cause.Error()
	run.FinishedAt = time.Now().UTC()

	if w.repo != nil {
		if err := w.repo.SaveRun(ctx, tenantID, run); err != nil {
			slog.Error("failed to save failed run",
				"run_id", run.ID,
				"error", err,
			)
		}
	}

	completed := AuditCompleted{
		RunID:    run.ID,
		TenantID: tenantID,
		Status:   run.Status,
		Error:    run.Error,
	}
	payload, _ := json.Marshal(completed)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAuditCompleted, payload); err != nil {
		slog.Error("failed to publish failure",
			"run_id", run.ID,
			"error", err,
		)
	}

	slog.Error("audit job failed",
		"run_id", run.ID,
		"tenant_id", tenantID,
		"status", run.Status,
		"error", cause,
	)

	return cause
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

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

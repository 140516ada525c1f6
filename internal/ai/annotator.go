package ai

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/NowenCR/expense-auditor/internal/domain"
)

// annotationTTL is how long a merchant classification stays cached.
const annotationTTL = 24 * time.Hour

// budgetWindow is the rolling window for the per-tenant call budget.
const budgetWindow = 24 * time.Hour

// Annotator runs the classification pass over an audited table. Rows are
// grouped by (merchant, mcc) so each unique merchant costs at most one
// model call, with a cache in front and a per-run and per-day call cap.
type Annotator struct {
	client Client
	cache  domain.Cache
	cfg    domain.AIConfig
	logger *slog.Logger
}

// NewAnnotator creates an annotator.
func NewAnnotator(client Client, cache domain.Cache, cfg domain.AIConfig, logger *slog.Logger) *Annotator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxCalls <= 0 {
		cfg.MaxCalls = 200
	}
	return &Annotator{
		client: client,
		cache:  cache,
		cfg:    cfg,
		logger: logger,
	}
}

// Annotate classifies the audited rows in place and returns the number of
// model calls made. A failed call annotates its group with the error and
// the pass continues; only context cancellation stops it early.
func (a *Annotator) Annotate(ctx context.Context, tenantID string, rows []domain.AuditedTransaction) (int, error) {
	groups, order := a.groupRows(rows)
	if len(order) == 0 {
		return 0, nil
	}

	calls := 0
	for _, key := range order {
		if err := ctx.Err(); err != nil {
			return calls, err
		}

		indices := groups[key]

		// Cache hits are free: they consume neither the per-run cap nor
		// the daily budget.
		if ann, err := a.cache.GetAnnotation(ctx, tenantID, key); err == nil && ann != nil {
			applyAnnotation(rows, indices, ann)
			continue
		}

		if calls >= a.cfg.MaxCalls {
			a.logger.Warn("AI call cap reached, remaining merchants skipped",
				"max_calls", a.cfg.MaxCalls,
			)
			break
		}

		if a.cfg.DailyBudget > 0 {
			used, err := a.cache.IncrementCounter(ctx, tenantID, "ai-daily", budgetWindow)
			if err == nil && used > int64(a.cfg.DailyBudget) {
				a.logger.Warn("AI daily budget exhausted",
					"daily_budget", a.cfg.DailyBudget,
				)
				break
			}
		}

		first := rows[indices[0]]
		ann, err := a.client.ClassifyMerchant(ctx, MerchantQuery{
			Merchant:         first.Merchant,
			MCC:              first.MCC,
			Description:      first.Description,
			PurchaseCategory: first.PurchaseCategory,
			Amount:           first.Amount,
			Flag:             first.Flag,
			Reasons:          first.Reasons,
		})
		calls++

		if err != nil {
			a.logger.Error("AI classification failed",
				"merchant", first.Merchant,
				"mcc", first.MCC,
				"error", err,
			)
			applyAnnotation(rows, indices, &domain.AIAnnotation{
				Severity: string(domain.SeverityOK),
				Reason:   "classification error: " + err.Error(),
			})
			continue
		}

		applyAnnotation(rows, indices, ann)
		_ = a.cache.SetAnnotation(ctx, tenantID, key, ann, annotationTTL)
	}

	return calls, nil
}

// groupRows buckets target row indices by merchant key, preserving first
// appearance order.
func (a *Annotator) groupRows(rows []domain.AuditedTransaction) (map[string][]int, []string) {
	groups := make(map[string][]int)
	var order []string

	for i := range rows {
		if a.cfg.WarningsOnly && rows[i].Flag == domain.SeverityOK {
			continue
		}
		key := MerchantKey(rows[i].Merchant, rows[i].MCC)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	return groups, order
}

func applyAnnotation(rows []domain.AuditedTransaction, indices []int, ann *domain.AIAnnotation) {
	for _, i := range indices {
		rows[i].AI = ann
	}
}

// MerchantKey builds the cache/grouping key for a merchant. The merchant
// name is upper-cased and trimmed so spelling variants of the same
// merchant share one classification.
func MerchantKey(merchant, mcc string) string {
	return strings.ToUpper(strings.TrimSpace(merchant)) + "|" + strings.TrimSpace(mcc)
}

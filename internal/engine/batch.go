package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/NowenCR/expense-auditor/internal/domain"
)

// ErrCanceled is returned when a run is canceled before completion. No
// partial results are delivered alongside it.
var ErrCanceled = errors.New("audit run canceled")

// ProgressFunc receives the number of rows evaluated so far out of the
// total, after each completed chunk.
type ProgressFunc func(processed, total int)

// Apply evaluates every row against the catalog and returns the annotated
// rows in input order. Cancellation is checked at each chunk boundary.
func (e *Engine) Apply(ctx context.Context, rows []domain.Transaction, cat *domain.Catalog) ([]domain.AuditedTransaction, error) {
	return e.ApplyWithProgress(ctx, rows, cat, nil)
}

// ApplyWithProgress is Apply with a per-chunk progress callback. The
// callback runs on the evaluating goroutine and should return quickly.
func (e *Engine) ApplyWithProgress(ctx context.Context, rows []domain.Transaction, cat *domain.Catalog, progress ProgressFunc) ([]domain.AuditedTransaction, error) {
	cc := e.compileCatalog(cat)
	total := len(rows)
	out := make([]domain.AuditedTransaction, 0, total)

	for start := 0; start < total; start += e.chunkSize {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w after %d of %d rows", ErrCanceled, start, total)
		}
		end := start + e.chunkSize
		if end > total {
			end = total
		}
		chunk, err := e.auditChunk(rows[start:end], cc)
		if err != nil {
			return nil, fmt.Errorf("rows %d-%d: %w", start, end, err)
		}
		out = append(out, chunk...)
		if progress != nil {
			progress(end, total)
		}
	}
	return out, nil
}

// auditChunk evaluates one chunk, converting a panic during rule
// evaluation into an error so the caller sees which chunk failed.
func (e *Engine) auditChunk(rows []domain.Transaction, cc *compiledCatalog) (out []domain.AuditedTransaction, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("rule evaluation panic: %v", r)
		}
	}()
	out = make([]domain.AuditedTransaction, len(rows))
	for i := range rows {
		out[i] = e.auditRow(&rows[i], cc)
	}
	return out, nil
}

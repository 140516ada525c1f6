// Package report aggregates audited transaction tables into run summaries.
package report

import (
	"sort"
	"strings"

	"github.com/NowenCR/expense-auditor/internal/domain"
	"github.com/NowenCR/expense-auditor/internal/engine"
)

// maxTopReasons caps the reason leaderboard stored with each run.
const maxTopReasons = 10

// Summarize reduces an audited table to the counts persisted with a run.
// Each row's reason trail is split on the pipe separator so one row can
// contribute to several reason counts.
func Summarize(rows []domain.AuditedTransaction) domain.RunSummary {
	summary := domain.RunSummary{RowCount: len(rows)}
	reasonCounts := make(map[string]int)

	for i := range rows {
		switch rows[i].Flag {
		case domain.SeverityOK:
			summary.OKCount++
		case domain.SeverityPossibleWarn:
			summary.PossibleWarnCount++
		case domain.SeverityDirectWarn:
			summary.DirectWarnCount++
		}

		for _, reason := range strings.Split(rows[i].Reasons, " | ") {
			reason = strings.TrimSpace(reason)
			if reason == "" {
				continue
			}
			switch reason {
			case engine.AllowlistReason:
				summary.AllowlistedCount++
			case engine.ForcedOverrideReason:
				summary.ForcedOverrideCount++
			default:
				reasonCounts[reason]++
			}
		}
	}

	summary.TopReasons = topReasons(reasonCounts, maxTopReasons)
	return summary
}

func topReasons(counts map[string]int, limit int) []domain.ReasonCount {
	out := make([]domain.ReasonCount, 0, len(counts))
	for reason, n := range counts {
		out = append(out, domain.ReasonCount{Reason: reason, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ShouldAlert reports whether a completed run warrants an alert event.
// Any direct warning qualifies; possible warnings alone do not.
func ShouldAlert(summary domain.RunSummary) bool {
	return summary.DirectWarnCount > 0
}

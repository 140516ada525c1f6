package report

import (
	"testing"

	"github.com/NowenCR/expense-auditor/internal/domain"
)

func audited(flag domain.Severity, reasons string) domain.AuditedTransaction {
	return domain.AuditedTransaction{Flag: flag, Reasons: reasons}
}

func TestSummarizeCounts(t *testing.T) {
	rows := []domain.AuditedTransaction{
		audited(domain.SeverityOK, ""),
		audited(domain.SeverityOK, "ALLOWLIST"),
		audited(domain.SeverityPossibleWarn, "high amount"),
		audited(domain.SeverityDirectWarn, "casino keyword | high amount"),
		audited(domain.SeverityDirectWarn, "ALLOWLIST | BLOQUEO FORZADO MCC"),
	}

	got := Summarize(rows)

	if got.RowCount != 5 {
		t.Errorf("expected 5 rows, got %d", got.RowCount)
	}
	if got.OKCount != 2 || got.PossibleWarnCount != 1 || got.DirectWarnCount != 2 {
		t.Errorf("severity counts wrong: %+v", got)
	}
	if got.AllowlistedCount != 2 {
		t.Errorf("expected 2 allowlisted, got %d", got.AllowlistedCount)
	}
	if got.ForcedOverrideCount != 1 {
		t.Errorf("expected 1 forced override, got %d", got.ForcedOverrideCount)
	}
}

func TestSummarizeTopReasons(t *testing.T) {
	rows := []domain.AuditedTransaction{
		audited(domain.SeverityPossibleWarn, "high amount"),
		audited(domain.SeverityPossibleWarn, "high amount"),
		audited(domain.SeverityDirectWarn, "casino keyword | high amount"),
		audited(domain.SeverityDirectWarn, "casino keyword"),
		audited(domain.SeverityPossibleWarn, "lodging keyword"),
	}

	got := Summarize(rows)

	if len(got.TopReasons) != 3 {
		t.Fatalf("expected 3 distinct reasons, got %+v", got.TopReasons)
	}
	if got.TopReasons[0].Reason != "high amount" || got.TopReasons[0].Count != 3 {
		t.Errorf("expected high amount x3 first, got %+v", got.TopReasons[0])
	}
	if got.TopReasons[1].Reason != "casino keyword" || got.TopReasons[1].Count != 2 {
		t.Errorf("expected casino keyword x2 second, got %+v", got.TopReasons[1])
	}
}

func TestShouldAlert(t *testing.T) {
	if ShouldAlert(domain.RunSummary{PossibleWarnCount: 10}) {
		t.Error("possible warnings alone must not alert")
	}
	if !ShouldAlert(domain.RunSummary{DirectWarnCount: 1}) {
		t.Error("a direct warning must alert")
	}
}

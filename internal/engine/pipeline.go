package engine

import (
	"strings"

	"github.com/NowenCR/expense-auditor/internal/domain"
)

// rowState accumulates one row's verdict as the stages run.
type rowState struct {
	flag           domain.Severity
	reasons        []string
	allowed        bool
	contentMatched bool
}

// fire records a content-rule match from stages 1 through 5. The row is
// marked content-matched even when the allowlist suppresses the severity,
// so a later amount rule cannot fire on it. DIRECT_WARN rules punch
// through the allowlist exemption.
func (st *rowState) fire(sev domain.Severity, reason string) {
	st.contentMatched = true
	if sev == domain.SeverityDirectWarn || !st.allowed {
		st.flag = domain.Combine(st.flag, sev)
		st.reasons = append(st.reasons, reason)
	}
}

// auditRow runs the full pipeline for a single transaction: six rule
// stages in fixed order, then the allowlist hard override, then the
// forced override.
func (e *Engine) auditRow(tx *domain.Transaction, cc *compiledCatalog) domain.AuditedTransaction {
	st := rowState{
		flag:    domain.SeverityOK,
		allowed: cc.allowed(tx),
	}

	// Condition activations are built lazily; most rows never reach a
	// rule that carries a condition.
	var activation map[string]any
	activate := func() map[string]any {
		if activation == nil {
			activation = rowActivation(tx)
		}
		return activation
	}

	// Stage 1: disallowed keywords, absolute DIRECT_WARN.
	for _, kw := range cc.disallowed {
		if kw.re == nil {
			continue
		}
		if kw.re.MatchString(tx.Merchant) || kw.re.MatchString(tx.Description) || kw.re.MatchString(tx.MCCDescription) {
			st.fire(domain.SeverityDirectWarn, "Prohibido: "+kw.raw)
		}
	}

	// Stage 2: exact MCC codes.
	for _, r := range cc.mccRules {
		if tx.MCC == r.MCC {
			st.fire(r.Severity, r.Reason)
		}
	}

	// Stage 3: keyword patterns over the text fields.
	for _, r := range cc.keywordRules {
		if r.re == nil {
			continue
		}
		if r.re.MatchString(tx.Merchant) || r.re.MatchString(tx.Description) || r.re.MatchString(tx.MCCDescription) {
			st.fire(r.severity, r.reason)
		}
	}

	// Stage 4: MCC description patterns, both pattern and condition must hold.
	for _, r := range cc.mccDescRules {
		if r.re == nil {
			continue
		}
		if r.re.MatchString(tx.MCCDescription) && r.cond.eval(activate()) {
			st.fire(r.severity, r.reason)
		}
	}

	// Stage 5: purchase categories.
	category := strings.ToLower(tx.PurchaseCategory)
	for _, r := range cc.categoryRules {
		if category != r.category {
			continue
		}
		if !r.cond.eval(activate()) {
			continue
		}
		excluded := false
		for _, re := range r.excludes {
			if re != nil && re.MatchString(tx.Merchant) {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}
		st.fire(r.severity, r.reason)
	}

	// Stage 6: amount thresholds. Amount is a last-resort signal and never
	// fires on a row any content rule already matched.
	if !st.contentMatched {
		for _, r := range cc.amountRules {
			if tx.Amount < r.min {
				continue
			}
			if r.category != "" && category != r.category {
				continue
			}
			if r.severity == domain.SeverityDirectWarn || !st.allowed {
				st.flag = domain.Combine(st.flag, r.severity)
				st.reasons = append(st.reasons, r.reason)
			}
		}
	}

	// Allowlist hard override: allow-masked rows are reset to OK no matter
	// what the stages recorded, absolute disallowed hits included.
	if st.allowed {
		st.flag = domain.SeverityOK
		st.reasons = []string{AllowlistReason}
	}

	// Forced override beats everything, the allowlist reset included.
	if forcedOverride(tx.MCCDescription) {
		st.flag = domain.SeverityDirectWarn
		st.reasons = append(st.reasons, ForcedOverrideReason)
	}

	return domain.AuditedTransaction{
		Transaction: *tx,
		Flag:        st.flag,
		Reasons:     strings.Join(st.reasons, " | "),
	}
}

package catalog

import (
	"fmt"
	"regexp"

	"github.com/NowenCR/expense-auditor/internal/domain"
)

// ConditionChecker reports whether a rule condition expression compiles to
// a boolean. The engine provides one; passing nil skips condition checks.
type ConditionChecker interface {
	CheckCondition(expr string) error
}

// Validate runs every pre-evaluation check over a catalog and returns the
// full list of problems. The engine tolerates all of them (bad rules match
// nothing), so validation is advisory: it exists so operators learn about
// a dead rule before a batch run silently ignores it.
func Validate(cat *domain.Catalog, checker ConditionChecker) []string {
	var problems []string

	badPattern := func(kind, pat string) {
		if _, err := regexp.Compile("(?i)" + pat); err != nil {
			problems = append(problems, fmt.Sprintf("%s: invalid pattern %q: %v", kind, pat, err))
		}
	}
	badCondition := func(kind, expr string) {
		if checker == nil || expr == "" {
			return
		}
		if err := checker.CheckCondition(expr); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", kind, err))
		}
	}

	for _, p := range cat.AllowlistPatterns {
		badPattern("allowlist_patterns", p.Pattern)
	}
	for _, pat := range cat.DisallowedKeywords {
		badPattern("disallowed_keywords", pat)
	}
	for _, r := range cat.KeywordRules {
		badPattern("keyword_rules", r.Pattern)
	}
	for _, r := range cat.MCCDescriptionRules {
		badPattern("mcc_description_rules", r.Pattern)
		badCondition("mcc_description_rules", r.Condition)
	}
	for _, r := range cat.PurchaseCategoryRules {
		badCondition("purchase_category_rules", r.Condition)
		for _, pat := range r.ExcludePatterns {
			badPattern("purchase_category_rules.exclude_patterns", pat)
		}
	}
	if err := checkSeverities(cat); err != nil {
		problems = append(problems, err.Error())
	}

	return problems
}

// ValidateDataset checks a row set against the engine's input contract:
// the merchant, mcc and amount columns must actually carry data. A column
// that is zero-valued on every row almost always means a broken upstream
// mapping, not a genuinely empty dataset.
func ValidateDataset(rows []domain.Transaction) []string {
	if len(rows) == 0 {
		return []string{"dataset is empty"}
	}

	var hasMerchant, hasMCC, hasAmount bool
	for i := range rows {
		if rows[i].Merchant != "" {
			hasMerchant = true
		}
		if rows[i].MCC != "" {
			hasMCC = true
		}
		if rows[i].Amount != 0 {
			hasAmount = true
		}
		if hasMerchant && hasMCC && hasAmount {
			return nil
		}
	}

	var problems []string
	if !hasMerchant {
		problems = append(problems, "dataset has no merchant values")
	}
	if !hasMCC {
		problems = append(problems, "dataset has no mcc values")
	}
	if !hasAmount {
		problems = append(problems, "dataset has no amount values")
	}
	return problems
}

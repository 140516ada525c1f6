package catalog

import (
	"fmt"
	"regexp"

	"github.com/NowenCR/expense-auditor/internal/domain"
)

// UsageReport reports which rules never fired against a dataset. Compliance
// mode: the catalog is never modified. A blocking rule that happens to be
// unused this month (gambling, for instance) must stay active for the next
// upload, so unused rules are reported, not removed.
func UsageReport(cat *domain.Catalog, rows []domain.Transaction) []string {
	var notes []string

	seenMCCs := make(map[string]struct{}, len(rows))
	for i := range rows {
		seenMCCs[rows[i].MCC] = struct{}{}
	}
	unusedMCCs := 0
	for _, r := range cat.MCCRules {
		if _, ok := seenMCCs[r.MCC]; !ok {
			unusedMCCs++
		}
	}
	if unusedMCCs > 0 {
		notes = append(notes, fmt.Sprintf("%d MCC rules did not fire on this dataset (kept active)", unusedMCCs))
	}

	unusedKeywords := 0
	for _, r := range cat.KeywordRules {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			continue
		}
		fired := false
		for i := range rows {
			if re.MatchString(rows[i].Merchant) {
				fired = true
				break
			}
		}
		if !fired {
			unusedKeywords++
		}
	}
	if unusedKeywords > 0 {
		notes = append(notes, fmt.Sprintf("%d keyword rules did not fire on this dataset (kept active)", unusedKeywords))
	}

	notes = append(notes, "catalog left intact (audit mode)")
	return notes
}

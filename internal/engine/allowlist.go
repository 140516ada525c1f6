package engine

import (
	"strings"

	"github.com/NowenCR/expense-auditor/internal/domain"
)

// AllowlistReason replaces a row's reason trail when the allowlist
// override clears it.
const AllowlistReason = "ALLOWLIST"

// allowed reports whether a row is allowlist-protected: either a plain
// merchant term appears as a case-insensitive substring of the merchant
// name, or a contextual pattern matches the concatenated merchant,
// description and MCC description text.
func (cc *compiledCatalog) allowed(tx *domain.Transaction) bool {
	if len(cc.allowTerms) == 0 && len(cc.allowPatterns) == 0 {
		return false
	}
	merchant := strings.ToLower(tx.Merchant)
	for _, term := range cc.allowTerms {
		if strings.Contains(merchant, term) {
			return true
		}
	}
	if len(cc.allowPatterns) > 0 {
		joined := strings.ToLower(tx.Merchant + " " + tx.Description + " " + tx.MCCDescription)
		for _, re := range cc.allowPatterns {
			if re != nil && re.MatchString(joined) {
				return true
			}
		}
	}
	return false
}

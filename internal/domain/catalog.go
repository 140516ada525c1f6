package domain

// Catalog is the declarative, operator-editable rule configuration.
//
// The schema is unified and additive: every collection is optional and
// defaults to empty, so documents written by any earlier catalog revision
// load into the same struct. Version is a human-readable provenance tag
// only; engine behavior never branches on it.
type Catalog struct {
	Version string `json:"version"`

	// AllowlistMerchants holds exact-substring exemption terms, matched
	// case-insensitively against the merchant column only.
	AllowlistMerchants []string `json:"allowlist_merchants,omitempty"`

	// AllowlistPatterns holds contextual exemptions: regexes tested against
	// the case-folded join of merchant, description and MCC description.
	AllowlistPatterns []AllowlistPattern `json:"allowlist_patterns,omitempty"`

	// DisallowedKeywords are absolute DIRECT_WARN regexes checked across
	// merchant, description and MCC description.
	DisallowedKeywords []string `json:"disallowed_keywords,omitempty"`

	MCCRules              []MCCRule              `json:"mcc_rules,omitempty"`
	KeywordRules          []KeywordRule          `json:"keyword_rules,omitempty"`
	MCCDescriptionRules   []MCCDescriptionRule   `json:"mcc_description_rules,omitempty"`
	PurchaseCategoryRules []PurchaseCategoryRule `json:"purchase_category_rules,omitempty"`
	AmountRules           []AmountRule           `json:"amount_rules,omitempty"`
}

// AllowlistPattern is one contextual exemption entry.
type AllowlistPattern struct {
	Pattern string `json:"pattern"`
	Reason  string `json:"reason,omitempty"`
}

// MCCRule flags rows whose MCC code equals the configured code exactly.
type MCCRule struct {
	MCC      string   `json:"mcc"`
	Severity Severity `json:"severity"`
	Reason   string   `json:"reason"`
}

// KeywordRule flags rows where the pattern matches merchant, description
// or MCC description.
type KeywordRule struct {
	Pattern  string   `json:"pattern"`
	Severity Severity `json:"severity"`
	Reason   string   `json:"reason"`
}

// MCCDescriptionRule flags rows where the pattern matches the MCC
// description and the optional condition expression holds.
type MCCDescriptionRule struct {
	Pattern   string   `json:"pattern"`
	Condition string   `json:"condition,omitempty"`
	Severity  Severity `json:"severity"`
	Reason    string   `json:"reason"`
}

// PurchaseCategoryRule flags rows in a named purchase category, subject to
// an optional condition and a list of merchant exclusion patterns that void
// the rule for matching rows.
type PurchaseCategoryRule struct {
	Category        string   `json:"category"`
	Condition       string   `json:"condition,omitempty"`
	Severity        Severity `json:"severity"`
	Reason          string   `json:"reason"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
}

// AmountScopeGlobal applies an amount rule to every row. Category scopes
// use the form "category:<name>".
const AmountScopeGlobal = "global"

// AmountRule flags rows at or above a threshold. Amount rules are the
// lowest-precedence category: they fire only on rows no content rule
// already matched.
type AmountRule struct {
	Scope     string   `json:"scope"`
	MinAmount float64  `json:"min_amount"`
	Severity  Severity `json:"severity"`
	Reason    string   `json:"reason"`
}

// CatalogRecord is a catalog document as persisted by the repository,
// versioned and tenant-isolated.
type CatalogRecord struct {
	ID       string  `json:"id"`
	TenantID string  `json:"tenantId,omitempty"`
	Name     string  `json:"name"`
	Version  string  `json:"version"`
	Document Catalog `json:"document"`
	Enabled  bool    `json:"enabled"`
}

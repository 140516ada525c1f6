// Package engine implements the expense audit rule evaluation engine.
//
// The engine takes a cleaned transaction table and a declarative rule
// catalog and computes, per row, a final severity flag and an ordered trail
// of matched reasons under a fixed precedence policy: six rule stages, an
// allowlist override, and a forced-override layer that beats everything.
package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/NowenCR/expense-auditor/internal/domain"
)

// DefaultChunkSize is the number of rows evaluated between progress
// reports and cancellation checks.
const DefaultChunkSize = 5000

// Engine evaluates transaction tables against rule catalogs.
// An Engine is safe for concurrent use; evaluation state lives entirely
// in each Apply call.
type Engine struct {
	env       *cel.Env
	chunkSize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithChunkSize overrides the default batch chunk size.
func WithChunkSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// New creates a rule evaluation engine.
func New(opts ...Option) (*Engine, error) {
	// CEL environment with the row's typed fields. The "row" map carries
	// every column, including dataset-specific ones, for free-form
	// conditions.
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("merchant", cel.StringType),
		cel.Variable("mcc", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("purchase_category", cel.StringType),
		cel.Variable("mcc_description", cel.StringType),
		cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{
		env:       env,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// CheckCondition compiles a condition expression and reports whether it is
// usable. The engine itself never fails on a bad condition (the rule simply
// matches nothing); this hook lets the catalog validator surface the
// problem to the operator instead.
func (e *Engine) CheckCondition(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("invalid condition %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("condition %q must evaluate to a boolean, got %s", expr, ast.OutputType())
	}
	return nil
}

// compiledCatalog is a catalog with every regex and condition compiled
// once per Apply call. Malformed patterns compile to nil and match
// nothing; the run never aborts on catalog content.
type compiledCatalog struct {
	allowTerms    []string
	allowPatterns []*regexp.Regexp
	disallowed    []disallowedKeyword
	mccRules      []domain.MCCRule
	keywordRules  []keywordRule
	mccDescRules  []mccDescriptionRule
	categoryRules []categoryRule
	amountRules   []amountRule
}

type disallowedKeyword struct {
	re  *regexp.Regexp
	raw string
}

type keywordRule struct {
	re       *regexp.Regexp
	severity domain.Severity
	reason   string
}

type mccDescriptionRule struct {
	re       *regexp.Regexp
	cond     condition
	severity domain.Severity
	reason   string
}

type categoryRule struct {
	category string // lower-cased for exact case-insensitive match
	cond     condition
	excludes []*regexp.Regexp
	severity domain.Severity
	reason   string
}

type amountRule struct {
	category string // empty means global scope
	min      float64
	severity domain.Severity
	reason   string
}

func (e *Engine) compileCatalog(cat *domain.Catalog) *compiledCatalog {
	cc := &compiledCatalog{
		mccRules: cat.MCCRules,
	}

	for _, term := range cat.AllowlistMerchants {
		term = strings.TrimSpace(term)
		if term != "" {
			cc.allowTerms = append(cc.allowTerms, strings.ToLower(term))
		}
	}

	for _, p := range cat.AllowlistPatterns {
		cc.allowPatterns = append(cc.allowPatterns, compileSearchPattern(p.Pattern))
	}

	for _, pat := range cat.DisallowedKeywords {
		cc.disallowed = append(cc.disallowed, disallowedKeyword{
			re:  compileSearchPattern(pat),
			raw: pat,
		})
	}

	for _, r := range cat.KeywordRules {
		cc.keywordRules = append(cc.keywordRules, keywordRule{
			re:       compileSearchPattern(r.Pattern),
			severity: r.Severity,
			reason:   r.Reason,
		})
	}

	for _, r := range cat.MCCDescriptionRules {
		cc.mccDescRules = append(cc.mccDescRules, mccDescriptionRule{
			re:       compileSearchPattern(r.Pattern),
			cond:     e.compileCondition(r.Condition),
			severity: r.Severity,
			reason:   r.Reason,
		})
	}

	for _, r := range cat.PurchaseCategoryRules {
		cr := categoryRule{
			category: strings.ToLower(r.Category),
			cond:     e.compileCondition(r.Condition),
			severity: r.Severity,
			reason:   r.Reason,
		}
		for _, pat := range r.ExcludePatterns {
			cr.excludes = append(cr.excludes, compileSearchPattern(pat))
		}
		cc.categoryRules = append(cc.categoryRules, cr)
	}

	for _, r := range cat.AmountRules {
		ar := amountRule{
			min:      r.MinAmount,
			severity: r.Severity,
			reason:   r.Reason,
		}
		scope := strings.ToLower(strings.TrimSpace(r.Scope))
		if after, ok := strings.CutPrefix(scope, "category:"); ok {
			ar.category = strings.TrimSpace(after)
		}
		cc.amountRules = append(cc.amountRules, ar)
	}

	return cc
}

// compileSearchPattern compiles a catalog regex for case-insensitive
// substring search. A malformed pattern returns nil, which matches
// nothing: a typo in one rule must never abort a batch run.
func compileSearchPattern(pat string) *regexp.Regexp {
	re, err := regexp.Compile("(?i)" + pat)
	if err != nil {
		return nil
	}
	return re
}

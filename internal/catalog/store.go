// Package catalog handles rule catalog persistence and validation. The
// engine assumes a structurally valid catalog; everything here runs before
// evaluation so that operator typos surface at load time, not mid-run.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/NowenCR/expense-auditor/internal/domain"
)

// Load reads a catalog document from disk. Missing optional collections
// default to empty; a document with an unknown severity fails the load
// before any evaluation can happen.
func Load(path string) (*domain.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and structurally validates a catalog document.
func Parse(data []byte) (*domain.Catalog, error) {
	var cat domain.Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := checkSeverities(&cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Save writes a catalog document to disk, pretty-printed for hand editing.
func Save(cat *domain.Catalog, path string) error {
	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	return nil
}

func checkSeverities(cat *domain.Catalog) error {
	check := func(kind string, i int, sev domain.Severity) error {
		if !sev.Valid() {
			return fmt.Errorf("%s[%d]: unknown severity %q", kind, i, sev)
		}
		return nil
	}
	for i, r := range cat.MCCRules {
		if err := check("mcc_rules", i, r.Severity); err != nil {
			return err
		}
	}
	for i, r := range cat.KeywordRules {
		if err := check("keyword_rules", i, r.Severity); err != nil {
			return err
		}
	}
	for i, r := range cat.MCCDescriptionRules {
		if err := check("mcc_description_rules", i, r.Severity); err != nil {
			return err
		}
	}
	for i, r := range cat.PurchaseCategoryRules {
		if err := check("purchase_category_rules", i, r.Severity); err != nil {
			return err
		}
	}
	for i, r := range cat.AmountRules {
		if err := check("amount_rules", i, r.Severity); err != nil {
			return err
		}
	}
	return nil
}

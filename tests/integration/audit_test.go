//go:build integration
// +build integration

// Package integration provides end-to-end tests for the expense auditor.
//
// These tests verify the complete audit pipeline:
//
//	Rows → Catalog rules → Allowlist → Forced override → Summary → Run record
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The tests expect a running auditor (go run cmd/auditor/main.go) and talk to
// it over HTTP. They seed their own catalog through the API.
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration.
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("AUDITOR_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: "test-tenant",
	}
}

// Row matches the auditor's transaction shape.
type Row struct {
	Merchant         string  `json:"merchant"`
	MCC              string  `json:"mcc"`
	Amount           float64 `json:"amount"`
	Description      string  `json:"description,omitempty"`
	PurchaseCategory string  `json:"purchase_category,omitempty"`
	MCCDescription   string  `json:"mcc_description,omitempty"`
}

// AuditResponse is the subset of POST /audit's response these tests read.
type AuditResponse struct {
	RunID   string `json:"runId"`
	Status  string `json:"status"`
	Summary struct {
		RowCount            int `json:"rowCount"`
		OKCount             int `json:"okCount"`
		PossibleWarnCount   int `json:"possibleWarnCount"`
		DirectWarnCount     int `json:"directWarnCount"`
		AllowlistedCount    int `json:"allowlistedCount"`
		ForcedOverrideCount int `json:"forcedOverrideCount"`
	} `json:"summary"`
	Results []struct {
		Merchant string `json:"merchant"`
		Flag     string `json:"flag"`
		Reasons  string `json:"reasons"`
	} `json:"results"`
	Metadata struct {
		TraceID string `json:"traceId"`
		Version string `json:"version"`
	} `json:"metadata"`
}

func testCatalog() map[string]any {
	return map[string]any{
		"version":             "it-1.0",
		"allowlist_merchants": []string{"hotel boston bar"},
		"disallowed_keywords": []string{"strip club"},
		"keyword_rules": []map[string]any{
			{"pattern": "casino", "severity": "DIRECT_WARN", "reason": "Gambling merchant"},
		},
		"mcc_rules": []map[string]any{
			{"mcc": "5813", "severity": "POSSIBLE_WARN", "reason": "Drinking place MCC"},
		},
		"amount_rules": []map[string]any{
			{"scope": "global", "min_amount": 1000, "severity": "POSSIBLE_WARN", "reason": "High amount"},
		},
	}
}

func doJSON(t *testing.T, config TestConfig, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp, respBody
}

func audit(t *testing.T, config TestConfig, rows []Row, catalogID string) AuditResponse {
	t.Helper()

	resp, body := doJSON(t, config, "POST", "/audit", map[string]any{
		"rows":      rows,
		"catalogId": catalogID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(body))
	}

	var result AuditResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(body))
	}
	return result
}

func seedCatalog(t *testing.T, config TestConfig) string {
	t.Helper()

	const catalogID = "integration-catalog"
	resp, body := doJSON(t, config, "POST", "/catalogs", map[string]any{
		"id":       catalogID,
		"name":     "Integration test catalog",
		"document": testCatalog(),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Failed to seed catalog: %d: %s", resp.StatusCode, string(body))
	}
	return catalogID
}

func TestAuditPipeline(t *testing.T) {
	/*
	   SCENARIO: a mixed batch covering every severity path.

	     row 0: clean merchant, small amount        → OK
	     row 1: keyword rule match ("casino")       → DIRECT_WARN
	     row 2: MCC rule match (5813)               → POSSIBLE_WARN
	     row 3: high amount, no content match       → POSSIBLE_WARN (amount rule)
	     row 4: allowlisted merchant with MCC match → OK with ALLOWLIST reason
	     row 5: BAR in MCC description              → DIRECT_WARN (forced override)
	*/
	config := getTestConfig()
	catalogID := seedCatalog(t, config)

	rows := []Row{
		{Merchant: "OFFICE SUPPLIES CO", MCC: "5111", Amount: 42},
		{Merchant: "GRAND CASINO RESORT", MCC: "7995", Amount: 120},
		{Merchant: "CITY PUB", MCC: "5813", Amount: 35},
		{Merchant: "CONFERENCE CENTER", MCC: "7399", Amount: 2500},
		{Merchant: "HOTEL BOSTON BAR", MCC: "5813", Amount: 60},
		{Merchant: "AIRPORT SHOP", MCC: "5813", MCCDescription: "DRINKING PLACES BAR", Amount: 15},
	}

	result := audit(t, config, rows, catalogID)

	if result.Status != "completed" {
		t.Fatalf("Expected completed run, got %s", result.Status)
	}
	if len(result.Results) != len(rows) {
		t.Fatalf("Expected %d results, got %d", len(rows), len(result.Results))
	}

	expected := []string{"OK", "DIRECT_WARN", "POSSIBLE_WARN", "POSSIBLE_WARN", "OK", "DIRECT_WARN"}
	for i, want := range expected {
		if got := result.Results[i].Flag; got != want {
			t.Errorf("Row %d (%s): expected %s, got %s (reasons: %s)",
				i, rows[i].Merchant, want, got, result.Results[i].Reasons)
		}
	}

	if result.Results[4].Reasons != "ALLOWLIST" {
		t.Errorf("Allowlisted row: expected reasons ALLOWLIST, got %q", result.Results[4].Reasons)
	}
	if result.Results[5].Reasons == "" {
		t.Error("Forced override row: expected a reason trail")
	}

	if result.Summary.DirectWarnCount != 2 {
		t.Errorf("Expected 2 direct warns in summary, got %d", result.Summary.DirectWarnCount)
	}
	if result.Summary.AllowlistedCount != 1 {
		t.Errorf("Expected 1 allowlisted row in summary, got %d", result.Summary.AllowlistedCount)
	}
	if result.Summary.ForcedOverrideCount != 1 {
		t.Errorf("Expected 1 forced override in summary, got %d", result.Summary.ForcedOverrideCount)
	}

	t.Logf("pipeline ok: runId=%s, summary=%+v", result.RunID, result.Summary)
}

func TestRunIsPersisted(t *testing.T) {
	config := getTestConfig()
	catalogID := seedCatalog(t, config)

	result := audit(t, config, []Row{{Merchant: "SHOP", MCC: "5999", Amount: 10}}, catalogID)

	resp, body := doJSON(t, config, "GET", "/runs/"+result.RunID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 fetching run, got %d: %s", resp.StatusCode, string(body))
	}

	var run struct {
		ID             string `json:"id"`
		Status         string `json:"status"`
		RowCount       int    `json:"rowCount"`
		CatalogVersion string `json:"catalogVersion"`
	}
	if err := json.Unmarshal(body, &run); err != nil {
		t.Fatalf("Failed to unmarshal run: %v", err)
	}

	if run.Status != "completed" {
		t.Errorf("Expected completed run, got %s", run.Status)
	}
	if run.RowCount != 1 {
		t.Errorf("Expected row count 1, got %d", run.RowCount)
	}
	if run.CatalogVersion != "it-1.0" {
		t.Errorf("Expected catalog version it-1.0, got %s", run.CatalogVersion)
	}
}

func TestBrokenCatalogRejected(t *testing.T) {
	/*
	   SCENARIO: catalog with a broken regex is rejected at creation time.
	   The engine itself degrades malformed patterns to match-nothing, but
	   the API surfaces the problem up front.
	*/
	config := getTestConfig()

	doc := testCatalog()
	doc["keyword_rules"] = []map[string]any{
		{"pattern": "(unclosed", "severity": "POSSIBLE_WARN", "reason": "bad"},
	}

	resp, body := doJSON(t, config, "POST", "/catalogs", map[string]any{
		"id":       "broken-catalog",
		"name":     "Broken catalog",
		"document": doc,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for broken catalog, got %d: %s", resp.StatusCode, string(body))
	}
}

func TestMissingTenantHeader(t *testing.T) {
	config := getTestConfig()

	req, _ := http.NewRequest("POST", config.BaseURL+"/audit", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	// No X-Tenant-ID header

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing tenant, got %d", resp.StatusCode)
	}
}

func TestResponseMetadata(t *testing.T) {
	config := getTestConfig()
	catalogID := seedCatalog(t, config)

	result := audit(t, config, []Row{{Merchant: "SHOP", MCC: "5999", Amount: 10}}, catalogID)

	if result.RunID == "" {
		t.Error("Missing runId")
	}
	if result.Metadata.TraceID == "" {
		t.Error("Missing metadata.traceId")
	}
	if result.Metadata.Version == "" {
		t.Error("Missing metadata.version")
	}
}

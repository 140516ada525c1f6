// Benchmark tool for testing the auditor against labeled expense data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/expenses.csv -catalog /path/to/catalog.json -url http://localhost:8080
//
// This tool:
//   1. Reads expense rows (optionally with an expected_flag column)
//   2. Sends them to the auditor in chunks via POST /audit
//   3. Compares the auditor's flags with expected labels when present
//   4. Reports throughput and per-severity agreement
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// ExpenseRow is a row from the benchmark CSV.
type ExpenseRow struct {
	Merchant         string  `json:"merchant"`
	MCC              string  `json:"mcc"`
	Amount           float64 `json:"amount"`
	Description      string  `json:"description,omitempty"`
	PurchaseCategory string  `json:"purchase_category,omitempty"`
	MCCDescription   string  `json:"mcc_description,omitempty"`

	expectedFlag string
}

// AuditRequest matches the auditor's POST /audit body.
type AuditRequest struct {
	Rows    []ExpenseRow    `json:"rows"`
	Catalog json.RawMessage `json:"catalog"`
}

// AuditResponse is the subset of the response the benchmark reads.
type AuditResponse struct {
	RunID   string `json:"runId"`
	Status  string `json:"status"`
	Summary struct {
		RowCount          int `json:"rowCount"`
		OKCount           int `json:"okCount"`
		PossibleWarnCount int `json:"possibleWarnCount"`
		DirectWarnCount   int `json:"directWarnCount"`
	} `json:"summary"`
	Results []struct {
		Merchant string `json:"merchant"`
		Flag     string `json:"flag"`
		Reasons  string `json:"reasons"`
	} `json:"results"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int
	TotalLabeled   int
	Agreements     int
	Disagreements  int

	FlagCounts map[string]int
}

func main() {
	csvPath := flag.String("csv", "", "Path to expense CSV file")
	catalogPath := flag.String("catalog", "", "Path to catalog JSON file")
	baseURL := flag.String("url", "http://localhost:8080", "Auditor base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 0, "Maximum rows to process (0 = all)")
	chunkSize := flag.Int("chunk", 5000, "Rows per request")
	verbose := flag.Bool("verbose", false, "Print each disagreement")
	flag.Parse()

	if *csvPath == "" || *catalogPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/expenses.csv -catalog /path/to/catalog.json [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("expense-auditor benchmark")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("Catalog:      %s\n", *catalogPath)
	fmt.Printf("Auditor URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:    %s\n", *tenantID)
	fmt.Printf("Chunk size:   %d\n", *chunkSize)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: auditor not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the auditor is running:")
		fmt.Println("  go run cmd/auditor/main.go")
		os.Exit(1)
	}
	fmt.Println("auditor is healthy")

	catalogDoc, err := os.ReadFile(*catalogPath)
	if err != nil {
		fmt.Printf("ERROR: failed to read catalog: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nReading expense rows from %s...\n", *csvPath)
	rows, err := readExpenseCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("loaded %d rows\n", len(rows))

	startTime := time.Now()
	metrics, err := runBenchmark(rows, catalogDoc, *baseURL, *tenantID, *chunkSize, *verbose)
	if err != nil {
		fmt.Printf("ERROR: benchmark failed: %v\n", err)
		os.Exit(1)
	}
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readExpenseCSV(path string, limit int) ([]ExpenseRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	field := func(record []string, name string) string {
		if i, ok := colIndex[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	var rows []ExpenseRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip malformed rows
		}

		amount, _ := strconv.ParseFloat(field(record, "amount"), 64)

		rows = append(rows, ExpenseRow{
			Merchant:         field(record, "merchant"),
			MCC:              field(record, "mcc"),
			Amount:           amount,
			Description:      field(record, "description"),
			PurchaseCategory: field(record, "purchase_category"),
			MCCDescription:   field(record, "mcc_description"),
			expectedFlag:     field(record, "expected_flag"),
		})

		if limit > 0 && len(rows) >= limit {
			break
		}
	}

	return rows, nil
}

func runBenchmark(rows []ExpenseRow, catalogDoc []byte, baseURL, tenantID string, chunkSize int, verbose bool) (*Metrics, error) {
	metrics := &Metrics{FlagCounts: make(map[string]int)}
	client := &http.Client{Timeout: 5 * time.Minute}

	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		result, err := auditChunk(client, baseURL, tenantID, chunk, catalogDoc)
		if err != nil {
			return nil, fmt.Errorf("rows %d-%d: %w", start, end-1, err)
		}
		if len(result.Results) != len(chunk) {
			return nil, fmt.Errorf("rows %d-%d: got %d results for %d rows", start, end-1, len(result.Results), len(chunk))
		}

		for i, res := range result.Results {
			metrics.TotalProcessed++
			metrics.FlagCounts[res.Flag]++

			expected := chunk[i].expectedFlag
			if expected == "" {
				continue
			}
			metrics.TotalLabeled++
			if res.Flag == expected {
				metrics.Agreements++
			} else {
				metrics.Disagreements++
				if verbose {
					fmt.Printf("MISMATCH %-30s | expected %-13s | got %-13s | %s\n",
						res.Merchant, expected, res.Flag, res.Reasons)
				}
			}
		}

		fmt.Printf("  processed %d/%d rows\n", end, len(rows))
	}

	return metrics, nil
}

func auditChunk(client *http.Client, baseURL, tenantID string, chunk []ExpenseRow, catalogDoc []byte) (*AuditResponse, error) {
	body, err := json.Marshal(AuditRequest{Rows: chunk, Catalog: catalogDoc})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/audit", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result AuditResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")
	fmt.Printf("\n  Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("  Duration:         %s\n", duration.Round(time.Millisecond))
	if duration > 0 {
		fmt.Printf("  Throughput:       %.0f rows/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}

	fmt.Println("\n  Flags:")
	for _, flag := range []string{"OK", "POSSIBLE_WARN", "DIRECT_WARN"} {
		fmt.Printf("    %-14s %d\n", flag, m.FlagCounts[flag])
	}

	if m.TotalLabeled > 0 {
		fmt.Println("\n  Label agreement:")
		fmt.Printf("    Labeled rows:   %d\n", m.TotalLabeled)
		fmt.Printf("    Agreements:     %d\n", m.Agreements)
		fmt.Printf("    Disagreements:  %d\n", m.Disagreements)
		fmt.Printf("    Accuracy:       %.2f%%\n", 100*float64(m.Agreements)/float64(m.TotalLabeled))
	}
	fmt.Println()
}

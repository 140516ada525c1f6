package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NowenCR/expense-auditor/internal/cache"
	"github.com/NowenCR/expense-auditor/internal/domain"
)

type fakeClient struct {
	calls   int
	failFor string
}

func (f *fakeClient) ClassifyMerchant(ctx context.Context, q MerchantQuery) (*domain.AIAnnotation, error) {
	f.calls++
	if f.failFor != "" && strings.Contains(q.Merchant, f.failFor) {
		return nil, fmt.Errorf("model unavailable")
	}
	return &domain.AIAnnotation{
		Severity:   string(domain.SeverityPossibleWarn),
		Reason:     "classified " + q.Merchant,
		Category:   "Entertainment",
		Confidence: 0.9,
	}, nil
}

func warnRow(merchant, mcc string) domain.AuditedTransaction {
	return domain.AuditedTransaction{
		Transaction: domain.Transaction{Merchant: merchant, MCC: mcc, Amount: 100},
		Flag:        domain.SeverityPossibleWarn,
		Reasons:     "high amount",
	}
}

func TestAnnotatorGroupsByMerchant(t *testing.T) {
	client := &fakeClient{}
	ann := NewAnnotator(client, cache.NewLRUCache(100), domain.AIConfig{MaxCalls: 200, WarningsOnly: true}, nil)

	rows := []domain.AuditedTransaction{
		warnRow("Nice Casino", "7995"),
		warnRow("nice casino", "7995"), // same merchant, different case
		warnRow("Grand Hotel", "7011"),
	}

	calls, err := ann.Annotate(context.Background(), "tenant-001", rows)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	if calls != 2 {
		t.Errorf("expected 2 calls for 2 unique merchants, got %d", calls)
	}
	for i, row := range rows {
		if row.AI == nil {
			t.Errorf("row %d missing annotation", i)
		}
	}
	if rows[0].AI != rows[1].AI {
		t.Error("case variants of the same merchant should share one annotation")
	}
}

func TestAnnotatorWarningsOnly(t *testing.T) {
	client := &fakeClient{}
	ann := NewAnnotator(client, cache.NewLRUCache(100), domain.AIConfig{MaxCalls: 200, WarningsOnly: true}, nil)

	rows := []domain.AuditedTransaction{
		warnRow("Nice Casino", "7995"),
		{
			Transaction: domain.Transaction{Merchant: "Office Depot", MCC: "5943", Amount: 20},
			Flag:        domain.SeverityOK,
		},
	}

	if _, err := ann.Annotate(context.Background(), "tenant-001", rows); err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	if rows[0].AI == nil {
		t.Error("warning row should be annotated")
	}
	if rows[1].AI != nil {
		t.Error("OK row must be skipped in warnings-only mode")
	}
}

func TestAnnotatorCallCap(t *testing.T) {
	client := &fakeClient{}
	ann := NewAnnotator(client, cache.NewLRUCache(100), domain.AIConfig{MaxCalls: 2, WarningsOnly: false}, nil)

	rows := []domain.AuditedTransaction{
		warnRow("Merchant A", "1111"),
		warnRow("Merchant B", "2222"),
		warnRow("Merchant C", "3333"),
	}

	calls, err := ann.Annotate(context.Background(), "tenant-001", rows)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	if calls != 2 {
		t.Errorf("expected calls capped at 2, got %d", calls)
	}
	if rows[2].AI != nil {
		t.Error("merchant past the cap must stay unannotated")
	}
}

func TestAnnotatorUsesCache(t *testing.T) {
	client := &fakeClient{}
	c := cache.NewLRUCache(100)
	cfg := domain.AIConfig{MaxCalls: 200, WarningsOnly: true}

	rows := []domain.AuditedTransaction{warnRow("Nice Casino", "7995")}

	ann := NewAnnotator(client, c, cfg, nil)
	if _, err := ann.Annotate(context.Background(), "tenant-001", rows); err != nil {
		t.Fatalf("first Annotate failed: %v", err)
	}

	// Second run over the same merchant hits the cache, no new call.
	rows2 := []domain.AuditedTransaction{warnRow("NICE CASINO", "7995")}
	calls, err := ann.Annotate(context.Background(), "tenant-001", rows2)
	if err != nil {
		t.Fatalf("second Annotate failed: %v", err)
	}

	if calls != 0 {
		t.Errorf("expected 0 calls on cache hit, got %d", calls)
	}
	if rows2[0].AI == nil || rows2[0].AI.Reason != "classified Nice Casino" {
		t.Errorf("expected cached annotation, got %+v", rows2[0].AI)
	}
	if client.calls != 1 {
		t.Errorf("expected 1 total client call, got %d", client.calls)
	}
}

func TestAnnotatorDailyBudget(t *testing.T) {
	client := &fakeClient{}
	c := cache.NewLRUCache(100)
	// Budget of 1: the second unique merchant is refused.
	ann := NewAnnotator(client, c, domain.AIConfig{MaxCalls: 200, DailyBudget: 1, WarningsOnly: false}, nil)

	rows := []domain.AuditedTransaction{
		warnRow("Merchant A", "1111"),
		warnRow("Merchant B", "2222"),
	}

	calls, err := ann.Annotate(context.Background(), "tenant-001", rows)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	if calls != 1 {
		t.Errorf("expected 1 call under daily budget, got %d", calls)
	}
	if rows[1].AI != nil {
		t.Error("merchant past the budget must stay unannotated")
	}
}

func TestAnnotatorContinuesAfterClientError(t *testing.T) {
	client := &fakeClient{failFor: "Broken"}
	ann := NewAnnotator(client, cache.NewLRUCache(100), domain.AIConfig{MaxCalls: 200, WarningsOnly: false}, nil)

	rows := []domain.AuditedTransaction{
		warnRow("Broken Merchant", "1111"),
		warnRow("Good Merchant", "2222"),
	}

	if _, err := ann.Annotate(context.Background(), "tenant-001", rows); err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	if rows[0].AI == nil || !strings.Contains(rows[0].AI.Reason, "classification error") {
		t.Errorf("failed call should annotate the error, got %+v", rows[0].AI)
	}
	if rows[1].AI == nil || rows[1].AI.Reason != "classified Good Merchant" {
		t.Errorf("later merchants must still be classified, got %+v", rows[1].AI)
	}
}

func TestOpenAIClientClassifyMerchant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if len(req.Messages) != 2 {
			t.Errorf("expected system + user messages, got %d", len(req.Messages))
		}
		if !strings.Contains(req.Messages[1].Content, "Nice Casino") {
			t.Errorf("prompt missing merchant: %s", req.Messages[1].Content)
		}

		reply := map[string]any{
			"choices": []map[string]any{
				{
					"message": map[string]string{
						"role":    "assistant",
						"content": "```json\n{\"severity\": \"DIRECT_WARN\", \"reason\": \"gambling venue\", \"category\": \"Gambling\", \"confidence\": 0.97}\n```",
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reply)
	}))
	defer server.Close()

	client, err := NewOpenAIClient(domain.AIConfig{BaseURL: server.URL, Model: "gpt-4o-mini"}, "test-key")
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ann, err := client.ClassifyMerchant(ctx, MerchantQuery{
		Merchant: "Nice Casino",
		MCC:      "7995",
		Amount:   50,
		Flag:     domain.SeverityDirectWarn,
		Reasons:  "casino keyword",
	})
	if err != nil {
		t.Fatalf("ClassifyMerchant failed: %v", err)
	}

	if ann.Severity != "DIRECT_WARN" {
		t.Errorf("expected DIRECT_WARN, got %s", ann.Severity)
	}
	if ann.Category != "Gambling" {
		t.Errorf("expected Gambling, got %s", ann.Category)
	}
	if ann.Confidence != 0.97 {
		t.Errorf("expected confidence 0.97, got %f", ann.Confidence)
	}
}

func TestOpenAIClientServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewOpenAIClient(domain.AIConfig{BaseURL: server.URL}, "test-key")
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	_, err = client.ClassifyMerchant(context.Background(), MerchantQuery{Merchant: "X"})
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry the status code, got %v", err)
	}
}

func TestOpenAIClientRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIClient(domain.AIConfig{}, ""); err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestMerchantKey(t *testing.T) {
	if MerchantKey("  Nice Casino ", "7995") != "NICE CASINO|7995" {
		t.Errorf("unexpected key: %s", MerchantKey("  Nice Casino ", "7995"))
	}
}

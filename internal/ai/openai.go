package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/NowenCR/expense-auditor/internal/domain"
)

const systemPrompt = "You are a corporate expense compliance classifier. " +
	"You MUST respond with ONLY a valid JSON object with the keys " +
	`"severity" (one of "OK", "POSSIBLE_WARN", "DIRECT_WARN"), "reason", ` +
	`"category" and "confidence" (0.0-1.0). Do not include any explanatory ` +
	"text, markdown formatting, or commentary before or after the JSON. " +
	"Start your response directly with { and end with }."

// OpenAIClient implements Client against any OpenAI-compatible chat
// completions endpoint.
type OpenAIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewOpenAIClient creates a chat-completions client.
func NewOpenAIClient(cfg domain.AIConfig, apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAIClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// ClassifyMerchant sends one classification request.
func (c *OpenAIClient) ClassifyMerchant(ctx context.Context, q MerchantQuery) (*domain.AIAnnotation, error) {
	prompt := fmt.Sprintf(
		"Classify this corporate card charge.\nmerchant: %s\nmcc: %s\ndescription: %s\npurchase_category: %s\namount: %.2f\nrule_flag: %s\nrule_reasons: %s",
		q.Merchant, q.MCC, q.Description, q.PurchaseCategory, q.Amount, q.Flag, q.Reasons,
	)

	requestBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.2,
		"max_tokens":  200,
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", strings.NewReader(string(jsonBody)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat completions error (status %d): %s", resp.StatusCode, string(body))
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no completion choices returned")
	}

	return parseAnnotation(response.Choices[0].Message.Content)
}

// parseAnnotation extracts the annotation from the model's reply.
func parseAnnotation(content string) (*domain.AIAnnotation, error) {
	var jsonResp struct {
		Severity   string  `json:"severity"`
		Reason     string  `json:"reason"`
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}

	content = cleanMarkdownWrapper(content)

	if err := json.Unmarshal([]byte(content), &jsonResp); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if jsonResp.Severity == "" {
		return nil, fmt.Errorf("no severity found in response")
	}

	return &domain.AIAnnotation{
		Severity:   jsonResp.Severity,
		Reason:     jsonResp.Reason,
		Category:   jsonResp.Category,
		Confidence: jsonResp.Confidence,
	}, nil
}

// cleanMarkdownWrapper strips a ```json code fence some models insist on
// wrapping their output in.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}
	return content
}

// chatResponse represents the chat completions API response structure.
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

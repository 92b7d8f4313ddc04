// internal/engine/aigateway/client.go

// Package aigateway is the boundary to the external language-model service.
// The service is untrusted for latency and availability: every call is
// context-bounded with at most one retry, and every failure maps to a
// gateway error the pipeline can degrade on.
package aigateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"scm-assistant/internal/common/config"
	enginerrors "scm-assistant/internal/common/errors"
	"scm-assistant/internal/common/logger"
)

// Apology is the only user-visible soft-failure text.
const Apology = "抱歉，我暂时无法回答这个问题，请稍后再试。"

// Client talks to the LLM service over plain HTTP JSON.
type Client struct {
	baseURL     string
	apiKey      string
	timeout     time.Duration
	maxRetries  int
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	logger      logger.Logger
}

func NewClient(cfg config.LLMConfig, log logger.Logger) *Client {
	retries := cfg.MaxRetries
	if retries > 1 {
		retries = 1
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		timeout:     time.Duration(cfg.Timeout) * time.Millisecond,
		maxRetries:  retries,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		// No client-level timeout; the per-call context bounds each request.
		httpClient: &http.Client{},
		logger:     log.WithFields(map[string]interface{}{"component": "aigateway"}),
	}
}

// GenerateRequest is the single-shot generation contract.
type GenerateRequest struct {
	Prompt  string                 `json:"prompt"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Generate sends a prompt and returns the model's text verbatim.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	body := map[string]interface{}{
		"prompt":      req.Prompt,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
	}
	if req.Context != nil {
		body["context"] = req.Context
	}

	var apiResponse struct {
		Text string `json:"text"`
	}
	if err := c.doJSON(ctx, "/api/ai/generate", body, &apiResponse); err != nil {
		return "", err
	}

	text := strings.TrimSpace(apiResponse.Text)
	if text == "" {
		return "", enginerrors.NewAIGatewayError("empty generation response")
	}
	return text, nil
}

// Classification is the workflow's intent-classification result.
type Classification struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Classify asks the model which data scenario a free-text query belongs to.
func (c *Client) Classify(ctx context.Context, query string) (*Classification, error) {
	body := map[string]interface{}{"query": query}

	var apiResponse Classification
	if err := c.doJSON(ctx, "/api/ai/classify-intent", body, &apiResponse); err != nil {
		return nil, err
	}
	if apiResponse.Category == "" {
		return nil, enginerrors.NewAIGatewayError("classification returned no category")
	}
	if apiResponse.Confidence < 0 || apiResponse.Confidence > 1 {
		apiResponse.Confidence = 0.5
	}
	return &apiResponse, nil
}

// doJSON posts a JSON body with the bounded retry loop. Context expiry at
// any point maps to the timeout error class.
func (c *Client) doJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return enginerrors.NewAIGatewayError(fmt.Sprintf("encode request: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return enginerrors.NewAIGatewayTimeoutError(path)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return enginerrors.NewAIGatewayError(err.Error())
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, lastErr = c.httpClient.Do(req)

		if ctx.Err() != nil ||
			errors.Is(lastErr, context.DeadlineExceeded) ||
			errors.Is(lastErr, context.Canceled) {
			return enginerrors.NewAIGatewayTimeoutError(path)
		}

		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return enginerrors.NewAIGatewayTimeoutError(path)
		}
		return enginerrors.NewAIGatewayError(lastErr.Error())
	}
	if resp == nil {
		return enginerrors.NewAIGatewayError("no successful response after retries")
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return enginerrors.NewAIGatewayError(fmt.Sprintf("decode response: %v", err))
	}
	return nil
}

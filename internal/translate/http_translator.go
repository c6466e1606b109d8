package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pdf-translator/internal/logger"
)

// DefaultAPIURL is used when no base URL is configured.
const DefaultAPIURL = "https://api.openai.com/v1/chat/completions"

// Translator translates one piece of text.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// HTTPTranslator calls an OpenAI compatible chat completions endpoint.
type HTTPTranslator struct {
	apiKey string
	apiURL string
	model  string
	client *http.Client
}

// HTTPTranslatorConfig holds configuration options for creating an HTTPTranslator
type HTTPTranslatorConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewHTTPTranslator creates a new HTTPTranslator with the given configuration
func NewHTTPTranslator(cfg HTTPTranslatorConfig) *HTTPTranslator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &HTTPTranslator{
		apiKey: cfg.APIKey,
		apiURL: normalizeAPIURL(cfg.BaseURL),
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

// ChatCompletionRequest represents the request body for OpenAI chat completions API.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// Message represents a message in the chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse represents the response from OpenAI chat completions API.
type ChatCompletionResponse struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

// Choice represents a choice in the chat completion response.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// APIError represents an error response from the OpenAI API.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Translate sends text to the endpoint and returns the first choice.
func (t *HTTPTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	logger.Debug("calling chat completions API",
		logger.String("model", t.model),
		logger.Int("textLen", len(text)))

	reqBody := ChatCompletionRequest{
		Model: t.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt(source, target)},
			{Role: "user", Content: text},
		},
		Temperature: 0.3,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", NewPermanent(CodeBadRequest, "failed to marshal request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", NewPermanent(CodeBadRequest, "failed to create HTTP request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", NewTransient(CodeTimeout, "API request timed out", err)
		}
		return "", NewTransient(CodeNetwork, "API request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewTransient(CodeNetwork, "failed to read API response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTPStatus(resp.StatusCode, body)
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", NewTransient(CodeServer, "failed to parse API response", err)
	}
	if chatResp.Error != nil {
		return "", classifyAPIError(http.StatusOK, chatResp.Error)
	}
	if len(chatResp.Choices) == 0 || strings.TrimSpace(chatResp.Choices[0].Message.Content) == "" {
		return "", NewTransient(CodeEmptyResponse, "API returned no translation", nil)
	}
	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// normalizeAPIURL ensures the API URL ends with /chat/completions
func normalizeAPIURL(url string) string {
	if url == "" {
		return DefaultAPIURL
	}
	url = strings.TrimSuffix(url, "/")
	if strings.HasSuffix(url, "/chat/completions") {
		return url
	}
	return url + "/chat/completions"
}

// classifyHTTPStatus maps a non-200 response to a classified error.
func classifyHTTPStatus(status int, body []byte) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	apiErr := &APIError{}
	if err := json.Unmarshal(body, &errResp); err == nil {
		apiErr = &errResp.Error
	}
	return classifyAPIError(status, apiErr)
}

func classifyAPIError(status int, apiErr *APIError) error {
	details := apiErr.Message
	if details == "" {
		details = http.StatusText(status)
	}
	code := strings.ToLower(apiErr.Code + " " + apiErr.Type)
	lowerMsg := strings.ToLower(apiErr.Message)

	switch {
	case strings.Contains(code, "insufficient_quota") || status == http.StatusPaymentRequired:
		return NewPermanent(CodeQuotaExhausted, "API quota exhausted: "+details, nil)
	case strings.Contains(code, "account_deactivated") || strings.Contains(lowerMsg, "suspended"):
		return NewPermanent(CodeAccountSuspended, "API account suspended: "+details, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewPermanent(CodeAuth, "API authentication failed: "+details, nil)
	case status == http.StatusTooManyRequests:
		return NewTransient(CodeRateLimited, "API rate limit exceeded: "+details, nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewTransient(CodeTimeout, "API request timed out: "+details, nil)
	case status >= 500:
		return NewTransient(CodeServer, fmt.Sprintf("API server error (status %d): %s", status, details), nil)
	case strings.Contains(lowerMsg, "language"):
		return NewPermanent(CodeUnsupportedLanguage, "unsupported language pair: "+details, nil)
	default:
		return NewPermanent(CodeBadRequest, fmt.Sprintf("invalid API request (status %d): %s", status, details), nil)
	}
}

var _ Translator = (*HTTPTranslator)(nil)

package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"socialnerd/internal/governor"
	"socialnerd/internal/logging"
)

// OpenAIGenerator talks to an OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenAIGenerator creates a generator against an OpenAI-compatible API.
func NewOpenAIGenerator(apiKey, baseURL, model string, timeout time.Duration) *OpenAIGenerator {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIGenerator{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model           string          `json:"model"`
	Messages        []openAIMessage `json:"messages"`
	MaxTokens       int             `json:"max_tokens,omitempty"`
	Temperature     float32         `json:"temperature,omitempty"`
	PresencePenalty float32         `json:"presence_penalty,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateText sends one chat completion request. Failures are wrapped in
// governor classes: 429 as rate limited (honoring Retry-After), 5xx and
// network errors as transient, 401/403 as auth, anything else permanent.
func (g *OpenAIGenerator) GenerateText(ctx context.Context, systemInstruction, userPrompt string, opts Options) (string, error) {
	if g.apiKey == "" {
		return "", governor.AuthFailure(fmt.Errorf("API key not configured"))
	}

	// Auto-apply timeout if context has no deadline (centralized timeout handling)
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.httpClient.Timeout)
		defer cancel()
	}

	start := time.Now()
	reqBody := openAIRequest{
		Model: g.model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:       opts.MaxTokens,
		Temperature:     opts.Temperature,
		PresencePenalty: opts.PresencePenalty,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", governor.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", governor.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", governor.Transient(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", governor.Transient(fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", governor.RateLimited(
			fmt.Errorf("rate limit exceeded (429)"),
			parseRetryAfter(resp.Header.Get("Retry-After")),
		)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", governor.AuthFailure(fmt.Errorf("API rejected credentials with status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return "", governor.Transient(fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body)))
	case resp.StatusCode != http.StatusOK:
		return "", governor.Permanent(fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body)))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", governor.Permanent(fmt.Errorf("failed to parse response: %w", err))
	}
	if parsed.Error != nil {
		return "", governor.Permanent(fmt.Errorf("API error: %s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return "", governor.Permanent(fmt.Errorf("no completion returned"))
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	logging.Synthesis("[OpenAI] completion in %v (model=%s, len=%d)", time.Since(start), g.model, len(text))
	return text, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

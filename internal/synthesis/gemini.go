package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"socialnerd/internal/config"
	"socialnerd/internal/governor"
	"socialnerd/internal/logging"
)

// GeminiGenerator backs synthesis with Google's Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini-backed generator.
func NewGeminiGenerator(apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiGenerator{client: client, model: model}, nil
}

// GenerateText sends one generation request. Quota errors map to the rate
// limited class, everything else transport-shaped to transient.
func (g *GeminiGenerator) GenerateText(ctx context.Context, systemInstruction, userPrompt string, opts Options) (string, error) {
	start := time.Now()

	contents := []*genai.Content{
		genai.NewContentFromText(userPrompt, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		MaxOutputTokens:   int32(opts.MaxTokens),
		Temperature:       genai.Ptr(opts.Temperature),
		PresencePenalty:   genai.Ptr(opts.PresencePenalty),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", classifyGeminiError(err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", governor.Permanent(fmt.Errorf("no completion returned"))
	}

	logging.Synthesis("[Gemini] completion in %v (model=%s, len=%d)", time.Since(start), g.model, len(text))
	return text, nil
}

// classifyGeminiError maps SDK errors onto governor classes. The SDK
// surfaces HTTP status in the error text.
func classifyGeminiError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return governor.RateLimited(fmt.Errorf("Gemini quota exhausted: %w", err), 0)
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "PERMISSION_DENIED"):
		return governor.AuthFailure(fmt.Errorf("Gemini rejected credentials: %w", err))
	case strings.Contains(msg, "500") || strings.Contains(msg, "503") || strings.Contains(msg, "UNAVAILABLE"):
		return governor.Transient(fmt.Errorf("Gemini unavailable: %w", err))
	default:
		return governor.Permanent(fmt.Errorf("Gemini generate failed: %w", err))
	}
}

// NewGeneratorFromConfig selects a backend from the generation config.
func NewGeneratorFromConfig(cfg config.GenerationConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIGenerator(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout()), nil
	case "gemini":
		return NewGeminiGenerator(cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

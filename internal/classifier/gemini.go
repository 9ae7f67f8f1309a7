package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// GeminiClassifier classifies messages through the Gemini API. It performs a
// single attempt per message: classification latency sits on the webhook path,
// so failures fall back immediately instead of retrying.
type GeminiClassifier struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

// GeminiConfig holds Gemini client settings.
type GeminiConfig struct {
	APIKey    string
	ModelName string
	Timeout   time.Duration
}

// NewGeminiClassifier creates a classifier backed by the Gemini API.
func NewGeminiClassifier(ctx context.Context, cfg GeminiConfig) (*GeminiClassifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "gemini-2.0-flash"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 8 * time.Second
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.ModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.2),
		MaxOutputTokens:  genai.Ptr[int32](500),
	}

	log.Info().Str("model", cfg.ModelName).Msg("Gemini classifier initialized")

	return &GeminiClassifier{client: client, model: model, timeout: cfg.Timeout}, nil
}

// Close releases the underlying API client.
func (g *GeminiClassifier) Close() error {
	return g.client.Close()
}

// Classify runs the single-turn prompt and parses the JSON contract. Every
// failure mode (network, empty candidates, malformed or incomplete JSON) maps
// to the fixed fallback result.
func (g *GeminiClassifier) Classify(ctx context.Context, req Request) Result {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.model.GenerateContent(ctx, genai.Text(BuildPrompt(req)))
	if err != nil {
		log.Error().Err(err).Msg("Gemini request failed, using fallback classification")
		return Fallback(req.Language)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		log.Error().Msg("Gemini returned no candidates, using fallback classification")
		return Fallback(req.Language)
	}

	textPart, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		log.Error().Msg("Gemini returned a non-text part, using fallback classification")
		return Fallback(req.Language)
	}

	result, err := parseResult(string(textPart))
	if err != nil {
		log.Error().Err(err).Str("raw", string(textPart)).Msg("Unusable classification output, using fallback")
		return Fallback(req.Language)
	}

	return result
}

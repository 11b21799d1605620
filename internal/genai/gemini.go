package genai

import (
	"context"
	"fmt"
	"log/slog"

	gemini "google.golang.org/genai"
)

// geminiModels is the slice of the Gemini SDK the client needs.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*gemini.Content, config *gemini.GenerateContentConfig) (*gemini.GenerateContentResponse, error)
}

// GeminiClient generates text with the Gemini API.
type GeminiClient struct {
	models      geminiModels
	model       string
	temperature float64
	maxTokens   int
	jsonMode    bool
	debug       *debugLog
}

// NewGeminiClient creates a Gemini client. WithAPIKey is required.
func NewGeminiClient(ctx context.Context, opts ...Option) (*GeminiClient, error) {
	o := buildOpts(DefaultGeminiModel, opts)
	if o.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	client, err := gemini.NewClient(ctx, &gemini.ClientConfig{
		APIKey:  o.APIKey,
		Backend: gemini.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	slog.Debug("genai.NewGeminiClient: Gemini client created", "model", o.Model, "jsonResponse", o.JSONResponse)
	return &GeminiClient{
		models:      client.Models,
		model:       o.Model,
		temperature: o.Temperature,
		maxTokens:   o.MaxTokens,
		jsonMode:    o.JSONResponse,
		debug:       newDebugLog(o),
	}, nil
}

// Generate returns the model's text for the system and user prompt.
func (g *GeminiClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	config := &gemini.GenerateContentConfig{
		SystemInstruction: gemini.NewContentFromText(systemPrompt, gemini.RoleUser),
		Temperature:       gemini.Ptr(float32(g.temperature)),
		MaxOutputTokens:   int32(g.maxTokens),
	}
	if g.jsonMode {
		config.ResponseMIMEType = "application/json"
	}
	params := map[string]any{"system": systemPrompt, "user": userPrompt, "config": config}

	resp, err := g.models.GenerateContent(ctx, g.model, gemini.Text(userPrompt), config)
	if err != nil {
		slog.Error("GeminiClient.Generate: generate content failed", "error", err, "model", g.model)
		g.debug.write("gemini.Generate", g.model, params, nil, err)
		return "", err
	}
	g.debug.write("gemini.Generate", g.model, params, resp, nil)
	text := resp.Text()
	if text == "" {
		slog.Warn("GeminiClient.Generate: empty response", "model", g.model)
		return "", ErrEmptyResponse
	}
	slog.Debug("GeminiClient.Generate: content received", "model", g.model, "length", len(text))
	return text, nil
}

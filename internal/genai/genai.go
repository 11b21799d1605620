// Package genai provides text generation over the OpenAI and Gemini APIs
// behind a single Generator interface.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

var (
	// ErrNoChoicesReturned is returned when the OpenAI API answers without choices.
	ErrNoChoicesReturned = errors.New("no choices returned")
	// ErrEmptyResponse is returned when a model produced no text.
	ErrEmptyResponse = errors.New("empty response")
	// ErrMissingAPIKey is returned when a client is created without credentials.
	ErrMissingAPIKey = errors.New("API key not set")
	// ErrUnknownProvider is returned by New for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown LLM provider")
)

// Supported providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Defaults applied by NewClient and NewGeminiClient.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-2.0-flash"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
)

// Generator produces a completion for a system and user prompt.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Opts holds configuration shared by both backends.
type Opts struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	// JSONResponse asks the model for a JSON object.
	JSONResponse bool
	DebugMode    bool
	StateDir     string
}

// Option configures a client.
type Option func(*Opts)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the model name. Empty values keep the backend default.
func WithModel(model string) Option {
	return func(o *Opts) {
		if model != "" {
			o.Model = model
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(o *Opts) {
		if n > 0 {
			o.MaxTokens = n
		}
	}
}

// WithJSONResponse requests JSON object output.
func WithJSONResponse() Option {
	return func(o *Opts) { o.JSONResponse = true }
}

// WithDebugMode writes every request and response to StateDir/debug.
func WithDebugMode(enabled bool, stateDir string) Option {
	return func(o *Opts) {
		o.DebugMode = enabled
		o.StateDir = stateDir
	}
}

func buildOpts(defaultModel string, opts []Option) Opts {
	o := Opts{Model: defaultModel, Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New creates a Generator for the named provider.
func New(ctx context.Context, provider string, opts ...Option) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderOpenAI:
		return NewClient(opts...)
	case ProviderGemini:
		return NewGeminiClient(ctx, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionService adapts the SDK's completion service to chatService.
type completionService struct {
	svc *openai.ChatCompletionService
}

func (s *completionService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	maxTokens   int
	jsonMode    bool
	debug       *debugLog
}

// NewClient initializes an OpenAI client. WithAPIKey is required.
func NewClient(opts ...Option) (*Client, error) {
	o := buildOpts(DefaultModel, opts)
	if o.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	cli := openai.NewClient(option.WithAPIKey(o.APIKey))
	slog.Debug("genai.NewClient: OpenAI client created", "model", o.Model, "jsonResponse", o.JSONResponse)
	return &Client{
		chat:        &completionService{svc: &cli.Chat.Completions},
		model:       o.Model,
		temperature: o.Temperature,
		maxTokens:   o.MaxTokens,
		jsonMode:    o.JSONResponse,
		debug:       newDebugLog(o),
	}, nil
}

// Generate returns the first choice for the system and user prompt.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature:         openai.Float(c.temperature),
		MaxCompletionTokens: openai.Int(int64(c.maxTokens)),
	}
	if c.jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("Client.Generate: chat completion failed", "error", err, "model", c.model)
		c.debug.write("openai.Generate", c.model, params, nil, err)
		return "", err
	}
	c.debug.write("openai.Generate", c.model, params, resp, nil)
	if len(resp.Choices) == 0 {
		slog.Warn("Client.Generate: no choices returned", "model", c.model)
		return "", ErrNoChoicesReturned
	}
	content := resp.Choices[0].Message.Content
	slog.Debug("Client.Generate: completion received", "model", c.model, "length", len(content))
	return content, nil
}

// StripCodeFence removes a surrounding markdown code fence, with or without
// a language tag, from a model reply.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

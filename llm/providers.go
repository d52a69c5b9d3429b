package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	loggerv2 "journalagent/logger/v2"
)

// Provider selects the backend of the completion service.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderVertex Provider = "vertex"
)

// ErrMissingCredential is returned when no API key is available for a
// provider that requires one.
var ErrMissingCredential = errors.New("missing llm credential")

// Config holds configuration for LLM initialization.
type Config struct {
	Provider Provider
	ModelID  string
	// APIKey is required for ProviderGemini.
	APIKey string
	// Project and Location are required for ProviderVertex.
	Project  string
	Location string
	Logger   loggerv2.Logger
}

// ValidateProvider checks if the provider is supported
func ValidateProvider(provider string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(provider))); p {
	case ProviderGemini, ProviderVertex:
		return p, nil
	case "":
		return ProviderGemini, nil
	default:
		return "", fmt.Errorf("unsupported provider: %s", provider)
	}
}

// InitializeLLM creates a Model for the configured provider.
func InitializeLLM(ctx context.Context, cfg Config) (Model, error) {
	if cfg.Logger == nil {
		cfg.Logger = loggerv2.NewNoop()
	}
	if cfg.ModelID == "" {
		return nil, errors.New("model id is required")
	}

	cc := &genai.ClientConfig{}
	switch cfg.Provider {
	case ProviderGemini, "":
		if cfg.APIKey == "" {
			return nil, ErrMissingCredential
		}
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	case ProviderVertex:
		if cfg.Project == "" || cfg.Location == "" {
			return nil, fmt.Errorf("%w: vertex needs project and location", ErrMissingCredential)
		}
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		cc.Backend = genai.BackendVertexAI
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	cfg.Logger.Info("LLM initialized",
		loggerv2.String("provider", string(cfg.Provider)),
		loggerv2.String("model", cfg.ModelID))

	return &GeminiModel{
		client:  client,
		modelID: cfg.ModelID,
		logger:  cfg.Logger.With(loggerv2.String("component", "llm")),
	}, nil
}

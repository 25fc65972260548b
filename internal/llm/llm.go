// Package llm provides text generation backends used for query rewriting,
// hypothetical answers and grounded answer synthesis.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Default generation settings.
const (
	DefaultOllamaModel = "llama3.2"
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultTimeout     = 120 * time.Second
	DefaultTemperature = 0.1
)

// ProviderType identifies a generation backend.
type ProviderType string

const (
	ProviderOllama     ProviderType = "ollama"
	ProviderOpenAI     ProviderType = "openai"
	ProviderBedrock    ProviderType = "bedrock"
	ProviderExtractive ProviderType = "extractive"
)

// Service generates text from system instructions and user input.
//
// Quota or billing failures are reported as errors.ErrCodeQuotaExhausted and
// are never retried.
type Service interface {
	Generate(ctx context.Context, instructions, input string) (string, error)
	ModelName() string
}

// Config selects and configures a generation backend.
type Config struct {
	Provider    ProviderType
	Model       string
	BaseURL     string
	Region      string // bedrock only
	MaxTokens   int    // bedrock only
	Temperature float64
	Timeout     time.Duration
	RatePerSec  float64
	Retry       amanerrors.RetryConfig
}

// ParseProvider validates a provider name.
func ParseProvider(name string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(name))); p {
	case ProviderOllama, ProviderOpenAI, ProviderBedrock, ProviderExtractive:
		return p, nil
	case "":
		return ProviderOllama, nil
	default:
		return "", fmt.Errorf("unknown llm provider %q (want ollama, openai, bedrock or extractive)", name)
	}
}

// New creates the configured generation service.
func New(cfg Config) (Service, error) {
	return NewWithContext(context.Background(), cfg)
}

// NewWithContext is New with a context for providers that load credentials.
func NewWithContext(ctx context.Context, cfg Config) (Service, error) {
	provider, err := ParseProvider(string(cfg.Provider))
	if err != nil {
		return nil, amanerrors.ConfigError(err.Error(), nil)
	}
	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry = amanerrors.DefaultRetryConfig()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	switch provider {
	case ProviderOpenAI:
		return NewOpenAIGenerator(cfg)
	case ProviderBedrock:
		return NewBedrockGenerator(ctx, cfg)
	case ProviderExtractive:
		return NewExtractiveGenerator(), nil
	default:
		return NewOllamaGenerator(cfg), nil
	}
}

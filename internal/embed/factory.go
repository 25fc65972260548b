package embed

import (
	"fmt"
	"log/slog"
	"strings"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Config selects and configures an embedding provider.
type Config struct {
	Provider   ProviderType
	Model      string
	BaseURL    string
	BatchSize  int
	Dimensions int
	RatePerSec float64
	Retry      amanerrors.RetryConfig

	// CacheSize bounds the in-process LRU; negative disables it.
	CacheSize int
}

// ParseProvider validates a provider name.
func ParseProvider(name string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(name))); p {
	case ProviderOllama, ProviderOpenAI, ProviderStatic:
		return p, nil
	case "":
		return ProviderOllama, nil
	default:
		return "", fmt.Errorf("unknown embedding provider %q (want ollama, openai or static)", name)
	}
}

// New creates the configured embedding service, wrapped in an LRU cache
// unless CacheSize is negative.
func New(cfg Config) (Service, error) {
	provider, err := ParseProvider(string(cfg.Provider))
	if err != nil {
		return nil, amanerrors.ConfigError(err.Error(), nil)
	}

	var svc Service
	switch provider {
	case ProviderOllama:
		svc = NewOllamaEmbedder(OllamaConfig{
			Host:       cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			RatePerSec: cfg.RatePerSec,
			Retry:      cfg.Retry,
		})
	case ProviderOpenAI:
		svc, err = NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			RatePerSec: cfg.RatePerSec,
			Retry:      cfg.Retry,
		})
		if err != nil {
			return nil, err
		}
	case ProviderStatic:
		svc = NewStaticEmbedderWithDims(cfg.Dimensions)
	}

	slog.Debug("embedder_created",
		slog.String("provider", string(provider)),
		slog.String("model", svc.ModelName()))

	if cfg.CacheSize < 0 {
		return svc, nil
	}
	return NewCachedService(svc, cfg.CacheSize), nil
}

package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/ratelimit"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// DefaultOpenAIModel is the default OpenAI embedding model.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	// APIKey defaults to $OPENAI_API_KEY
	APIKey string

	// BaseURL overrides the API endpoint (OpenAI-compatible servers)
	BaseURL string

	Model string

	// Dimensions requests shortened embeddings (0 = model default)
	Dimensions int

	BatchSize  int
	Timeout    time.Duration
	RatePerSec float64
	Retry      amanerrors.RetryConfig
}

// OpenAIEmbedder generates embeddings with the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client  openai.Client
	config  OpenAIConfig
	limiter *ratelimit.Limiter
	dims    atomic.Int64
}

var _ Service = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, amanerrors.ConfigError("OpenAI API key is required", nil).
			WithSuggestion("Set OPENAI_API_KEY or switch embed.provider to ollama or static")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry = amanerrors.DefaultRetryConfig()
	}

	// Retries are handled by amanerrors.Retry so quota errors are never retried.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHeader("User-Agent", version.UserAgent()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	e := &OpenAIEmbedder{
		client:  openai.NewClient(opts...),
		config:  cfg,
		limiter: ratelimit.New(cfg.RatePerSec, 0),
	}
	e.dims.Store(int64(cfg.Dimensions))
	return e, nil
}

// Embed embeds texts in batches of BatchSize.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(texts))
		batch := texts[start:end]

		embeddings, err := amanerrors.RetryWithResult(ctx, e.config.Retry, func() ([][]float32, error) {
			return e.doEmbed(ctx, batch)
		})
		if err != nil {
			return nil, err
		}
		results = append(results, embeddings...)
	}
	return results, nil
}

func (e *OpenAIEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openai.EmbeddingModel(e.config.Model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if e.config.Dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.config.Dimensions))
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.client.Embeddings.New(reqCtx, params)
	if err != nil {
		return nil, amanerrors.ClassifyOpenAI(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, amanerrors.TransientError(
			fmt.Sprintf("openai returned %d embeddings for %d texts", len(resp.Data), len(texts)), nil)
	}

	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, amanerrors.TransientError(fmt.Sprintf("openai returned out-of-range index %d", d.Index), nil)
		}
		embeddings[d.Index] = float64sTo32(d.Embedding)
	}
	if len(embeddings) > 0 {
		e.dims.CompareAndSwap(0, int64(len(embeddings[0])))
	}

	slog.Debug("embedding_batch",
		slog.String("provider", "openai"),
		slog.Int("texts", len(texts)),
		slog.Int64("tokens", resp.Usage.TotalTokens),
		slog.Duration("duration", time.Since(start)))

	return embeddings, nil
}


// Dimensions returns the embedding dimension, 0 until known.
func (e *OpenAIEmbedder) Dimensions() int {
	return int(e.dims.Load())
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Close is a no-op; the client holds no resources that need releasing.
func (e *OpenAIEmbedder) Close() error {
	return nil
}

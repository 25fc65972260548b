package llm

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/ratelimit"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// OpenAIGenerator generates text with the Chat Completions API.
type OpenAIGenerator struct {
	client  openai.Client
	config  Config
	limiter *ratelimit.Limiter
}

var _ Service = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates an OpenAI generator. The API key comes from
// $OPENAI_API_KEY.
func NewOpenAIGenerator(cfg Config) (*OpenAIGenerator, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, amanerrors.ConfigError("OpenAI API key is required", nil).
			WithSuggestion("Set OPENAI_API_KEY or switch llm.provider to ollama or extractive")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry = amanerrors.DefaultRetryConfig()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHeader("User-Agent", version.UserAgent()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIGenerator{
		client:  openai.NewClient(opts...),
		config:  cfg,
		limiter: ratelimit.New(cfg.RatePerSec, 0),
	}, nil
}

// Generate sends instructions as the system message and input as the user message.
func (g *OpenAIGenerator) Generate(ctx context.Context, instructions, input string) (string, error) {
	return amanerrors.RetryWithResult(ctx, g.config.Retry, func() (string, error) {
		return g.generate(ctx, instructions, input)
	})
}

func (g *OpenAIGenerator) generate(ctx context.Context, instructions, input string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instructions),
			openai.UserMessage(input),
		},
		Temperature: openai.Float(g.config.Temperature),
		Model:       openai.ChatModel(g.config.Model),
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	start := time.Now()
	output, err := g.client.Chat.Completions.New(reqCtx, params)
	if err != nil {
		return "", amanerrors.ClassifyOpenAI(err)
	}
	if len(output.Choices) == 0 {
		return "", amanerrors.TransientError("openai returned no choices", nil)
	}

	slog.Debug("generation_complete",
		slog.String("provider", "openai"),
		slog.String("model", g.config.Model),
		slog.Int64("tokens", output.Usage.TotalTokens),
		slog.Duration("duration", time.Since(start)))

	return strings.TrimSpace(output.Choices[0].Message.Content), nil
}

// ModelName returns the model identifier.
func (g *OpenAIGenerator) ModelName() string {
	return g.config.Model
}


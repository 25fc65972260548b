package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/ratelimit"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// Bedrock defaults. Models are invoked through the Anthropic messages format.
const (
	DefaultBedrockModel     = "anthropic.claude-3-haiku-20240307-v1:0"
	DefaultBedrockRegion    = "us-east-1"
	DefaultBedrockMaxTokens = 1024

	bedrockAnthropicVersion = "bedrock-2023-05-31"
)

// BedrockInvoker is the subset of the Bedrock runtime client used here.
type BedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockGenerator generates text with an Anthropic model hosted on AWS Bedrock.
// Credentials come from the default AWS chain.
type BedrockGenerator struct {
	client  BedrockInvoker
	config  Config
	limiter *ratelimit.Limiter
}

var _ Service = (*BedrockGenerator)(nil)

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Temperature      float64          `json:"temperature"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// NewBedrockGenerator loads the default AWS configuration for cfg.Region and
// creates a Bedrock runtime client. cfg.BaseURL overrides the endpoint.
func NewBedrockGenerator(ctx context.Context, cfg Config) (*BedrockGenerator, error) {
	if cfg.Region == "" {
		cfg.Region = DefaultBedrockRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithAppID(version.UserAgent()),
	)
	if err != nil {
		return nil, amanerrors.ConfigError("unable to load AWS config", err).
			WithSuggestion("Configure AWS credentials or switch llm.provider to ollama, openai or extractive")
	}
	return NewBedrockGeneratorFromConfig(awsCfg, cfg), nil
}

// NewBedrockGeneratorFromConfig creates a generator from an existing AWS config.
// The SDK's own retries are disabled; Generate retries with cfg.Retry.
func NewBedrockGeneratorFromConfig(awsCfg aws.Config, cfg Config) *BedrockGenerator {
	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		o.Retryer = aws.NopRetryer{}
		if cfg.BaseURL != "" {
			o.BaseEndpoint = aws.String(cfg.BaseURL)
		}
	})
	return newBedrockGenerator(client, cfg)
}

func newBedrockGenerator(client BedrockInvoker, cfg Config) *BedrockGenerator {
	if cfg.Model == "" {
		cfg.Model = DefaultBedrockModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultBedrockMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry = amanerrors.DefaultRetryConfig()
	}
	return &BedrockGenerator{
		client:  client,
		config:  cfg,
		limiter: ratelimit.New(cfg.RatePerSec, 0),
	}
}

// Generate sends instructions as the system prompt and input as the user turn.
func (g *BedrockGenerator) Generate(ctx context.Context, instructions, input string) (string, error) {
	return amanerrors.RetryWithResult(ctx, g.config.Retry, func() (string, error) {
		return g.generate(ctx, instructions, input)
	})
}

func (g *BedrockGenerator) generate(ctx context.Context, instructions, input string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        g.config.MaxTokens,
		Temperature:      g.config.Temperature,
		System:           instructions,
		Messages:         []bedrockMessage{{Role: "user", Content: input}},
	})
	if err != nil {
		return "", amanerrors.InternalError("failed to encode bedrock request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	start := time.Now()
	out, err := g.client.InvokeModel(reqCtx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.config.Model),
		Body:        body,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", classifyBedrock(err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", amanerrors.TransientError("failed to decode bedrock response", err)
	}

	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}

	slog.Debug("generation_complete",
		slog.String("provider", "bedrock"),
		slog.String("model", g.config.Model),
		slog.String("stop_reason", resp.StopReason),
		slog.Duration("duration", time.Since(start)))

	return strings.TrimSpace(text.String()), nil
}

// ModelName returns the Bedrock model id.
func (g *BedrockGenerator) ModelName() string {
	return g.config.Model
}

// classifyBedrock maps SDK errors. Bedrock reports exhausted service quotas
// as 400 ServiceQuotaExceededException, which is treated like a 402.
func classifyBedrock(err error) error {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		msg := respErr.Error()
		if status == http.StatusBadRequest && amanerrors.IsQuotaMessage(msg) {
			status = http.StatusPaymentRequired
		}
		return amanerrors.ClassifyHTTP("bedrock", status, msg)
	}
	return amanerrors.ClassifyTransport("bedrock", fmt.Errorf("invoke model: %w", err))
}

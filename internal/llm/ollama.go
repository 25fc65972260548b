package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/ratelimit"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// DefaultOllamaHost is the default Ollama API endpoint.
const DefaultOllamaHost = "http://localhost:11434"

// OllamaGenerator generates text with Ollama's /api/generate endpoint.
type OllamaGenerator struct {
	client  *http.Client
	config  Config
	limiter *ratelimit.Limiter
}

var _ Service = (*OllamaGenerator)(nil)

// generateRequest is the Ollama /api/generate request body.
type generateRequest struct {
	Model   string          `json:"model"`
	System  string          `json:"system,omitempty"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

// generateResponse is the Ollama /api/generate response body.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaGenerator creates an Ollama generator.
func NewOllamaGenerator(cfg Config) *OllamaGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaHost
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry = amanerrors.DefaultRetryConfig()
	}
	return &OllamaGenerator{
		client:  &http.Client{},
		config:  cfg,
		limiter: ratelimit.New(cfg.RatePerSec, 0),
	}
}

// Generate sends instructions as the system prompt and input as the prompt.
func (g *OllamaGenerator) Generate(ctx context.Context, instructions, input string) (string, error) {
	return amanerrors.RetryWithResult(ctx, g.config.Retry, func() (string, error) {
		return g.generate(ctx, instructions, input)
	})
}

func (g *OllamaGenerator) generate(ctx context.Context, instructions, input string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(generateRequest{
		Model:   g.config.Model,
		System:  instructions,
		Prompt:  input,
		Stream:  false,
		Options: generateOptions{Temperature: g.config.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, g.config.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", amanerrors.ClassifyTransport("ollama", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", amanerrors.ClassifyHTTP("ollama", resp.StatusCode, string(respBody))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", amanerrors.TransientError("failed to decode ollama response", err)
	}

	slog.Debug("generation_complete",
		slog.String("provider", "ollama"),
		slog.String("model", g.config.Model),
		slog.Duration("duration", time.Since(start)))

	return strings.TrimSpace(result.Response), nil
}

// ModelName returns the model identifier.
func (g *OllamaGenerator) ModelName() string {
	return g.config.Model
}

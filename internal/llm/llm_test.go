package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func fastRetry() amanerrors.RetryConfig {
	return amanerrors.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

// ============================================================================
// Factory
// ============================================================================

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider("Extractive")
	require.NoError(t, err)
	assert.Equal(t, ProviderExtractive, p)

	p, err = ParseProvider("")
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, p)

	_, err = ParseProvider("claude")
	assert.Error(t, err)
}

func TestNew_OpenAIRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := New(Config{Provider: ProviderOpenAI})

	assert.Equal(t, amanerrors.ErrCodeConfigInvalid, amanerrors.GetCode(err))
}

func TestNew_Extractive(t *testing.T) {
	svc, err := New(Config{Provider: ProviderExtractive})
	require.NoError(t, err)
	assert.Equal(t, "extractive", svc.ModelName())
}

// ============================================================================
// Ollama
// ============================================================================

func TestOllamaGenerator_Generate_SendsSystemAndPrompt(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "  an answer \n", Done: true})
	}))
	defer srv.Close()

	g := NewOllamaGenerator(Config{BaseURL: srv.URL, Model: "m", Retry: fastRetry()})
	out, err := g.Generate(context.Background(), "be brief", "question?")

	require.NoError(t, err)
	assert.Equal(t, "an answer", out)
	assert.Equal(t, "be brief", got.System)
	assert.Equal(t, "question?", got.Prompt)
	assert.False(t, got.Stream)
	assert.Equal(t, "m", got.Model)
}

func TestOllamaGenerator_Generate_QuotaNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer srv.Close()

	g := NewOllamaGenerator(Config{BaseURL: srv.URL, Retry: fastRetry()})
	_, err := g.Generate(context.Background(), "", "q")

	assert.True(t, amanerrors.IsQuota(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestOllamaGenerator_Generate_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "ok"})
	}))
	defer srv.Close()

	g := NewOllamaGenerator(Config{BaseURL: srv.URL, Retry: fastRetry()})
	out, err := g.Generate(context.Background(), "", "q")

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), calls.Load())
}

// ============================================================================
// Extractive
// ============================================================================

func TestExtractiveGenerator_NoContextReturnsEmpty(t *testing.T) {
	out, err := NewExtractiveGenerator().Generate(context.Background(), "rewrite", "what is the refund policy")

	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestExtractiveGenerator_PicksSentencesMatchingQuestion(t *testing.T) {
	input := ContextMarker +
		"[policy.md#0]\nOur company was founded in 1999. Refunds are issued within ten days.\n\n---\n\n" +
		"[policy.md#1]\nThe refund policy applies to annual plans. Offices are in Lisbon." +
		QuestionMarker + "what is the refund policy"

	out, err := NewExtractiveGenerator().Generate(context.Background(), "", input)

	require.NoError(t, err)
	assert.Equal(t, "Refunds are issued within ten days. The refund policy applies to annual plans.", out)
	assert.NotContains(t, out, "policy.md#")
}

func TestExtractiveGenerator_Deterministic(t *testing.T) {
	input := ContextMarker + "[a.md#0]\nOne. Two. Three." + QuestionMarker + "nothing matches"
	g := NewExtractiveGenerator()

	first, err := g.Generate(context.Background(), "", input)
	require.NoError(t, err)
	assert.Equal(t, "One. Two.", first)

	again, _ := g.Generate(context.Background(), "", input)
	assert.Equal(t, first, again)
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// fakeInvoker records requests and replays scripted responses.
type fakeInvoker struct {
	calls   atomic.Int32
	lastReq bedrockRequest
	lastID  string
	respond func(call int32) ([]byte, error)
}

func (f *fakeInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	n := f.calls.Add(1)
	f.lastID = *in.ModelId
	if err := json.Unmarshal(in.Body, &f.lastReq); err != nil {
		return nil, err
	}
	body, err := f.respond(n)
	if err != nil {
		return nil, err
	}
	return &bedrockruntime.InvokeModelOutput{Body: body}, nil
}

func textResponse(text string) []byte {
	return []byte(`{"content":[{"type":"text","text":` + mustJSON(text) + `}],"stop_reason":"end_turn"}`)
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func responseError(status int, msg string) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      errors.New(msg),
		},
	}
}

// ============================================================================
// Bedrock
// ============================================================================

func TestParseProvider_Bedrock(t *testing.T) {
	p, err := ParseProvider("Bedrock")
	require.NoError(t, err)
	assert.Equal(t, ProviderBedrock, p)
}

func TestBedrockGenerator_Generate_SendsSystemAndMessage(t *testing.T) {
	fake := &fakeInvoker{respond: func(int32) ([]byte, error) { return textResponse(" grounded answer \n"), nil }}
	g := newBedrockGenerator(fake, Config{Temperature: 0.3, Retry: fastRetry()})

	out, err := g.Generate(context.Background(), "answer from context", "question?")

	require.NoError(t, err)
	assert.Equal(t, "grounded answer", out)
	assert.Equal(t, DefaultBedrockModel, fake.lastID)
	assert.Equal(t, bedrockAnthropicVersion, fake.lastReq.AnthropicVersion)
	assert.Equal(t, DefaultBedrockMaxTokens, fake.lastReq.MaxTokens)
	assert.Equal(t, "answer from context", fake.lastReq.System)
	require.Len(t, fake.lastReq.Messages, 1)
	assert.Equal(t, "user", fake.lastReq.Messages[0].Role)
	assert.Equal(t, "question?", fake.lastReq.Messages[0].Content)
	assert.InDelta(t, 0.3, fake.lastReq.Temperature, 1e-9)
	assert.Equal(t, DefaultBedrockModel, g.ModelName())
}

func TestBedrockGenerator_Generate_RetriesThrottling(t *testing.T) {
	fake := &fakeInvoker{respond: func(n int32) ([]byte, error) {
		if n < 3 {
			return nil, responseError(http.StatusTooManyRequests, "ThrottlingException: slow down")
		}
		return textResponse("ok"), nil
	}}
	g := newBedrockGenerator(fake, Config{Model: "m", Retry: fastRetry()})

	out, err := g.Generate(context.Background(), "", "q")

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), fake.calls.Load())
}

func TestBedrockGenerator_Generate_ServiceQuotaIsNotRetried(t *testing.T) {
	fake := &fakeInvoker{respond: func(int32) ([]byte, error) {
		return nil, responseError(http.StatusBadRequest, "ServiceQuotaExceededException: quota exceeded")
	}}
	g := newBedrockGenerator(fake, Config{Retry: fastRetry()})

	_, err := g.Generate(context.Background(), "", "q")

	assert.True(t, amanerrors.IsQuota(err))
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestBedrockGenerator_Generate_BadRequestIsValidation(t *testing.T) {
	fake := &fakeInvoker{respond: func(int32) ([]byte, error) {
		return nil, responseError(http.StatusBadRequest, "ValidationException: malformed input")
	}}
	g := newBedrockGenerator(fake, Config{Retry: fastRetry()})

	_, err := g.Generate(context.Background(), "", "q")

	assert.Equal(t, amanerrors.ErrCodeInvalidInput, amanerrors.GetCode(err))
	assert.Equal(t, int32(1), fake.calls.Load())
}

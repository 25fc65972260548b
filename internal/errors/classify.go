package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
)

// quotaMarkers are substrings providers use in quota and billing failures.
var quotaMarkers = []string{"insufficient_quota", "quota", "billing", "credit"}

// IsQuotaMessage reports whether a provider message describes quota or
// billing exhaustion rather than plain rate limiting.
func IsQuotaMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range quotaMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// ClassifyHTTP maps a failed provider HTTP response onto the error taxonomy:
// 402 and quota-flavoured 429s are quota, other 429s are rate limits,
// 408 and 5xx are transient, 401/403 are configuration, anything else is
// invalid input.
func ClassifyHTTP(provider string, status int, body string) *AmanError {
	msg := fmt.Sprintf("%s returned status %d", provider, status)
	if body = strings.TrimSpace(body); body != "" {
		msg += ": " + truncate(body, 300)
	}

	var e *AmanError
	switch {
	case status == http.StatusPaymentRequired:
		e = QuotaError(msg, nil)
	case status == http.StatusTooManyRequests && IsQuotaMessage(body):
		e = QuotaError(msg, nil)
	case status == http.StatusTooManyRequests:
		e = New(ErrCodeRateLimited, msg, nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e = New(ErrCodeTimeout, msg, nil)
	case status >= 500:
		e = TransientError(msg, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = ConfigError(msg, nil).WithSuggestion("Check the provider API key")
	default:
		e = ValidationError(msg, nil)
	}
	return e.WithDetail("provider", provider).WithDetail("status", fmt.Sprint(status))
}

// ClassifyTransport maps a request that never produced a response. Caller
// cancellation passes through unchanged; deadlines and network failures are
// transient.
func ClassifyTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, provider+" request timed out", err).WithDetail("provider", provider)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return New(ErrCodeTimeout, provider+" request timed out", err).WithDetail("provider", provider)
	}
	return TransientError(provider+" request failed", err).WithDetail("provider", provider)
}

// ClassifyOpenAI maps an openai-go error. API errors are classified by status
// with the error code, type and message as the body; anything else is a
// transport failure.
func ClassifyOpenAI(err error) error {
	var apiErr *openai.Error
	if stderrors.As(err, &apiErr) {
		body := strings.TrimSpace(apiErr.Code + " " + apiErr.Type + " " + apiErr.Message)
		return ClassifyHTTP("openai", apiErr.StatusCode, body)
	}
	return ClassifyTransport("openai", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

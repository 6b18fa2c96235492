package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		provider Name
		wantCode string
	}{
		{"sentinel timeout", Timeout(Gemini, context.DeadlineExceeded), Gemini, "GEMINI_TIMEOUT"},
		{"deadline exceeded", fmt.Errorf("stream: %w", context.DeadlineExceeded), Seedream, "SEEDREAM_TIMEOUT"},
		{"timeout text", errors.New("Client.Timeout exceeded while awaiting headers"), Seedream, "SEEDREAM_TIMEOUT"},
		{"503 overload", &HTTPError{Provider: Gemini, Status: 503, Body: `{"error":{"message":"The model is overloaded."}}`}, Gemini, "GEMINI_OVERLOAD"},
		{"503 plain", &HTTPError{Provider: Seedream, Status: 503, Body: "unavailable"}, Seedream, "SEEDREAM_SERVICE_UNAVAILABLE"},
		{"429", fmt.Errorf("wrapped: %w", &HTTPError{Provider: Gemini, Status: http.StatusTooManyRequests}), Gemini, "GEMINI_RATE_LIMIT"},
		{"500", &HTTPError{Provider: Seedream, Status: 500, Body: "internal"}, Seedream, "SEEDREAM_ERROR"},
		{"safety block", &SafetyBlockError{Provider: Gemini, FinishReason: "SAFETY"}, Gemini, "GEMINI_ERROR"},
		{"generic", errors.New("something odd"), Gemini, "GEMINI_ERROR"},
		{"timeout beats status", Timeout(Seedream, &HTTPError{Status: 503}), Seedream, "SEEDREAM_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, tt.provider)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestClassify_MessageNeverLeaksRawError(t *testing.T) {
	raw := &HTTPError{Provider: Gemini, Status: 500, Body: "secret-internal-trace-id-123"}
	got := Classify(raw, Gemini)

	assert.NotContains(t, got.Message, "secret-internal-trace-id-123")
	assert.Equal(t, Classify(errors.New("other"), Gemini).Message, got.Message)
}

func TestParseName(t *testing.T) {
	n, ok := ParseName(" Gemini ")
	assert.True(t, ok)
	assert.Equal(t, Gemini, n)

	n, ok = ParseName("SEEDREAM")
	assert.True(t, ok)
	assert.Equal(t, Seedream, n)

	_, ok = ParseName("midjourney")
	assert.False(t, ok)
}

func TestHTTPErrorHelpers(t *testing.T) {
	err := fmt.Errorf("call: %w", &HTTPError{Provider: Seedream, Status: 502})
	assert.True(t, IsServerError(err))
	assert.True(t, IsHTTPStatus(err, 502))
	assert.False(t, IsHTTPStatus(err, 503))
	assert.False(t, IsServerError(&HTTPError{Status: 429}))
}

package llmclient

import (
	"errors"
	"strings"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		kind   ErrorKind
	}{
		{401, KindUnauthorized},
		{403, KindUnauthorized},
		{400, KindInvalidRequest},
		{404, KindInvalidRequest},
		{413, KindInvalidRequest},
		{422, KindInvalidRequest},
		{429, KindRateLimited},
		{408, KindUnavailable},
		{500, KindUnavailable},
		{502, KindUnavailable},
		{503, KindUnavailable},
		{529, KindUnavailable},
		{418, KindUnknown},
	}

	for _, tc := range cases {
		pe := ClassifyStatus(tc.status, "test", "boom", nil, nil)
		if pe.Kind != tc.kind {
			t.Errorf("status %d: expected kind %s, got %s", tc.status, tc.kind, pe.Kind)
		}
		if pe.StatusCode != tc.status {
			t.Errorf("status %d: expected status preserved, got %d", tc.status, pe.StatusCode)
		}
	}
}

func TestClassifyStatusCarriesRetryAfter(t *testing.T) {
	hint := 30.0
	pe := ClassifyStatus(429, "openai", "rate limited", &hint, nil)
	if pe.RetryAfter == nil || *pe.RetryAfter != 30.0 {
		t.Errorf("expected retry-after hint 30, got %v", pe.RetryAfter)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		kind      ErrorKind
		retryable bool
	}{
		{KindRateLimited, true},
		{KindUnavailable, true},
		{KindUnknown, true},
		{KindUnauthorized, false},
		{KindInvalidRequest, false},
	}

	for _, tc := range cases {
		err := &ProviderError{Kind: tc.kind, Provider: "test", Message: "x"}
		if IsRetryable(err) != tc.retryable {
			t.Errorf("kind %s: expected retryable=%v", tc.kind, tc.retryable)
		}
		if IsFatal(err) == tc.retryable {
			t.Errorf("kind %s: IsFatal should invert IsRetryable", tc.kind)
		}
	}
}

func TestIsRetryablePlainError(t *testing.T) {
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors must not be retryable")
	}
	if IsRetryable(&ConfigurationError{Message: "miswired"}) {
		t.Error("configuration errors must not be retryable")
	}
}

func TestProviderErrorString(t *testing.T) {
	pe := &ProviderError{Kind: KindRateLimited, Provider: "anthropic", StatusCode: 429, Message: "slow down"}
	msg := pe.Error()
	for _, want := range []string{"anthropic", "rate_limited", "slow down", "429"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error string %q missing %q", msg, want)
		}
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	pe := Unavailable("openai", "transport failure", cause)
	if !errors.Is(pe, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
}

func TestUnclassified(t *testing.T) {
	pe := Unclassified("ollama", errors.New("weird"))
	if pe.Kind != KindUnknown {
		t.Errorf("expected unknown kind, got %s", pe.Kind)
	}
	if pe.Message != "weird" {
		t.Errorf("expected cause message, got %q", pe.Message)
	}
	if Unclassified("ollama", nil).Message == "" {
		t.Error("expected placeholder message for nil cause")
	}
}

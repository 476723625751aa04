package llmclient

import "fmt"

// ErrorKind classifies a provider failure for retry and surfacing decisions.
type ErrorKind string

const (
	// KindRateLimited is retryable; RetryAfter carries the suggested backoff
	// when the provider supplied one.
	KindRateLimited ErrorKind = "rate_limited"
	// KindUnauthorized is fatal: a credential problem.
	KindUnauthorized ErrorKind = "unauthorized"
	// KindInvalidRequest is fatal: malformed input, which signals a bug in the
	// caller's message construction rather than a transient fault.
	KindInvalidRequest ErrorKind = "invalid_request"
	// KindUnavailable is retryable: transient network or backend fault.
	KindUnavailable ErrorKind = "unavailable"
	// KindUnknown is retryable once, then fatal.
	KindUnknown ErrorKind = "unknown"
)

// ProviderError is an error surfaced by a provider backend, classified into
// one of the ErrorKind classes.
type ProviderError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	RetryAfter *float64 // seconds, from a rate-limit response
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] %s: %s (status=%d)", e.Provider, e.Kind, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// ConfigurationError indicates the client itself is miswired (no such
// provider, no default). It is never retried.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// ClassifyStatus maps an HTTP status code from a provider response to a
// classified ProviderError.
func ClassifyStatus(statusCode int, provider, message string, retryAfter *float64, cause error) *ProviderError {
	pe := &ProviderError{
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		RetryAfter: retryAfter,
		Cause:      cause,
	}

	switch {
	case statusCode == 401 || statusCode == 403:
		pe.Kind = KindUnauthorized
	case statusCode == 400 || statusCode == 404 || statusCode == 413 || statusCode == 422:
		pe.Kind = KindInvalidRequest
	case statusCode == 429:
		pe.Kind = KindRateLimited
	case statusCode == 408 || (statusCode >= 500 && statusCode <= 599):
		pe.Kind = KindUnavailable
	default:
		pe.Kind = KindUnknown
	}
	return pe
}

// Unauthorized builds a fatal credential error for a provider. Used by
// adapters when their credential is absent at call time.
func Unauthorized(provider, message string) *ProviderError {
	return &ProviderError{Kind: KindUnauthorized, Provider: provider, Message: message}
}

// Unavailable builds a retryable transport-level error.
func Unavailable(provider, message string, cause error) *ProviderError {
	return &ProviderError{Kind: KindUnavailable, Provider: provider, Message: message, Cause: cause}
}

// Unclassified wraps an error whose cause could not be determined.
func Unclassified(provider string, cause error) *ProviderError {
	msg := "unclassified provider error"
	if cause != nil {
		msg = cause.Error()
	}
	return &ProviderError{Kind: KindUnknown, Provider: provider, Message: msg, Cause: cause}
}

// IsRetryable reports whether the error is safe to retry at all. The
// once-only budget for KindUnknown is enforced by Retry, not here.
func IsRetryable(err error) bool {
	pe, ok := err.(*ProviderError)
	if !ok {
		return false
	}
	switch pe.Kind {
	case KindRateLimited, KindUnavailable, KindUnknown:
		return true
	default:
		return false
	}
}

// IsFatal reports the inverse of IsRetryable for classified errors, and true
// for anything unclassified.
func IsFatal(err error) bool { return !IsRetryable(err) }

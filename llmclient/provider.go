package llmclient

import "context"

// ProviderAdapter is the interface every provider backend implements. Adding
// a backend means adding an adapter; callers never branch on provider name.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream sends a request and returns a finite, non-restartable channel of
	// stream events. The channel is closed after StreamFinish or StreamError.
	// Cancelling ctx closes the underlying transport.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}

package llmclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Middleware wraps a blocking provider call. It receives the request and a
// next function that calls the downstream handler.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error)

// Client routes requests to registered provider adapters and applies
// middleware. Instances are constructed once at process start and are
// read-only thereafter; there is no ambient default client.
type Client struct {
	providers       map[string]ProviderAdapter
	defaultProvider string
	middleware      []Middleware
	streamRetry     *RetryPolicy
	logger          *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers a provider adapter.
func WithProvider(adapter ProviderAdapter) ClientOption {
	return func(c *Client) {
		c.providers[adapter.Name()] = adapter
		if c.defaultProvider == "" {
			c.defaultProvider = adapter.Name()
		}
	}
}

// WithDefaultProvider sets the default provider name.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// WithMiddleware appends middleware to the chain. The first registered runs
// first.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithRetry installs retry for both paths: middleware for blocking calls,
// and stream-establishment retry for streaming calls (streams that fail
// before any output has been surfaced).
func WithRetry(policy RetryPolicy) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, RetryMiddleware(policy))
		p := policy
		c.streamRetry = &p
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]ProviderAdapter),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RetryMiddleware retries retryable classified failures with backoff and
// jitter, bounded by the policy's attempt count.
func RetryMiddleware(policy RetryPolicy) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		return Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
			return next(ctx, req)
		})
	}
}

// resolveProvider determines which adapter serves a request: the request's
// explicit provider, then the default, then catalog inference from the model.
func (c *Client) resolveProvider(req Request) (ProviderAdapter, error) {
	name := req.Provider
	if name == "" {
		if info := GetModelInfo(req.Model); info != nil {
			name = info.Provider
		}
	}
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		return nil, &ConfigurationError{Message: "no provider specified and no default provider configured"}
	}

	adapter, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{Message: fmt.Sprintf("provider %q is not registered", name)}
	}
	return adapter, nil
}

// Complete sends a blocking request through the middleware chain to the
// resolved provider.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	adapter, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = adapter.Name()
	}

	handler := func(ctx context.Context, r Request) (*Response, error) {
		return adapter.Complete(ctx, r)
	}
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := handler
		handler = func(ctx context.Context, r Request) (*Response, error) {
			return mw(ctx, r, next)
		}
	}

	c.logger.Debug("completion request",
		zap.String("provider", req.Provider),
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)))
	return handler(ctx, req)
}

// Stream sends a streaming request to the resolved provider. The returned
// channel must be drained to completion before issuing the next request.
//
// Retry covers stream establishment and failures that occur before any
// delta has been surfaced to the caller; once output has been observed a
// replay would duplicate it, so later failures surface directly.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	adapter, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = adapter.Name()
	}

	c.logger.Debug("streaming request",
		zap.String("provider", req.Provider),
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)))

	if c.streamRetry == nil {
		return adapter.Stream(ctx, req)
	}
	out := make(chan StreamEvent, 64)
	go c.streamWithRetry(ctx, adapter, req, out)
	return out, nil
}

// streamWithRetry drives attempts against the adapter, emitting a single
// StreamStart and forwarding one successful stream's events. Failed attempts
// that produced no output are retried under the policy, with the same
// kind rules as blocking retry (Unknown at most once, Retry-After hints
// honored up to MaxDelay).
func (c *Client) streamWithRetry(ctx context.Context, adapter ProviderAdapter, req Request, out chan<- StreamEvent) {
	defer close(out)
	policy := *c.streamRetry

	out <- StreamEvent{Type: StreamStart}

	unknownRetries := 0
	for attempt := 0; ; attempt++ {
		delivered, err := streamAttempt(ctx, adapter, req, out)
		if err == nil {
			return
		}

		retry := !delivered && attempt < policy.MaxRetries && IsRetryable(err) && ctx.Err() == nil
		var pe *ProviderError
		errors.As(err, &pe)
		if retry && pe != nil && pe.Kind == KindUnknown {
			if unknownRetries >= 1 {
				retry = false
			} else {
				unknownRetries++
			}
		}
		if !retry {
			out <- StreamEvent{Type: StreamError, Err: err}
			return
		}

		delay := policy.Delay(attempt)
		if pe != nil && pe.Kind == KindRateLimited && pe.RetryAfter != nil {
			hinted := time.Duration(*pe.RetryAfter * float64(time.Second))
			if hinted > time.Duration(policy.MaxDelay*float64(time.Second)) {
				out <- StreamEvent{Type: StreamError, Err: err}
				return
			}
			delay = hinted
		}
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		select {
		case <-ctx.Done():
			out <- StreamEvent{Type: StreamError, Err: ctx.Err()}
			return
		case <-time.After(delay):
		}
	}
}

// streamAttempt forwards one provider stream to out, suppressing the
// provider's own StreamStart. delivered reports whether any event beyond
// StreamStart reached the consumer; once true, a failure is past the point
// of safe replay.
func streamAttempt(ctx context.Context, adapter ProviderAdapter, req Request, out chan<- StreamEvent) (bool, error) {
	events, err := adapter.Stream(ctx, req)
	if err != nil {
		return false, err
	}

	delivered := false
	for ev := range events {
		switch ev.Type {
		case StreamStart:
			// The wrapper emitted it once already.
		case StreamError:
			err := ev.Err
			if err == nil {
				err = &ProviderError{Kind: KindUnknown, Message: "stream failed without error detail"}
			}
			go func() {
				for range events {
				}
			}()
			return delivered, err
		case StreamFinish:
			out <- ev
			return true, nil
		default:
			delivered = true
			out <- ev
		}
	}
	return delivered, &ProviderError{Kind: KindUnavailable, Message: "stream closed before completion"}
}

// Close releases resources held by registered providers.
func (c *Client) Close() error {
	var firstErr error
	for _, adapter := range c.providers {
		if closer, ok := adapter.(Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Package llmclient provides a provider-agnostic LLM completion client with
// blocking and streaming calls, tool-calling support, classified errors, and
// retry with exponential backoff.
//
// # Architecture
//
// The package has three layers:
//
//   - Provider adapters: ProviderAdapter implementations that translate the
//     shared types to a backend's wire format (AnthropicAdapter,
//     OpenAIAdapter, GollmAdapter).
//   - Utilities: error classification (ClassifyStatus, IsRetryable) and the
//     generic Retry helper.
//   - Client: routes requests to registered adapters and applies middleware.
//
// # Quick Start
//
//	anthropic := llmclient.NewAnthropicAdapter(os.Getenv("ANTHROPIC_API_KEY"), "")
//	client := llmclient.NewClient(
//	    llmclient.WithProvider(anthropic),
//	    llmclient.WithRetry(llmclient.DefaultRetryPolicy()),
//	)
//
//	resp, err := client.Complete(ctx, llmclient.Request{
//	    Model:    "claude-sonnet-4-5",
//	    Messages: []llmclient.Message{llmclient.UserMessage("Hello")},
//	})
//	fmt.Println(resp.Text())
//
// # Streaming
//
// Stream returns a channel of StreamEvent. The channel must be drained; use
// Collect to drain it and recover the final Response, which materializes the
// same message a blocking Complete call would return. With WithRetry
// configured, stream establishment and failures before the first surfaced
// delta are retried; failures after output has been observed surface
// directly, since a replay would duplicate it.
//
//	events, err := client.Stream(ctx, req)
//	resp, err := llmclient.Collect(events, func(ev llmclient.StreamEvent) {
//	    if ev.Type == llmclient.TextDelta {
//	        fmt.Print(ev.Delta)
//	    }
//	})
//
// # Errors
//
// Provider failures surface as *ProviderError classified by ErrorKind.
// Rate-limit and availability faults are retryable; credential and request
// errors are fatal; unclassified faults are retried once. Client miswiring
// surfaces as *ConfigurationError.
//
// There is no package-level default client; construct a Client explicitly and
// pass it where it is needed.
package llmclient

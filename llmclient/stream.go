package llmclient

import "strings"

// Collect drains a stream to completion and returns the final response.
//
// The StreamFinish response is canonical for both content and tool calls:
// adapters accumulate or clean their deltas into it, so a streamed completion
// materializes to the same message a blocking call would return. Delta
// concatenation fills in only when a backend leaves the final content empty.
// Partial tool-call fragments seen along the way are never promoted to
// usable calls.
//
// The onEvent callback, when non-nil, observes every event as it arrives
// (tokens re-entering the caller's loop incrementally). Collect returns the
// StreamError's error if the stream fails, and an error if the channel closes
// without a terminal event.
func Collect(events <-chan StreamEvent, onEvent func(StreamEvent)) (*Response, error) {
	var text strings.Builder

	for ev := range events {
		if onEvent != nil {
			onEvent(ev)
		}
		switch ev.Type {
		case TextDelta:
			text.WriteString(ev.Delta)
		case StreamFinish:
			resp := ev.Response
			if resp == nil {
				return nil, &ProviderError{Kind: KindUnknown, Message: "stream finished without a response"}
			}
			// The finish response wins when it carries content: the gollm
			// adapter strips embedded tool-call JSON there that its raw
			// deltas still contain. Deltas back-fill a backend that leaves
			// the final content empty, unless the emptiness is itself the
			// cleaned form of a pure tool-call response.
			if resp.Message.Content == "" && len(resp.Message.ToolCalls) == 0 {
				resp.Message.Content = text.String()
			}
			return resp, nil
		case StreamError:
			if ev.Err != nil {
				return nil, ev.Err
			}
			return nil, &ProviderError{Kind: KindUnknown, Message: "stream failed without error detail"}
		}
	}

	return nil, &ProviderError{Kind: KindUnavailable, Message: "stream closed before completion"}
}

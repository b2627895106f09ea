// Package provider defines the Provider interface and LLM provider adapters.
//
// A Provider wraps one upstream LLM backend. The rest of the relay —
// session, SSE encoder, handlers — works with the unified types in this
// package and never sees the upstream wire format. Upstream failures are
// classified into a closed ErrorCode taxonomy at this boundary and never
// cross it in raw form.
package provider

import "context"

// Provider is the interface the streaming relay pulls tokens through.
// Go interfaces are implicit: any struct with this method satisfies it.
type Provider interface {
	// Name returns the provider identifier, e.g. "anthropic".
	// Used for logging and the X-ChatRelay-Provider header.
	Name() string

	// StreamChat sends a request and returns a channel that delivers
	// response chunks as they arrive from the upstream API.
	//
	// The returned channel is receive-only — the adapter creates it,
	// writes chunks to it, and closes it when the stream ends. Exactly
	// one terminal chunk (Done or Err set) is sent before close, unless
	// ctx is cancelled first, in which case the adapter stops sending
	// and closes the channel.
	//
	// Cancelling ctx instructs the adapter to stop pulling from the
	// upstream; in-flight upstream reads may complete and are discarded.
	StreamChat(ctx context.Context, req *ChatRequest) (<-chan Chunk, error)
}

// ---------------------------------------------------------------------------
// Unified request types
// ---------------------------------------------------------------------------

// ChatRequest is the internal representation of one streaming chat turn:
// the new user message is the last element of Messages, preceded by the
// ordered prior-turn history.
type ChatRequest struct {
	Model    string    `json:"model"`    // concrete model id, already resolved by the catalog
	Messages []Message `json:"messages"` // prior turns + the new user message, in order
}

// Message is a single turn in the conversation, a role/content pair.
type Message struct {
	Role    string `json:"role"`    // "user" or "assistant"
	Content string `json:"content"` // the message text
}

// ---------------------------------------------------------------------------
// Stream chunks
// ---------------------------------------------------------------------------

// Chunk is one piece of a streaming response. The adapter sends these over
// a channel; the handler appends content to the session and forwards it to
// the SSE encoder.
//
// Invariants the adapters maintain:
//   - Content is never empty or whitespace-only on a non-terminal chunk
//     (upstreams sometimes emit empty deltas; those are filtered here).
//   - Exactly one chunk has Done or Err set, and it is the last one.
type Chunk struct {
	Content string // the new text fragment, in generation order
	Model   string // model that is actually generating (known after the upstream confirms it)
	Done    bool   // true on the final chunk of a successful stream

	// TotalTokens is only known on the final chunk, and only when the
	// upstream reports usage. Zero means "not reported".
	TotalTokens int

	// Err is set instead of Done when the stream terminates on a failure.
	// It is always a classified *Failure — raw upstream errors never
	// travel on the channel.
	Err *Failure
}

// Package chatclient is the client half of the streaming relay: it issues
// the streaming request, reassembles SSE frames from arbitrarily chunked
// reads, and drives the consumer state machine that accumulates fragments
// into a live message.
//
// The package speaks the relay's wire protocol and nothing else; it has no
// dependency on the server's internals, the way a browser client wouldn't.
package chatclient

// Event type discriminators as they appear on the wire.
const (
	EventToken    = "token"
	EventComplete = "complete"
	EventError    = "error"
)

// Event is one decoded wire frame. Exactly one shape is populated,
// selected by Type — the relay sends
//
//	{"type":"token","content":"<fragment>"}
//	{"type":"complete","model":"<id>","totalTokens":<int|omitted>}
//	{"type":"error","error":"<human message>","code":"<code>"}
type Event struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Model   string `json:"model"`

	// TotalTokens is nil when the server omitted it (usage unknown).
	TotalTokens *int `json:"totalTokens"`

	Error string `json:"error"`
	Code  string `json:"code"`
}

// Terminal reports whether no further events follow this one.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// Client-local error codes. They extend the server's taxonomy for failures
// that only the client can observe.
const (
	// CodeAborted marks a user-initiated cancellation.
	CodeAborted = "ABORTED"

	// CodeMalformedFrame marks a wire frame that could not be decoded.
	// Fatal to the stream, not skipped — a corrupt frame means the byte
	// stream can no longer be trusted.
	CodeMalformedFrame = "MALFORMED_FRAME"

	// CodeConnection marks a transport failure while reading the stream.
	CodeConnection = "CONNECTION"
)

// abortedReason is the fixed cause recorded on user-initiated aborts.
const abortedReason = "cancelled by user"

// Package stream defines the wire-level stream events and the SSE encoder
// that frames them onto a long-lived HTTP response.
package stream

import "github.com/chatrelay/chatrelay/internal/provider"

// Event type discriminators as they appear on the wire.
const (
	TypeToken    = "token"
	TypeComplete = "complete"
	TypeError    = "error"
)

// Event is the wire-level tagged union. Exactly one shape is populated,
// selected by Type:
//
//	{"type":"token","content":"<fragment>"}
//	{"type":"complete","model":"<id>","totalTokens":<int|omitted>}
//	{"type":"error","error":"<human message>","code":"<code>"}
//
// Go has no union types, so one struct carries every field and omitempty
// keeps the irrelevant ones off the wire. Build events through the
// constructors below rather than by hand.
type Event struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Model   string `json:"model,omitempty"`

	// TotalTokens is a pointer so "not reported" is omitted entirely
	// instead of serializing as 0.
	TotalTokens *int `json:"totalTokens,omitempty"`

	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Token wraps one non-empty fragment of the reply.
func Token(content string) Event {
	return Event{Type: TypeToken, Content: content}
}

// Complete is the terminal event of a successful stream. totalTokens <= 0
// means the upstream did not report usage and the field is omitted.
func Complete(model string, totalTokens int) Event {
	ev := Event{Type: TypeComplete, Model: model}
	if totalTokens > 0 {
		ev.TotalTokens = &totalTokens
	}
	return ev
}

// Error is the terminal event of a failed stream. The message is the fixed
// human-safe one carried by the classified failure — never upstream text.
func Error(code provider.ErrorCode, message string) Event {
	return Event{Type: TypeError, Error: message, Code: string(code)}
}

// Terminal reports whether no further events may follow this one.
func (e Event) Terminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}

package chatclient

import (
	"strings"
	"sync"
)

// Statuses a live message moves through on the client.
const (
	StatusIdle      = "idle"
	StatusStreaming = "streaming"
	StatusSent      = "sent"
	StatusError     = "error"
)

// FinishedMessage is what the state machine hands to the persistence
// collaborator exactly once, on any terminal transition. On error and
// abort, Text holds the partial reply accumulated before the failure —
// never discarded.
type FinishedMessage struct {
	MessageID   string
	Text        string
	Model       string
	Status      string // StatusSent or StatusError
	ErrorCode   string // empty on StatusSent
	ErrorReason string // short human-readable cause, empty on StatusSent

	// TotalTokens is nil when the server did not report usage.
	TotalTokens *int
}

// Committer is the persistence collaborator on the client side. In the
// browser this is the conversation's message list; in tests a recording
// fake.
type Committer interface {
	Commit(msg FinishedMessage)
}

// CommitterFunc adapts a function to the Committer interface.
type CommitterFunc func(msg FinishedMessage)

// Commit implements Committer.
func (f CommitterFunc) Commit(msg FinishedMessage) { f(msg) }

// StreamState is the consumer state machine driving one live message:
//
//	Idle → Streaming → Complete | Errored | Aborted
//
// It accumulates token fragments in order, and on any terminal transition
// folds the message into the Committer exactly once. Operations attempted
// from a terminal state are no-ops, because a user abort can race the
// server's terminal event.
//
// Start while already Streaming is rejected. The server enforces the same
// one-active-stream rule per conversation; the two run in different
// processes, so each side enforces it independently.
type StreamState struct {
	mu        sync.Mutex
	status    string
	messageID string
	model     string
	text      strings.Builder
	committer Committer
	committed bool
}

// NewStreamState creates an idle state machine that commits terminal
// messages to the given collaborator.
func NewStreamState(committer Committer) *StreamState {
	return &StreamState{
		status:    StatusIdle,
		committer: committer,
	}
}

// Status returns the live message's current status: StatusIdle,
// StatusStreaming, StatusSent, or StatusError.
func (s *StreamState) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Streaming reports whether a stream is currently being consumed.
func (s *StreamState) Streaming() bool {
	return s.Status() == StatusStreaming
}

// Text returns the text accumulated so far — the live message body the UI
// renders while tokens arrive.
func (s *StreamState) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Start transitions Idle→Streaming with a fresh accumulator tied to
// messageID. Returns false (and changes nothing) while a stream is already
// being consumed.
func (s *StreamState) Start(messageID, model string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusStreaming {
		return false
	}
	s.status = StatusStreaming
	s.messageID = messageID
	s.model = model
	s.text.Reset()
	s.committed = false
	return true
}

// OnToken appends one fragment to the accumulator, order-preserving — no
// re-ordering, no de-duplication; the transport already guarantees order.
// No-op outside Streaming.
func (s *StreamState) OnToken(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusStreaming {
		return
	}
	s.text.WriteString(content)
}

// OnComplete transitions Streaming→Complete: the accumulated text plus
// metadata is committed as a finished message with status "sent" and the
// accumulator is cleared. No-op outside Streaming.
func (s *StreamState) OnComplete(model string, totalTokens *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusStreaming {
		return
	}
	s.status = StatusSent
	if model != "" {
		s.model = model
	}
	s.commitLocked(FinishedMessage{
		MessageID:   s.messageID,
		Text:        s.text.String(),
		Model:       s.model,
		Status:      StatusSent,
		TotalTokens: totalTokens,
	})
	s.text.Reset()
}

// OnError transitions Streaming→Errored: the partial accumulated text and
// the error summary are committed as a message marked failed. This is the
// partial-preservation guarantee — whatever already streamed stays. No-op
// outside Streaming.
func (s *StreamState) OnError(reason, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusStreaming {
		return
	}
	s.status = StatusError
	s.commitLocked(FinishedMessage{
		MessageID:   s.messageID,
		Text:        s.text.String(),
		Model:       s.model,
		Status:      StatusError,
		ErrorCode:   code,
		ErrorReason: reason,
	})
	s.text.Reset()
}

// Abort is the caller-initiated cancel: identical to OnError with the
// fixed "cancelled by user" reason. Partial text is preserved.
func (s *StreamState) Abort() {
	s.OnError(abortedReason, CodeAborted)
}

// commitLocked hands the finished message to the collaborator, at most
// once per stream. Caller holds s.mu.
func (s *StreamState) commitLocked(msg FinishedMessage) {
	if s.committed || s.committer == nil {
		return
	}
	s.committed = true
	s.committer.Commit(msg)
}

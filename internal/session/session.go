// Package session holds the server-side state of one in-flight stream and
// enforces the one-active-stream-per-conversation invariant.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/chatrelay/chatrelay/internal/provider"
)

// State is the lifecycle position of a Session.
//
//	Idle → Active → Completed | Errored | Aborted
//
// Terminal states are final — there is no resurrection, and operations
// attempted from a terminal state are no-ops rather than errors, because
// cancellation and upstream completion legitimately race.
type State string

const (
	StateIdle      State = "idle"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateErrored   State = "errored"
	StateAborted   State = "aborted"
)

// Terminal reports whether no further lifecycle transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored || s == StateAborted
}

// Session is the single source of truth for one stream's lifecycle on the
// server: accumulated text, state, and the cancel handle for the producer.
//
// The accumulated text is append-only for the session's whole lifetime —
// Fail and Cancel leave it intact. That is what lets the caller persist a
// partial reply when a stream dies halfway.
type Session struct {
	id             string
	conversationID string

	mu     sync.Mutex
	state  State
	text   strings.Builder
	model  string
	cancel context.CancelFunc

	// failure records why the session errored, for the terminal persist.
	failCode    provider.ErrorCode
	failMessage string
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// ConversationID returns the owning conversation.
func (s *Session) ConversationID() string { return s.conversationID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Text returns the text accumulated so far. Valid in any state — after a
// failure it is the partial reply to persist.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Model returns the model recorded at completion, or the empty string
// before the producer confirmed one.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Failure returns the code and message recorded by Fail. Only meaningful
// in StateErrored.
func (s *Session) Failure() (provider.ErrorCode, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failCode, s.failMessage
}

// AppendToken appends one fragment to the accumulated text. Valid only in
// Active; from any terminal state it is a no-op and reports false so the
// caller knows not to emit a Token event for it.
func (s *Session) AppendToken(fragment string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return false
	}
	s.text.WriteString(fragment)
	return true
}

// Complete transitions Active→Completed, recording the model that actually
// generated the reply. No-op from a terminal state.
func (s *Session) Complete(model string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return false
	}
	s.state = StateCompleted
	s.model = model
	return true
}

// Fail transitions Active→Errored. The accumulated text is deliberately
// left in place for the caller to persist as a partial message. No-op from
// a terminal state.
func (s *Session) Fail(code provider.ErrorCode, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return false
	}
	s.state = StateErrored
	s.failCode = code
	s.failMessage = message
	return true
}

// Cancel transitions Active→Aborted and instructs the producer to stop
// pulling from the upstream (best-effort: in-flight upstream reads may
// complete and are discarded). Idempotent; no events follow it.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return false
	}
	s.state = StateAborted
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Registry enforces "at most one Active session per conversation". It is
// the only shared mutable state in the relay core; everything else is
// per-session.
type Registry struct {
	mu     sync.Mutex
	active map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*Session)}
}

// Start atomically checks for an Active session on the conversation and,
// if there is none, registers and returns a new one in StateActive. The
// check and the set happen under one lock — no interleaving window for two
// requests racing on the same conversation.
//
// cancel is the handle Session.Cancel uses to stop the token producer; it
// may be nil in tests.
func (r *Registry) Start(conversationID string, cancel context.CancelFunc) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[conversationID]; ok {
		return nil, ErrAlreadyStreaming
	}

	s := &Session{
		id:             uuid.New().String(),
		conversationID: conversationID,
		state:          StateActive,
		cancel:         cancel,
	}
	r.active[conversationID] = s
	return s, nil
}

// Release removes the session from the active set. Called on any terminal
// transition; releasing a session that was already replaced is a no-op, so
// a late release cannot disturb a newer stream.
func (r *Registry) Release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.active[s.conversationID]; ok && cur == s {
		delete(r.active, s.conversationID)
	}
}

// ActiveCount reports how many sessions are currently registered. For
// observability and tests.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

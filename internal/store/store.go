// Package store persists finished messages. The streaming core calls
// AppendFinishedMessage exactly once per stream, on any terminal
// transition — completed replies with status "sent", failed or aborted
// ones with status "error" and whatever partial text had streamed.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message statuses as persisted.
const (
	StatusSent  = "sent"
	StatusError = "error"
)

// FinishedMessage is one terminal stream outcome. Text is never discarded:
// on an error it holds the partial reply accumulated before the failure.
type FinishedMessage struct {
	ID        string
	Text      string
	Model     string
	Status    string // StatusSent or StatusError
	ErrorCode string // empty on StatusSent
	CreatedAt time.Time
}

// MessageStore is the persistence collaborator consumed by the relay core.
type MessageStore interface {
	// AppendFinishedMessage adds a terminal message to the conversation's
	// history. Called exactly once per stream.
	AppendFinishedMessage(ctx context.Context, conversationID string, msg FinishedMessage) error

	// Messages returns the conversation's persisted messages in append
	// order.
	Messages(ctx context.Context, conversationID string) ([]FinishedMessage, error)
}

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

// MemoryStore is a map-backed MessageStore for tests and for the client
// half, where real persistence lives behind an API the relay core never
// sees.
type MemoryStore struct {
	mu       sync.Mutex
	messages map[string][]FinishedMessage
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string][]FinishedMessage)}
}

// AppendFinishedMessage implements MessageStore.
func (m *MemoryStore) AppendFinishedMessage(_ context.Context, conversationID string, msg FinishedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)
	return nil
}

// Messages implements MessageStore.
func (m *MemoryStore) Messages(_ context.Context, conversationID string) ([]FinishedMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FinishedMessage, len(m.messages[conversationID]))
	copy(out, m.messages[conversationID])
	return out, nil
}

var _ MessageStore = (*MemoryStore)(nil)

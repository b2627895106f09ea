package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chatrelay/chatrelay/internal/provider"
)

func startSession(t *testing.T, r *Registry, conversationID string) *Session {
	t.Helper()
	s, err := r.Start(conversationID, nil)
	if err != nil {
		t.Fatalf("Start(%q) returned error: %v", conversationID, err)
	}
	return s
}

func TestSession_AppendOnlyAccumulation(t *testing.T) {
	s := startSession(t, NewRegistry(), "c1")

	for _, frag := range []string{"The ", "answer ", "is 42"} {
		if !s.AppendToken(frag) {
			t.Fatalf("AppendToken(%q) rejected in Active state", frag)
		}
	}

	if got := s.Text(); got != "The answer is 42" {
		t.Errorf("Text() = %q, want exact concatenation in order", got)
	}
}

func TestSession_CompleteLifecycle(t *testing.T) {
	s := startSession(t, NewRegistry(), "c1")

	s.AppendToken("Hello")
	if !s.Complete("m1") {
		t.Fatal("Complete rejected in Active state")
	}

	if s.State() != StateCompleted {
		t.Errorf("state = %s, want %s", s.State(), StateCompleted)
	}
	if s.Model() != "m1" {
		t.Errorf("model = %q, want m1", s.Model())
	}

	// Terminal states are final; every late operation is a no-op.
	if s.AppendToken("late") {
		t.Error("AppendToken must be a no-op after Complete")
	}
	if s.Fail(provider.CodeUnknown, "late") {
		t.Error("Fail must be a no-op after Complete")
	}
	if s.Cancel() {
		t.Error("Cancel must be a no-op after Complete")
	}
	if got := s.Text(); got != "Hello" {
		t.Errorf("Text() = %q after late ops, want %q", got, "Hello")
	}
}

func TestSession_FailPreservesPartialText(t *testing.T) {
	s := startSession(t, NewRegistry(), "c1")

	s.AppendToken("The ")
	s.AppendToken(" answer")

	if !s.Fail(provider.CodeRateLimit, "rate limited") {
		t.Fatal("Fail rejected in Active state")
	}

	if s.State() != StateErrored {
		t.Errorf("state = %s, want %s", s.State(), StateErrored)
	}
	// The whole point of append-only accumulation: the partial reply
	// survives the failure for the caller to persist.
	if got := s.Text(); got != "The  answer" {
		t.Errorf("Text() = %q, want the partial text intact", got)
	}

	code, msg := s.Failure()
	if code != provider.CodeRateLimit || msg != "rate limited" {
		t.Errorf("Failure() = (%s, %q)", code, msg)
	}
}

func TestSession_CancelInvokesHandleOnce(t *testing.T) {
	var calls int
	r := NewRegistry()
	s, err := r.Start("c1", func() { calls++ })
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	s.AppendToken("Par")

	if !s.Cancel() {
		t.Fatal("Cancel rejected in Active state")
	}
	if s.Cancel() {
		t.Error("second Cancel must be a no-op")
	}
	if calls != 1 {
		t.Errorf("cancel handle invoked %d times, want 1", calls)
	}

	if s.State() != StateAborted {
		t.Errorf("state = %s, want %s", s.State(), StateAborted)
	}
	if got := s.Text(); got != "Par" {
		t.Errorf("Text() = %q, want partial text preserved on abort", got)
	}
}

func TestRegistry_SingleActiveStreamPerConversation(t *testing.T) {
	r := NewRegistry()

	first := startSession(t, r, "c1")
	first.AppendToken("busy")

	_, err := r.Start("c1", nil)
	if !errors.Is(err, ErrAlreadyStreaming) {
		t.Fatalf("second Start error = %v, want ErrAlreadyStreaming", err)
	}

	// The rejection must not disturb the first stream.
	if first.State() != StateActive {
		t.Errorf("first session state = %s, want %s", first.State(), StateActive)
	}
	if first.Text() != "busy" {
		t.Errorf("first session text = %q, want untouched", first.Text())
	}

	// Different conversations are fully isolated.
	if _, err := r.Start("c2", nil); err != nil {
		t.Errorf("Start on another conversation returned error: %v", err)
	}
}

func TestRegistry_ReleaseAllowsRestart(t *testing.T) {
	r := NewRegistry()

	first := startSession(t, r, "c1")
	first.Complete("m1")
	r.Release(first)

	if _, err := r.Start("c1", nil); err != nil {
		t.Errorf("Start after Release returned error: %v", err)
	}
}

func TestRegistry_LateReleaseCannotEvictNewerSession(t *testing.T) {
	r := NewRegistry()

	first := startSession(t, r, "c1")
	r.Release(first)
	second := startSession(t, r, "c1")

	// A duplicate release of the old session must not free the slot the
	// new one holds.
	r.Release(first)

	if _, err := r.Start("c1", nil); !errors.Is(err, ErrAlreadyStreaming) {
		t.Errorf("Start error = %v, want ErrAlreadyStreaming while second is active", err)
	}
	if second.State() != StateActive {
		t.Errorf("second session state = %s, want %s", second.State(), StateActive)
	}
}

func TestRegistry_StartIsAtomic(t *testing.T) {
	r := NewRegistry()

	const goroutines = 32
	var wg sync.WaitGroup
	results := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Start("c1", context.CancelFunc(func() {}))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var won int
	for err := range results {
		if err == nil {
			won++
		} else if !errors.Is(err, ErrAlreadyStreaming) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Errorf("%d goroutines won the start race, want exactly 1", won)
	}
	if r.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", r.ActiveCount())
	}
}

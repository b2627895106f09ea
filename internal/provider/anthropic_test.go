package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/dnaeon/go-vcr.v4/pkg/recorder"
)

// collect drains a chunk channel into a slice.
func collect(t *testing.T, ch <-chan Chunk) []Chunk {
	t.Helper()
	var out []Chunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

// TestAnthropicStreamChat_Replay decodes a recorded upstream SSE exchange.
// The cassette carries the full Messages API event sequence, including an
// empty text delta that must be filtered out.
func TestAnthropicStreamChat_Replay(t *testing.T) {
	rec, err := recorder.New("testdata/anthropic_stream",
		recorder.WithMode(recorder.ModeReplayOnly))
	require.NoError(t, err)
	defer rec.Stop()

	p := NewAnthropicProvider("test-key", "https://api.anthropic.com/v1", rec.GetDefaultClient())

	ch, err := p.StreamChat(context.Background(), &ChatRequest{
		Model: "claude-sonnet-4-20250514",
		Messages: []Message{
			{Role: "user", Content: "Hi"},
		},
	})
	require.NoError(t, err)

	chunks := collect(t, ch)
	require.Len(t, chunks, 3, "two content chunks plus the terminal one")

	assert.Equal(t, "Hel", chunks[0].Content)
	assert.Equal(t, "lo", chunks[1].Content)
	assert.Equal(t, "claude-sonnet-4-20250514", chunks[0].Model)

	terminal := chunks[2]
	assert.True(t, terminal.Done)
	assert.Nil(t, terminal.Err)
	assert.Equal(t, 17, terminal.TotalTokens, "input 12 + output 5")
}

func TestAnthropicStreamChat_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorCode
	}{
		{http.StatusUnauthorized, CodeAuth},
		{http.StatusTooManyRequests, CodeRateLimit},
		{http.StatusBadRequest, CodeBadRequest},
		{http.StatusServiceUnavailable, CodeConnection},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				// Upstream error bodies carry raw detail; none of it may
				// surface in the classified failure.
				fmt.Fprint(w, `{"error":{"message":"secret internal detail"}}`)
			}))
			defer srv.Close()

			p := NewAnthropicProvider("test-key", srv.URL, srv.Client())

			_, err := p.StreamChat(context.Background(), &ChatRequest{Model: "m"})
			require.Error(t, err)

			var fail *Failure
			require.ErrorAs(t, err, &fail)
			assert.Equal(t, tt.want, fail.Code)
			assert.NotContains(t, fail.Message(), "secret internal detail")
		})
	}
}

func TestAnthropicStreamChat_FiltersWhitespaceDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"message_start\",\"message\":{\"id\":\"msg\",\"model\":\"m1\",\"usage\":{\"input_tokens\":1}}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"  \"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"ok\"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", srv.URL, srv.Client())

	ch, err := p.StreamChat(context.Background(), &ChatRequest{Model: "m1"})
	require.NoError(t, err)

	chunks := collect(t, ch)
	require.Len(t, chunks, 2, "whitespace-only delta produces no chunk")
	assert.Equal(t, "ok", chunks[0].Content)
	assert.True(t, chunks[1].Done)
}

func TestAnthropicStreamChat_MalformedEventTerminates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"a\"}}\n\n")
		fmt.Fprint(w, "data: {not json}\n\n")
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", srv.URL, srv.Client())

	ch, err := p.StreamChat(context.Background(), &ChatRequest{Model: "m1"})
	require.NoError(t, err)

	chunks := collect(t, ch)
	require.Len(t, chunks, 2)
	assert.Equal(t, "a", chunks[0].Content)
	require.NotNil(t, chunks[1].Err)
	assert.Equal(t, CodeUnknown, chunks[1].Err.Code)
}

func TestAnthropicStreamChat_CancelStopsPulling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		f := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"a\"}}\n\n")
		f.Flush()
		// Hold the stream open until the client gives up.
		<-r.Context().Done()
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", srv.URL, srv.Client())

	ch, err := p.StreamChat(ctx, &ChatRequest{Model: "m1"})
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "a", first.Content)

	cancel()

	// The adapter must stop sending and close the channel; whatever the
	// upstream had in flight is discarded.
	for range ch {
	}
}

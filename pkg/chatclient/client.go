package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// ErrStreamActive is returned when StreamChat is called while the state
// machine is already consuming a stream.
var ErrStreamActive = errors.New("a stream is already being consumed")

// ErrConversationBusy is returned when the server rejects the request
// because another stream is active on the conversation (HTTP 409).
var ErrConversationBusy = errors.New("a stream is already active for this conversation")

// Turn is one prior conversation turn, a role/content pair.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamRequest is one streaming chat call: the new message, the ordered
// prior-turn history, and an optional model (empty falls back to the
// server's configured default).
type StreamRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	History        []Turn `json:"history,omitempty"`
	Model          string `json:"model,omitempty"`
}

// Client issues streaming chat requests against a relay server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the given base URL. The *http.Client is
// injected so tests and callers can control transport behavior; nil means
// http.DefaultClient.
//
// Note the injected client must not set Timeout — that caps the whole
// response, which for a stream is the whole reply.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// readBufferSize is the transport read granularity. Frames routinely span
// several reads and several frames routinely share one — the parser owns
// reassembly, the size here only affects syscall count.
const readBufferSize = 4096

// StreamChat issues the streaming request and drives the state machine
// with the decoded events until the stream reaches a terminal state.
//
// Cancelling ctx is the abort path: it closes the underlying connection
// (the server observes that on its next write and stops the producer) and
// transitions the state machine through Abort, preserving partial text.
// No separate cancellation message exists — dropping the connection is
// the protocol.
//
// Pre-stream rejections (bad request, busy conversation) return an error
// without touching the state machine. Once the stream is open, failures
// travel through the state machine's OnError and StreamChat returns nil —
// the outcome lives in the committed message.
func (c *Client) StreamChat(ctx context.Context, req StreamRequest, state *StreamState) error {
	if state.Streaming() {
		return ErrStreamActive
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/stream", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// Accept selects the streaming response format over the JSON
	// fallback.
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending stream request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return ErrConversationBusy
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d from relay", resp.StatusCode)
	}

	if !state.Start(uuid.New().String(), req.Model) {
		return ErrStreamActive
	}

	return c.consume(ctx, resp.Body, state)
}

// consume reads the response body chunk by chunk, feeds the frame parser,
// and dispatches decoded events to the state machine until a terminal
// event, EOF, or a transport failure.
func (c *Client) consume(ctx context.Context, body io.Reader, state *StreamState) error {
	parser := &Parser{}
	buf := make([]byte, readBufferSize)

	for {
		n, err := body.Read(buf)

		if n > 0 {
			events, perr := parser.Feed(buf[:n])
			for _, ev := range events {
				dispatch(state, ev)
				if ev.Terminal() {
					return nil
				}
			}
			if perr != nil {
				// The byte stream can't be trusted past a corrupt
				// frame — fatal, not skipped.
				state.OnError("The response stream was corrupted.", CodeMalformedFrame)
				return perr
			}
		}

		if err != nil {
			switch {
			case ctx.Err() != nil:
				// User-initiated abort: the context cancellation killed
				// the read.
				state.Abort()
				return ctx.Err()
			case errors.Is(err, io.EOF):
				// Stream ended without a terminal event — the server
				// went away mid-stream.
				state.OnError("The connection closed before the reply finished.", CodeConnection)
				return nil
			default:
				state.OnError("Lost the connection while streaming.", CodeConnection)
				return fmt.Errorf("reading stream: %w", err)
			}
		}
	}
}

// dispatch maps one wire event onto the state machine.
func dispatch(state *StreamState, ev Event) {
	switch ev.Type {
	case EventToken:
		state.OnToken(ev.Content)
	case EventComplete:
		state.OnComplete(ev.Model, ev.TotalTokens)
	case EventError:
		state.OnError(ev.Error, ev.Code)
	default:
		// Unknown event types are ignored for forward compatibility.
	}
}

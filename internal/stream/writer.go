package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Writer frames Events as Server-Sent Events on an http.ResponseWriter and
// flushes after every event. Buffering events before writing would defeat
// the purpose of streaming — the client is rendering tokens as they land.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares w for SSE delivery: asserts flush support, sets the
// stream headers, and returns a Writer.
//
// http.ResponseWriter does not itself expose Flush; the concrete type the
// HTTP server hands us also implements http.Flusher, and we need it to push
// each event to the client immediately instead of waiting for the 4KB
// response buffer to fill. The two-value type assertion keeps a
// non-flushing writer (some middleware wrappers) from panicking us.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing (http.Flusher)")
	}

	// Headers must be set before the first body write — after that they
	// are locked in on the wire.
	//
	// text/event-stream marks the SSE protocol; no-cache keeps proxies
	// and browsers from caching a live stream; keep-alive holds the TCP
	// connection open across events; X-Accel-Buffering: no tells
	// nginx-style reverse proxies not to buffer the response, which
	// would delay delivery until the stream ends.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Commit the headers now. The client decides "stream opened" on the
	// response headers, and the first event may be a long time coming.
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}, nil
}

// Send frames one event as "data: <json>\n\n" and flushes it.
//
// The double newline is required by the SSE grammar — it marks the end of
// an event; the client dispatches nothing until it sees the blank line.
//
// A write error means the client connection is gone. The caller must treat
// that as cancellation: stop the producer and emit nothing further. Writes
// to a closed connection are discarded, not retried.
func (sw *Writer) Send(ev Event) error {
	jsonBytes, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling SSE event: %w", err)
	}

	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", jsonBytes); err != nil {
		return fmt.Errorf("writing SSE event: %w", err)
	}

	sw.flusher.Flush()
	return nil
}

package chatclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedFrame reports a fully delimited frame whose payload could
// not be decoded. The stream is unusable past this point.
var ErrMalformedFrame = errors.New("malformed stream frame")

// frameDelimiter ends an SSE event: a blank line, i.e. two newlines.
var frameDelimiter = []byte("\n\n")

// dataPrefix starts an SSE data field.
var dataPrefix = []byte("data:")

// Parser reassembles SSE frames from a byte stream that arrives in
// arbitrarily sized, arbitrarily split chunks — mid-frame splits and
// several complete frames per chunk both happen in practice.
//
// It keeps a single growing byte buffer. Working in bytes rather than
// decoded text matters: a multi-byte UTF-8 character split across two
// chunks sits harmlessly in the buffer until its frame is complete,
// whereas decoding each chunk separately would corrupt it.
//
// A Parser is single-stream state and is not safe for concurrent use.
type Parser struct {
	buf []byte
}

// Feed appends a chunk to the buffer and returns every event whose frame
// is now fully delimited, in order. A frame that is not yet terminated by
// a blank line simply waits in the buffer for the next chunk.
//
// On an undecodable frame Feed returns the events decoded before it along
// with an error wrapping ErrMalformedFrame; the parser must not be fed
// again after that.
func (p *Parser) Feed(chunk []byte) ([]Event, error) {
	p.buf = append(p.buf, chunk...)

	var events []Event
	for {
		idx := bytes.Index(p.buf, frameDelimiter)
		if idx < 0 {
			return events, nil
		}

		frame := p.buf[:idx]
		p.buf = p.buf[idx+len(frameDelimiter):]

		payload, ok := extractData(frame)
		if !ok {
			// No data field — a comment or a stray blank line. Skip.
			continue
		}

		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return events, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		events = append(events, ev)
	}
}

// Buffered reports how many bytes are waiting for their frame delimiter.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// extractData pulls the data payload out of one frame. Multiple data lines
// join with a newline per the SSE grammar; comment lines (":") and other
// fields are ignored. ok is false when the frame carried no data field.
func extractData(frame []byte) (payload []byte, ok bool) {
	for _, line := range bytes.Split(frame, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		value := line[len(dataPrefix):]
		// A single leading space after the colon is part of the framing,
		// not the payload.
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}
		if ok {
			payload = append(payload, '\n')
		}
		payload = append(payload, value...)
		ok = true
	}
	return payload, ok
}

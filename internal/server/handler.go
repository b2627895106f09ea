package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatrelay/chatrelay/internal/catalog"
	"github.com/chatrelay/chatrelay/internal/provider"
	"github.com/chatrelay/chatrelay/internal/session"
	"github.com/chatrelay/chatrelay/internal/store"
	"github.com/chatrelay/chatrelay/internal/stream"
)

// streamRequest is the body of POST /v1/chat/stream: the new user message,
// the ordered prior-turn history, and an optional model override.
type streamRequest struct {
	ConversationID string             `json:"conversation_id"`
	Message        string             `json:"message"`
	History        []provider.Message `json:"history"`
	Model          string             `json:"model"`
}

// abortedCode marks messages persisted after a client-initiated abort.
// It extends the provider taxonomy — the server never sends it on the
// wire, it only lands in the store.
const abortedCode = "ABORTED"

// persistTimeout bounds the terminal store write. The request context is
// usually dead by then (client gone or response finished), so the write
// runs on its own context.
const persistTimeout = 5 * time.Second

// handleHealth responds with a simple liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// handleModels lists the model catalog.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"models":  s.catalog.Models(),
		"default": s.catalog.Default(),
	})
}

// handleChatStream handles POST /v1/chat/stream: it creates the stream
// session, pulls fragments from the provider, and relays them to the
// client as SSE events until exactly one terminal event has been sent.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	// The Accept header selects the streaming format. A client that
	// can't consume an event stream belongs on the non-streaming
	// endpoint, which lives outside this service.
	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		writeJSONError(w, http.StatusNotAcceptable, "NOT_ACCEPTABLE",
			"this endpoint streams text/event-stream responses")
		return
	}

	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "BAD_REQUEST",
			"invalid request body")
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "BAD_REQUEST",
			"message must not be empty")
		return
	}

	model, err := s.catalog.Resolve(req.Model)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownModel) {
			writeJSONError(w, http.StatusBadRequest, "BAD_REQUEST",
				"unknown model: "+req.Model)
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "UNKNOWN",
			"could not resolve model")
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	// ctx is what stops the token producer: it dies when the client
	// disconnects (request context) and when the session is cancelled
	// (explicit cancel handle).
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess, err := s.registry.Start(conversationID, cancel)
	if err != nil {
		// A second stream on an Active conversation is rejected without
		// disturbing the first one.
		writeJSONError(w, http.StatusConflict, "ALREADY_STREAMING",
			"a response is already streaming for this conversation")
		return
	}
	defer s.registry.Release(sess)

	w.Header().Set("X-ChatRelay-Provider", s.provider.Name())

	sw, err := stream.NewWriter(w)
	if err != nil {
		log.Printf("stream setup failed: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "UNKNOWN",
			"streaming is not supported by this server")
		return
	}

	chatReq := &provider.ChatRequest{
		Model:    model,
		Messages: append(append([]provider.Message{}, req.History...), provider.Message{
			Role:    "user",
			Content: req.Message,
		}),
	}

	chunks, err := s.provider.StreamChat(ctx, chatReq)
	if err != nil {
		// Pre-stream failure. The SSE headers may already be on the
		// wire, so the error travels as the stream's terminal event.
		fail := asFailure(err)
		sess.Fail(fail.Code, fail.Message())
		if werr := sw.Send(stream.Error(fail.Code, fail.Message())); werr != nil {
			log.Printf("conversation %s: writing terminal error: %v", conversationID, werr)
		}
		s.persist(sess, model)
		return
	}

	chunks = provider.WithFragmentTimeout(ctx, chunks, s.fragmentTimeout)

	s.pump(ctx, sw, sess, chunks, model)
	s.persist(sess, model)
}

// pump relays chunks to the client until the session reaches a terminal
// state. Exactly one terminal event is written (none on abort — the
// client is gone), and no Token events follow it.
func (s *Server) pump(ctx context.Context, sw *stream.Writer, sess *session.Session, chunks <-chan provider.Chunk, model string) {
	for chunk := range chunks {
		switch {
		case chunk.Err != nil:
			sess.Fail(chunk.Err.Code, chunk.Err.Message())
			log.Printf("conversation %s: stream failed: %v", sess.ConversationID(), chunk.Err)
			if err := sw.Send(stream.Error(chunk.Err.Code, chunk.Err.Message())); err != nil {
				log.Printf("conversation %s: writing terminal error: %v", sess.ConversationID(), err)
			}
			return

		case chunk.Done:
			m := chunk.Model
			if m == "" {
				m = model
			}
			if sess.Complete(m) {
				if err := sw.Send(stream.Complete(m, chunk.TotalTokens)); err != nil {
					log.Printf("conversation %s: writing complete: %v", sess.ConversationID(), err)
				}
			}
			return

		default:
			// A failed append means the session went terminal under us
			// (cancellation racing with a late fragment) — discard.
			if !sess.AppendToken(chunk.Content) {
				return
			}
			if err := sw.Send(stream.Token(chunk.Content)); err != nil {
				// The client connection is gone. Same treatment as an
				// explicit cancel: stop the producer, emit nothing more.
				sess.Cancel()
				return
			}
		}
	}

	// Producer channel closed without a terminal chunk.
	if sess.State() != session.StateActive {
		return
	}
	if ctx.Err() != nil {
		// Client disconnect cancelled the producer mid-stream.
		sess.Cancel()
		return
	}
	fail := provider.NewFailure(provider.CodeConnection, errors.New("provider stream ended unexpectedly"))
	sess.Fail(fail.Code, fail.Message())
	if err := sw.Send(stream.Error(fail.Code, fail.Message())); err != nil {
		log.Printf("conversation %s: writing terminal error: %v", sess.ConversationID(), err)
	}
}

// persist writes the session's outcome to the store — exactly once per
// stream, on any terminal transition. Partial text is preserved on error
// and abort; nothing is silently discarded.
func (s *Server) persist(sess *session.Session, model string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	msg := store.FinishedMessage{
		ID:    sess.ID(),
		Text:  sess.Text(),
		Model: model,
	}

	switch sess.State() {
	case session.StateCompleted:
		msg.Status = store.StatusSent
		if m := sess.Model(); m != "" {
			msg.Model = m
		}
	case session.StateErrored:
		code, _ := sess.Failure()
		msg.Status = store.StatusError
		msg.ErrorCode = string(code)
	case session.StateAborted:
		msg.Status = store.StatusError
		msg.ErrorCode = abortedCode
	default:
		// Not terminal — nothing to persist. Should not happen; the
		// pump always leaves the session terminal.
		log.Printf("conversation %s: session left non-terminal (%s)", sess.ConversationID(), sess.State())
		return
	}

	if err := s.store.AppendFinishedMessage(ctx, sess.ConversationID(), msg); err != nil {
		log.Printf("conversation %s: persisting finished message: %v", sess.ConversationID(), err)
	}
}

// asFailure normalizes any error from the provider boundary into a
// classified Failure.
func asFailure(err error) *provider.Failure {
	var fail *provider.Failure
	if errors.As(err, &fail) {
		return fail
	}
	return provider.NewFailure(provider.CodeUnknown, err)
}

// writeJSONError sends a pre-stream JSON error. Only usable before the SSE
// headers go out.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	})
}

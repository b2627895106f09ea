package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ---------------------------------------------------------------------------
// AnthropicProvider struct + constructor
// ---------------------------------------------------------------------------

// AnthropicProvider implements Provider against Anthropic's Messages API:
// translate the unified ChatRequest into Anthropic's format, make the HTTP
// call with stream: true, and decode the upstream SSE events into Chunks.
type AnthropicProvider struct {
	apiKey  string
	baseURL string // e.g. "https://api.anthropic.com/v1"
	client  *http.Client
}

// NewAnthropicProvider creates an AnthropicProvider ready to make API calls.
// The *http.Client is injected so tests can substitute a replaying client
// and main can configure transport timeouts.
func NewAnthropicProvider(apiKey, baseURL string, client *http.Client) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
	}
}

// Name returns the provider identifier.
func (a *AnthropicProvider) Name() string {
	return "anthropic"
}

// ---------------------------------------------------------------------------
// Anthropic API types (unexported)
// ---------------------------------------------------------------------------

// anthropicRequest is the request body for /v1/messages. Anthropic requires
// max_tokens, and streaming is selected in the body rather than the URL.
type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
	Stream    bool               `json:"stream,omitempty"`
}

// anthropicMessage is one message in the conversation — a flat role/content
// pair, same shape as our unified Message.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Anthropic streams NAMED events, each with its own payload shape:
//
//	event: message_start       → response ID, model, input token count
//	event: content_block_delta → one text fragment (the actual tokens)
//	event: message_delta       → stop_reason and output token count
//	event: message_stop        → stream is done
//
// Every payload carries a "type" field matching the event name, so we can
// ignore the "event:" lines entirely and dispatch on the decoded type.
// Go has no union types, so the wrapper struct holds every possible field
// and irrelevant ones stay zero-valued.
type anthropicStreamEvent struct {
	Type    string                 `json:"type"`
	Message *anthropicEventMessage `json:"message,omitempty"` // message_start
	Delta   *anthropicEventDelta   `json:"delta,omitempty"`   // content_block_delta and message_delta
	Usage   *anthropicUsage        `json:"usage,omitempty"`   // message_delta
}

// anthropicEventMessage is the "message" object inside message_start.
type anthropicEventMessage struct {
	ID    string         `json:"id"`
	Model string         `json:"model"`
	Usage anthropicUsage `json:"usage"` // input_tokens populated, output_tokens 0
}

// anthropicEventDelta carries the text fragment on content_block_delta and
// the stop reason on message_delta.
type anthropicEventDelta struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

// anthropicUsage holds token counts in Anthropic's field names.
type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// anthropicAPIVersion pins the API behavior; Anthropic requires this header
// on every request.
const anthropicAPIVersion = "2023-06-01"

// defaultMaxTokens is sent because Anthropic rejects requests without
// max_tokens. The relay does not expose the knob; one generous value fits
// a chat reply.
const defaultMaxTokens = 4096

// ---------------------------------------------------------------------------
// Streaming: StreamChat
// ---------------------------------------------------------------------------

// StreamChat sends a streaming request to Anthropic's /v1/messages endpoint
// and returns a channel of Chunks.
//
// HTTP POST → goroutine scans upstream SSE lines → Chunks on the channel.
// The goroutine accumulates metadata across events (message_start gives
// model and input tokens, message_delta gives output tokens near the end)
// to build the terminal Done chunk.
func (a *AnthropicProvider) StreamChat(ctx context.Context, req *ChatRequest) (<-chan Chunk, error) {
	upstreamReq := &anthropicRequest{
		Model:     req.Model,
		MaxTokens: defaultMaxTokens,
		Stream:    true,
	}
	for _, msg := range req.Messages {
		upstreamReq.Messages = append(upstreamReq.Messages, anthropicMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	body, err := json.Marshal(upstreamReq)
	if err != nil {
		return nil, NewFailure(CodeUnknown, fmt.Errorf("marshaling request: %w", err))
	}

	url := fmt.Sprintf("%s/messages", a.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFailure(CodeUnknown, fmt.Errorf("creating request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	// No defer Body.Close() on success — the goroutine owns the body and
	// closes it when the stream ends.
	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, NewFailure(ClassifyErr(err), fmt.Errorf("sending request to anthropic: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		// Drain and discard the error body: it is upstream-shaped text
		// that must not leak past this boundary. The status line alone
		// decides the code.
		io.Copy(io.Discard, io.LimitReader(httpResp.Body, 4096))
		httpResp.Body.Close()
		return nil, NewFailure(ClassifyStatus(httpResp.StatusCode),
			fmt.Errorf("anthropic API error: status %d", httpResp.StatusCode))
	}

	ch := make(chan Chunk)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		// Metadata is spread across the stream; remember the pieces for
		// the terminal chunk.
		var (
			model        string
			inputTokens  int
			outputTokens int
		)

		scanner := bufio.NewScanner(httpResp.Body)

		for scanner.Scan() {
			line := scanner.Text()

			// The JSON payload carries its own "type" discriminator, so
			// the "event:" lines add nothing — only data lines matter.
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			jsonData := strings.TrimPrefix(line, "data: ")

			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(jsonData), &event); err != nil {
				send(ctx, ch, Chunk{
					Err: NewFailure(CodeUnknown, fmt.Errorf("decoding anthropic stream event: %w", err)),
				})
				return
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil {
					model = event.Message.Model
					inputTokens = event.Message.Usage.InputTokens
				}

			case "content_block_delta":
				if event.Delta == nil {
					continue
				}
				// Upstreams occasionally emit empty or whitespace-only
				// deltas; those produce no chunk at all.
				if strings.TrimSpace(event.Delta.Text) == "" {
					continue
				}

				if !send(ctx, ch, Chunk{Model: model, Content: event.Delta.Text}) {
					return
				}

			case "message_delta":
				if event.Usage != nil {
					outputTokens = event.Usage.OutputTokens
				}

			case "message_stop":
				send(ctx, ch, Chunk{
					Model:       model,
					Done:        true,
					TotalTokens: inputTokens + outputTokens,
				})
				return

				// content_block_start, content_block_stop, and ping carry
				// nothing we need — skipped.
			}
		}

		if err := scanner.Err(); err != nil {
			send(ctx, ch, Chunk{
				Err: NewFailure(ClassifyErr(err), fmt.Errorf("reading anthropic stream: %w", err)),
			})
		}
	}()

	return ch, nil
}

// send delivers a chunk unless ctx is cancelled first. Returns false when
// the consumer is gone and the producer should stop.
func send(ctx context.Context, ch chan<- Chunk, c Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

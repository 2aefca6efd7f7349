package claude

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/vbonduro/lensfriend/internal/domain"
	"github.com/vbonduro/lensfriend/internal/responder"
)

type ClaudeResponder struct {
	model     string
	maxTokens int
	client    *anthropic.Client
}

// Option configures a ClaudeResponder.
type Option func(*[]anthropic.ClientOption)

// WithBaseURL points the client at a different Messages API endpoint.
func WithBaseURL(url string) Option {
	return func(opts *[]anthropic.ClientOption) {
		*opts = append(*opts, anthropic.WithBaseURL(url))
	}
}

func NewClaudeResponder(apiKey, model string, maxTokens int, opts ...Option) *ClaudeResponder {
	if maxTokens <= 0 {
		maxTokens = responder.DefaultMaxTokens
	}
	clientOpts := []anthropic.ClientOption{anthropic.WithHTTPClient(&http.Client{})}
	for _, opt := range opts {
		opt(&clientOpts)
	}
	return &ClaudeResponder{
		model:     model,
		maxTokens: maxTokens,
		client:    anthropic.NewClient(apiKey, clientOpts...),
	}
}

// buildMessages places every image ahead of the prompt text in a single user turn.
func buildMessages(images []domain.Image, prompt string) []anthropic.Message {
	content := make([]anthropic.MessageContent, 0, len(images)+1)
	for _, img := range images {
		content = append(content, anthropic.NewImageMessageContent(
			anthropic.NewMessageContentSource(
				anthropic.MessagesContentSourceTypeBase64,
				normaliseMIME(img.MimeType),
				base64.StdEncoding.EncodeToString(img.Data),
			),
		))
	}
	content = append(content, anthropic.NewTextMessageContent(prompt))
	return []anthropic.Message{{Role: anthropic.RoleUser, Content: content}}
}

// Respond streams text deltas from the Messages API. The SDK call blocks for
// the lifetime of the stream, so it runs on its own goroutine and any failure,
// including a non-200 status, arrives as an Err event.
func (r *ClaudeResponder) Respond(ctx context.Context, images []domain.Image, prompt string) (<-chan responder.Event, error) {
	req := anthropic.MessagesStreamRequest{
		MessagesRequest: anthropic.MessagesRequest{
			Model:     anthropic.Model(r.model),
			MaxTokens: r.maxTokens,
			Messages:  buildMessages(images, prompt),
		},
	}

	ch := make(chan responder.Event, 16)
	streamCtx, cancel := context.WithCancel(ctx)

	req.OnContentBlockDelta = func(data anthropic.MessagesEventContentBlockDeltaData) {
		if data.Delta.Text == nil || *data.Delta.Text == "" {
			return
		}
		if !responder.Send(streamCtx, ch, responder.Event{Text: *data.Delta.Text}) {
			cancel()
		}
	}

	go func() {
		defer close(ch)
		defer cancel()

		if _, err := r.client.CreateMessagesStream(streamCtx, req); err != nil && ctx.Err() == nil {
			responder.Send(ctx, ch, responder.Event{Err: fmt.Errorf("claude stream failed: %w", err)})
		}
	}()

	return ch, nil
}

// normaliseMIME maps MIME types to the values the Anthropic API accepts.
// Unknown types are coerced to jpeg.
func normaliseMIME(mimeType string) string {
	switch mimeType {
	case "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}

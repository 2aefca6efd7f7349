package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/genai"

	"github.com/vbonduro/lensfriend/internal/domain"
	"github.com/vbonduro/lensfriend/internal/responder"
)

// GeminiResponder streams answers from the Gemini API.
type GeminiResponder struct {
	client    *genai.Client
	model     string
	maxTokens int
	logger    *slog.Logger
}

// NewGeminiResponder creates a client for the Gemini Developer API. baseURL may
// be empty to use the default endpoint.
func NewGeminiResponder(ctx context.Context, apiKey, model, baseURL string, maxTokens int, logger *slog.Logger) (*GeminiResponder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if maxTokens <= 0 {
		maxTokens = responder.DefaultMaxTokens
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{},
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	logger.Debug("gemini client created", "model", model)
	return &GeminiResponder{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}, nil
}

// buildContents places the images, in order, ahead of the prompt in one user turn.
func buildContents(images []domain.Image, prompt string) []*genai.Content {
	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MimeType))
	}
	parts = append(parts, genai.NewPartFromText(prompt))
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

func (r *GeminiResponder) Respond(ctx context.Context, images []domain.Image, prompt string) (<-chan responder.Event, error) {
	if len(images) == 0 {
		return nil, errors.New("at least one image is required")
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(r.maxTokens),
	}
	contents := buildContents(images, prompt)
	r.logger.Debug("gemini request", "model", r.model, "images", len(images))

	ch := make(chan responder.Event, 16)

	go func() {
		defer close(ch)

		for resp, err := range r.client.Models.GenerateContentStream(ctx, r.model, contents, config) {
			if err != nil {
				if ctx.Err() == nil {
					responder.Send(ctx, ch, responder.Event{Err: fmt.Errorf("gemini stream failed: %w", err)})
				}
				return
			}
			if text := responseText(resp); text != "" {
				if !responder.Send(ctx, ch, responder.Event{Text: text}) {
					return
				}
			}
		}
	}()

	return ch, nil
}

// responseText concatenates the non-thought text parts of a chunk without
// calling resp.Text(), which warns on non-text parts.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text string
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Thought {
				continue
			}
			text += part.Text
		}
		// Only the first candidate is shown.
		break
	}
	return text
}

package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vbonduro/lensfriend/internal/domain"
	"github.com/vbonduro/lensfriend/internal/responder"
)

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Images  []string        `json:"images"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

// generateChunk is one newline-delimited JSON object of a streaming response.
type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

type OllamaResponder struct {
	host      string
	model     string
	maxTokens int
	client    *http.Client
}

func NewOllamaResponder(host, model string, maxTokens int) *OllamaResponder {
	if maxTokens <= 0 {
		maxTokens = responder.DefaultMaxTokens
	}
	return &OllamaResponder{
		host:      host,
		model:     model,
		maxTokens: maxTokens,
		client:    &http.Client{},
	}
}

func (r *OllamaResponder) Respond(ctx context.Context, images []domain.Image, prompt string) (<-chan responder.Event, error) {
	encoded := make([]string, 0, len(images))
	for _, img := range images {
		encoded = append(encoded, base64.StdEncoding.EncodeToString(img.Data))
	}

	payload, err := json.Marshal(generateRequest{
		Model:   r.model,
		Prompt:  prompt,
		Images:  encoded,
		Stream:  true,
		Options: generateOptions{NumPredict: r.maxTokens},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call ollama: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, bytes.TrimSpace(errBody))
	}

	ch := make(chan responder.Event, 16)

	go func() {
		defer close(ch)
		defer func() {
			if err := resp.Body.Close(); err != nil {
				slog.Error("failed to close ollama stream body", "error", err)
			}
		}()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var chunk generateChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				responder.Send(ctx, ch, responder.Event{Err: fmt.Errorf("failed to decode ollama chunk: %w", err)})
				return
			}
			if chunk.Error != "" {
				responder.Send(ctx, ch, responder.Event{Err: fmt.Errorf("ollama: %s", chunk.Error)})
				return
			}
			if chunk.Response != "" {
				if !responder.Send(ctx, ch, responder.Event{Text: chunk.Response}) {
					return
				}
			}
			if chunk.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			responder.Send(ctx, ch, responder.Event{Err: fmt.Errorf("read ollama stream: %w", err)})
		}
	}()

	return ch, nil
}

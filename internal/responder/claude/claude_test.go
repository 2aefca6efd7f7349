package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/lensfriend/internal/domain"
	"github.com/vbonduro/lensfriend/internal/responder"
)

var testImages = []domain.Image{
	{ID: "a", Data: []byte{0xFF, 0xD8}, MimeType: "image/jpeg"},
	{ID: "b", Data: []byte{0x89, 0x50}, MimeType: "image/png"},
}

func writeEvent(w http.ResponseWriter, event, data string) {
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func TestClaudeRespondStreamsFragments(t *testing.T) {
	var body struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Stream    bool   `json:"stream"`
		Messages  []struct {
			Role    string `json:"role"`
			Content []struct {
				Type   string `json:"type"`
				Text   string `json:"text"`
				Source *struct {
					Type      string `json:"type"`
					MediaType string `json:"media_type"`
				} `json:"source"`
			} `json:"content"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		_ = json.NewDecoder(r.Body).Decode(&body)

		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, "message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-test","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}}}`)
		writeEvent(w, "content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
		writeEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"A "}}`)
		writeEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"cat"}}`)
		writeEvent(w, "content_block_stop", `{"type":"content_block_stop","index":0}`)
		writeEvent(w, "message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}`)
		writeEvent(w, "message_stop", `{"type":"message_stop"}`)
	}))
	defer server.Close()

	r := NewClaudeResponder("sk-test", "claude-test", 512, WithBaseURL(server.URL))

	ch, err := r.Respond(context.Background(), testImages, "describe")
	require.NoError(t, err)

	answer, err := responder.Collect(ch)
	require.NoError(t, err)
	assert.Equal(t, "A cat", answer)

	assert.Equal(t, "claude-test", body.Model)
	assert.Equal(t, 512, body.MaxTokens)
	assert.True(t, body.Stream)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "user", body.Messages[0].Role)

	content := body.Messages[0].Content
	require.Len(t, content, 3)
	assert.Equal(t, "image", content[0].Type)
	require.NotNil(t, content[0].Source)
	assert.Equal(t, "image/jpeg", content[0].Source.MediaType)
	assert.Equal(t, "image/png", content[1].Source.MediaType)
	assert.Equal(t, "text", content[2].Type)
	assert.Equal(t, "describe", content[2].Text)
}

func TestClaudeRespondAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"rate limited"}}`))
	}))
	defer server.Close()

	r := NewClaudeResponder("sk-test", "claude-test", 0, WithBaseURL(server.URL))

	ch, err := r.Respond(context.Background(), testImages, "describe")
	require.NoError(t, err)

	answer, err := responder.Collect(ch)
	assert.Empty(t, answer)
	assert.Error(t, err)
}

func TestNormaliseMIME(t *testing.T) {
	assert.Equal(t, "image/png", normaliseMIME("image/png"))
	assert.Equal(t, "image/webp", normaliseMIME("image/webp"))
	assert.Equal(t, "image/jpeg", normaliseMIME("image/heic"))
	assert.Equal(t, "image/jpeg", normaliseMIME(""))
}

package whisper

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/lensfriend/internal/speech"
)

func TestWhisperTranscribe(t *testing.T) {
	var path, model, language, filename, auth string
	var audio []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		model = r.FormValue("model")
		language = r.FormValue("language")
		f, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		filename = header.Filename
		audio, _ = io.ReadAll(f)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  what is this plant?  "}`))
	}))
	defer server.Close()

	tr, err := NewWhisperTranscriber("test-key", "", "en", slog.Default(), WithBaseURL(server.URL+"/v1/"))
	require.NoError(t, err)

	text, err := tr.Transcribe(context.Background(), []byte("opus bytes"), "audio/webm;codecs=opus")
	require.NoError(t, err)

	assert.Equal(t, "what is this plant?", text)
	assert.True(t, strings.HasSuffix(path, "/audio/transcriptions"), path)
	assert.Equal(t, "Bearer test-key", auth)
	assert.Equal(t, DefaultModel, model)
	assert.Equal(t, "en", language)
	assert.Equal(t, "voice.webm", filename)
	assert.Equal(t, []byte("opus bytes"), audio)
}

func TestWhisperTranscribeAPIError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
	}))
	defer server.Close()

	tr, err := NewWhisperTranscriber("test-key", "whisper-1", "", slog.Default(), WithBaseURL(server.URL+"/v1/"))
	require.NoError(t, err)

	_, err = tr.Transcribe(context.Background(), []byte("audio"), "audio/wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to transcribe audio")
	assert.Equal(t, int32(1), calls.Load(), "transcription must not be retried")
}

func TestWhisperTranscribeEmptyAudio(t *testing.T) {
	tr, err := NewWhisperTranscriber("test-key", "", "", slog.Default())
	require.NoError(t, err)

	_, err = tr.Transcribe(context.Background(), nil, "audio/webm")
	assert.ErrorIs(t, err, speech.ErrEmptyAudio)
}

func TestNewWhisperTranscriberRequiresKey(t *testing.T) {
	_, err := NewWhisperTranscriber("", "", "", slog.Default())
	assert.Error(t, err)
}

func TestAudioExt(t *testing.T) {
	tests := []struct {
		mimeType string
		want     string
	}{
		{"audio/webm;codecs=opus", ".webm"},
		{"audio/ogg", ".ogg"},
		{"audio/x-wav", ".wav"},
		{"audio/mpeg", ".mp3"},
		{"audio/mp4", ".m4a"},
		{"", ".webm"},
	}
	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			assert.Equal(t, tt.want, audioExt(baseMediaType(tt.mimeType)))
		})
	}
}

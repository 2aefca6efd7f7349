package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/vbonduro/lensfriend/internal/speech"
)

const DefaultModel = "whisper-1"

// WhisperTranscriber sends recordings to the OpenAI transcription endpoint.
type WhisperTranscriber struct {
	client   openai.Client
	model    string
	language string
	logger   *slog.Logger
}

type Option func(*[]option.RequestOption)

// WithBaseURL points the client at a different API root, for proxies and tests.
func WithBaseURL(url string) Option {
	return func(opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithBaseURL(url))
	}
}

// NewWhisperTranscriber creates a transcriber. language is an optional ISO-639-1
// hint such as "en".
func NewWhisperTranscriber(apiKey, model, language string, logger *slog.Logger, opts ...Option) (*WhisperTranscriber, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	requestOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	for _, opt := range opts {
		opt(&requestOpts)
	}

	return &WhisperTranscriber{
		client:   openai.NewClient(requestOpts...),
		model:    model,
		language: language,
		logger:   logger,
	}, nil
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", speech.ErrEmptyAudio
	}

	mediaType := baseMediaType(mimeType)
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), "voice"+audioExt(mediaType), mediaType),
		Model: openai.AudioModel(w.model),
	}
	if w.language != "" {
		params.Language = openai.String(w.language)
	}

	w.logger.Debug("transcribing voice prompt", "model", w.model, "bytes", len(audio), "mime_type", mediaType)
	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func baseMediaType(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil || mediaType == "" {
		return "audio/webm"
	}
	return mediaType
}

func audioExt(mediaType string) string {
	switch mediaType {
	case "audio/ogg":
		return ".ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/flac":
		return ".flac"
	default:
		return ".webm"
	}
}

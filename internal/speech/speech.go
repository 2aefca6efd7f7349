// Package speech turns recorded voice prompts into text.
package speech

import (
	"context"
	"errors"
)

var (
	ErrSpeechUnavailable = errors.New("speech recognition is not configured on the server")
	ErrEmptyAudio        = errors.New("audio data is empty")
)

// Transcriber converts a recording into text. An empty transcript with a nil
// error means nothing was recognised.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Unavailable is used when no speech backend is configured. Clients can still
// send transcripts they recognised themselves.
type Unavailable struct{}

func (Unavailable) Transcribe(context.Context, []byte, string) (string, error) {
	return "", ErrSpeechUnavailable
}

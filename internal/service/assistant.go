package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vbonduro/lensfriend/internal/capture"
	"github.com/vbonduro/lensfriend/internal/domain"
	"github.com/vbonduro/lensfriend/internal/imaging"
	"github.com/vbonduro/lensfriend/internal/metrics"
	"github.com/vbonduro/lensfriend/internal/session"
	"github.com/vbonduro/lensfriend/internal/speech"
)

var (
	ErrInvalidFrame  = errors.New("invalid frame")
	ErrCaptureFailed = errors.New("capture failed")
	ErrSpeechFailed  = errors.New("speech recognition failed")
)

const DefaultCaptureTimeout = 10 * time.Second

// recorder is the subset of metrics.Metrics that Assistant reports to.
type recorder interface {
	ObserveCapture(source string, err error)
	ObservePrompt(err error)
	ObserveTranscription(transcript string, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCapture(string, error)       {}
func (nopRecorder) ObservePrompt(error)                {}
func (nopRecorder) ObserveTranscription(string, error) {}

type Options struct {
	Imaging        imaging.Options
	CaptureTimeout time.Duration
	// DefaultFacing is used when a capture request names no lens.
	DefaultFacing domain.Facing
}

// Assistant runs the gestures of the camera screen against a session: capture,
// voice and text prompts, thumbnail removal and reset.
type Assistant struct {
	sessions    *session.Manager
	capturer    capture.Capturer
	transcriber speech.Transcriber
	recorder    recorder
	opts        Options
	logger      *slog.Logger
}

func NewAssistant(
	sessions *session.Manager,
	capturer capture.Capturer,
	transcriber speech.Transcriber,
	rec recorder,
	opts Options,
	logger *slog.Logger,
) *Assistant {
	if capturer == nil {
		capturer = capture.NoCamera{}
	}
	if transcriber == nil {
		transcriber = speech.Unavailable{}
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = DefaultCaptureTimeout
	}
	if opts.DefaultFacing == "" {
		opts.DefaultFacing = domain.FacingBack
	}
	if opts.Imaging == (imaging.Options{}) {
		opts.Imaging = imaging.DefaultOptions()
	}
	return &Assistant{
		sessions:    sessions,
		capturer:    capturer,
		transcriber: transcriber,
		recorder:    rec,
		opts:        opts,
		logger:      logger,
	}
}

func (a *Assistant) CreateSession() (session.Snapshot, error) {
	s, err := a.sessions.Create()
	if err != nil {
		return session.Snapshot{}, err
	}
	return s.Snapshot(), nil
}

func (a *Assistant) CloseSession(id string) error {
	return a.sessions.Close(id)
}

func (a *Assistant) Snapshot(id string) (session.Snapshot, error) {
	s, err := a.sessions.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// Subscribe follows a session's snapshots until cancel is called or the
// session closes.
func (a *Assistant) Subscribe(id string) (<-chan session.Snapshot, func(), error) {
	s, err := a.sessions.Get(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.Subscribe()
	return ch, cancel, nil
}

func (a *Assistant) Image(id, imageID string) (domain.Image, error) {
	s, err := a.sessions.Get(id)
	if err != nil {
		return domain.Image{}, err
	}
	return s.Image(imageID)
}

// AddFrame normalises a client-supplied frame and appends it. A session that
// already holds an answer or error is reset first.
func (a *Assistant) AddFrame(ctx context.Context, id string, frame domain.Frame) (domain.Image, error) {
	s, err := a.sessions.Get(id)
	if err != nil {
		return domain.Image{}, err
	}

	img, err := imaging.Normalize(frame, a.opts.Imaging)
	if err != nil {
		a.recorder.ObserveCapture(metrics.SourceUpload, err)
		return domain.Image{}, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}

	err = a.addImage(s, img)
	a.recorder.ObserveCapture(metrics.SourceUpload, err)
	if err != nil {
		return domain.Image{}, err
	}
	a.logger.Info("frame added", "session_id", id, "image_id", img.ID, "width", img.Width, "height", img.Height)
	return img, nil
}

// Capture takes a still with the server-side camera and appends it. A failed
// capture leaves the session untouched; the error goes back to the caller only.
func (a *Assistant) Capture(ctx context.Context, id string, facing domain.Facing) (domain.Image, error) {
	s, err := a.sessions.Get(id)
	if err != nil {
		return domain.Image{}, err
	}
	if s.Snapshot().InProgress {
		return domain.Image{}, session.ErrResponding
	}
	return a.capture(ctx, s, facing)
}

func (a *Assistant) capture(ctx context.Context, s *session.Session, facing domain.Facing) (domain.Image, error) {
	if facing == "" {
		facing = a.opts.DefaultFacing
	}

	captureCtx, cancel := context.WithTimeout(ctx, a.opts.CaptureTimeout)
	defer cancel()

	frame, err := a.capturer.Capture(captureCtx, facing)
	if err != nil {
		a.recorder.ObserveCapture(metrics.SourceServer, err)
		a.logger.Error("capture failed", "session_id", s.ID(), "facing", facing, "error", err)
		return domain.Image{}, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}

	img, err := imaging.Normalize(*frame, a.opts.Imaging)
	if err != nil {
		a.recorder.ObserveCapture(metrics.SourceServer, err)
		a.logger.Error("captured frame unusable", "session_id", s.ID(), "error", err)
		return domain.Image{}, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}

	err = a.addImage(s, img)
	a.recorder.ObserveCapture(metrics.SourceServer, err)
	if err != nil {
		return domain.Image{}, err
	}
	a.logger.Info("frame captured", "session_id", s.ID(), "image_id", img.ID, "facing", facing)
	return img, nil
}

func (a *Assistant) addImage(s *session.Session, img domain.Image) error {
	if s.ResetIfSettled() {
		a.logger.Info("previous turn cleared by capture", "session_id", s.ID())
	}
	return s.AddImage(img)
}

func (a *Assistant) RemoveImage(id, imageID string) error {
	s, err := a.sessions.Get(id)
	if err != nil {
		return err
	}
	return s.RemoveImage(imageID)
}

func (a *Assistant) SubmitPrompt(ctx context.Context, id, text string) error {
	s, err := a.sessions.Get(id)
	if err != nil {
		return err
	}
	err = s.SubmitPrompt(ctx, text)
	a.recorder.ObservePrompt(err)
	if err != nil {
		a.logger.Info("prompt rejected", "session_id", id, "reason", err)
		return err
	}
	return nil
}

func (a *Assistant) Reset(id string) error {
	s, err := a.sessions.Get(id)
	if err != nil {
		return err
	}
	s.Reset()
	a.logger.Info("session reset", "session_id", id)
	return nil
}

// Voice transcribes a recorded prompt and runs it. It returns the transcript,
// which is empty when nothing was recognised.
func (a *Assistant) Voice(ctx context.Context, id string, audio []byte, mimeType string) (string, error) {
	if _, err := a.sessions.Get(id); err != nil {
		return "", err
	}

	transcript, err := a.transcriber.Transcribe(ctx, audio, mimeType)
	a.recorder.ObserveTranscription(transcript, err)
	if err != nil {
		a.logger.Error("transcription failed", "session_id", id, "error", err)
		return "", fmt.Errorf("%w: %w", ErrSpeechFailed, err)
	}
	return transcript, a.VoiceTranscript(ctx, id, transcript)
}

// VoiceTranscript runs a recognised voice prompt. An empty transcript does
// nothing. A finished turn is cleared first, and when no image has been
// captured yet one is taken before the prompt is submitted.
func (a *Assistant) VoiceTranscript(ctx context.Context, id, transcript string) error {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil
	}

	s, err := a.sessions.Get(id)
	if err != nil {
		return err
	}

	s.ResetIfSettled()
	if err := s.SetPrompt(transcript); err != nil {
		return err
	}

	if len(s.Snapshot().Images) == 0 {
		a.logger.Info("voice prompt without images, capturing", "session_id", id)
		if _, err := a.capture(ctx, s, ""); err != nil {
			return err
		}
	}

	err = s.SubmitPrompt(ctx, transcript)
	a.recorder.ObservePrompt(err)
	return err
}

// Wait blocks until the session has no response in progress.
func (a *Assistant) Wait(ctx context.Context, id string) error {
	s, err := a.sessions.Get(id)
	if err != nil {
		return err
	}
	return s.Wait(ctx)
}

// Package session holds the state of one capture/prompt/answer conversation
// turn and mediates every transition between idle, responding, answered and
// errored.
//
// All mutation happens under a single mutex, so no two streamed fragments are
// ever applied concurrently and observers never see a partially-applied
// change. A response runs on its own goroutine with a session-owned context;
// Reset and Close cancel it and bump a generation counter so fragments that
// race in afterwards are dropped.
package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vbonduro/lensfriend/internal/domain"
	"github.com/vbonduro/lensfriend/internal/responder"
)

var (
	ErrBlankPrompt   = errors.New("prompt is blank")
	ErrNoImages      = errors.New("no images captured")
	ErrResponding    = errors.New("a response is already in progress")
	ErrAnswerPresent = errors.New("session already holds an answer, reset first")
	ErrImageNotFound = errors.New("image not found")
	ErrClosed        = errors.New("session closed")
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusResponding Status = "responding"
	StatusAnswered   Status = "answered"
	StatusErrored    Status = "errored"
)

// Snapshot is a consistent copy of a session's observable state. Image data
// slices are shared, never mutated.
type Snapshot struct {
	ID         string
	Version    uint64
	Status     Status
	Images     []domain.Image
	Prompt     string
	InProgress bool
	Answer     string
	Err        string
	UpdatedAt  time.Time
}

// Hooks receive notifications for instrumentation. Nil funcs are skipped.
type Hooks struct {
	Fragment         func()
	ResponseFinished func(err error, elapsed time.Duration)
	SessionCount     func(n int)
}

type Session struct {
	id        string
	responder responder.Responder
	logger    *slog.Logger
	hooks     Hooks

	mu         sync.Mutex
	images     []domain.Image
	prompt     string
	inProgress bool
	completed  bool
	answer     strings.Builder
	lastErr    string
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	version    uint64
	updatedAt  time.Time
	lastActive time.Time
	closed     bool
	subs       map[uint64]chan Snapshot
	nextSub    uint64
}

func New(id string, r responder.Responder, logger *slog.Logger, hooks Hooks) *Session {
	now := time.Now()
	return &Session{
		id:         id,
		responder:  r,
		logger:     logger.With("session_id", id),
		hooks:      hooks,
		updatedAt:  now,
		lastActive: now,
		subs:       make(map[uint64]chan Snapshot),
	}
}

func (s *Session) ID() string { return s.id }

// AddImage appends img. Images are frozen while a response is in progress and
// once an answer or error is present.
func (s *Session) AddImage(img domain.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMutableLocked(); err != nil {
		return err
	}
	s.images = append(s.images, img)
	s.publishLocked()
	s.logger.Debug("image added", "image_id", img.ID, "images", len(s.images))
	return nil
}

// RemoveImage removes the first image with the given ID.
func (s *Session) RemoveImage(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMutableLocked(); err != nil {
		return err
	}
	idx := slices.IndexFunc(s.images, func(img domain.Image) bool { return img.ID == id })
	if idx < 0 {
		return ErrImageNotFound
	}
	s.images = slices.Delete(s.images, idx, idx+1)
	s.publishLocked()
	s.logger.Debug("image removed", "image_id", id, "images", len(s.images))
	return nil
}

// Image returns the image with the given ID.
func (s *Session) Image(id string) (domain.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = time.Now()
	for _, img := range s.images {
		if img.ID == id {
			return img, nil
		}
	}
	return domain.Image{}, ErrImageNotFound
}

// SetPrompt records the prompt text currently entered by the user.
func (s *Session) SetPrompt(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.inProgress {
		return ErrResponding
	}
	s.prompt = text
	s.publishLocked()
	return nil
}

// SubmitPrompt starts streaming an answer for the current images. It returns
// once the response has been started; use Wait or Subscribe to follow it.
// A rejected submit changes nothing and never calls the responder.
//
// ctx supplies values only: the response outlives the caller's request and is
// cancelled by Reset or Close.
func (s *Session) SubmitPrompt(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return ErrClosed
	case s.inProgress:
		return ErrResponding
	case strings.TrimSpace(text) == "":
		return ErrBlankPrompt
	case len(s.images) == 0:
		return ErrNoImages
	}

	images := slices.Clone(s.images)
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.generation++
	s.cancel = cancel
	s.done = make(chan struct{})
	s.inProgress = true
	s.completed = false
	s.prompt = text
	s.answer.Reset()
	s.lastErr = ""
	s.publishLocked()

	s.logger.Info("response started", "images", len(images))
	go s.stream(streamCtx, cancel, s.generation, s.done, images, text)
	return nil
}

func (s *Session) stream(ctx context.Context, cancel context.CancelFunc, gen uint64, done chan struct{}, images []domain.Image, prompt string) {
	defer close(done)
	defer cancel()

	start := time.Now()
	ch, err := s.responder.Respond(ctx, images, prompt)
	if err != nil {
		s.finish(gen, err, start)
		return
	}

	for ev := range ch {
		if ev.Err != nil {
			s.finish(gen, ev.Err, start)
			return
		}
		if !s.appendFragment(gen, ev.Text) {
			return
		}
	}
	s.finish(gen, nil, start)
}

// appendFragment reports false when the stream has been superseded.
func (s *Session) appendFragment(gen uint64, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || !s.inProgress {
		return false
	}
	if text == "" {
		return true
	}
	s.answer.WriteString(text)
	s.publishLocked()
	if s.hooks.Fragment != nil {
		s.hooks.Fragment()
	}
	return true
}

func (s *Session) finish(gen uint64, err error, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || !s.inProgress {
		return
	}
	s.inProgress = false
	s.cancel = nil
	s.done = nil
	elapsed := time.Since(start)
	if err != nil {
		s.lastErr = err.Error()
		s.logger.Error("response failed", "error", err, "duration_ms", elapsed.Milliseconds())
	} else {
		s.completed = true
		s.logger.Info("response complete", "chars", s.answer.Len(), "duration_ms", elapsed.Milliseconds())
	}
	s.publishLocked()
	if s.hooks.ResponseFinished != nil {
		s.hooks.ResponseFinished(err, elapsed)
	}
}

// Reset clears images, prompt, answer and error in one step and cancels any
// in-flight response.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.inProgress {
		s.logger.Info("reset cancelled in-flight response")
	}
	s.clearLocked()
	s.publishLocked()
}

// ResetIfSettled resets the session only when it holds an answer or an error,
// and reports whether it did. A capture gesture on a finished turn starts a
// new one.
func (s *Session) ResetIfSettled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.inProgress || (!s.completed && s.lastErr == "") {
		return false
	}
	s.clearLocked()
	s.publishLocked()
	s.logger.Debug("settled session reset for a new turn")
	return true
}

// Wait blocks until no response is in progress or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	return s.snapshotLocked()
}

// Subscribe returns a channel that receives the current snapshot immediately
// and the latest snapshot after every mutation. A slow reader may miss
// intermediate snapshots but always ends up with the newest one. The channel
// is closed by cancel or when the session closes.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- s.snapshotLocked()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.lastActive = time.Now()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
			s.lastActive = time.Now()
		})
	}
}

// Close tears the session down: the in-flight response is cancelled and every
// observer channel is closed. Further mutations return ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.clearLocked()
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.logger.Debug("session closed")
}

// idleSince reports whether the session has had no activity, no observers and
// no response in flight since t.
func (s *Session) idleSince(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.inProgress && len(s.subs) == 0 && s.lastActive.Before(t)
}

func (s *Session) checkMutableLocked() error {
	switch {
	case s.closed:
		return ErrClosed
	case s.inProgress:
		return ErrResponding
	case s.completed || s.lastErr != "":
		return ErrAnswerPresent
	}
	return nil
}

func (s *Session) clearLocked() {
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	s.cancel = nil
	s.done = nil
	s.inProgress = false
	s.completed = false
	s.images = nil
	s.prompt = ""
	s.answer.Reset()
	s.lastErr = ""
}

func (s *Session) statusLocked() Status {
	switch {
	case s.inProgress:
		return StatusResponding
	case s.lastErr != "":
		return StatusErrored
	case s.completed:
		return StatusAnswered
	default:
		return StatusIdle
	}
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:         s.id,
		Version:    s.version,
		Status:     s.statusLocked(),
		Images:     slices.Clone(s.images),
		Prompt:     s.prompt,
		InProgress: s.inProgress,
		Answer:     s.answer.String(),
		Err:        s.lastErr,
		UpdatedAt:  s.updatedAt,
	}
}

func (s *Session) publishLocked() {
	now := time.Now()
	s.version++
	s.updatedAt = now
	s.lastActive = now
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Replace the stale snapshot the reader has not picked up yet.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

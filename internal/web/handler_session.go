package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vbonduro/lensfriend/internal/domain"
	"github.com/vbonduro/lensfriend/internal/imaging"
	"github.com/vbonduro/lensfriend/internal/service"
	"github.com/vbonduro/lensfriend/internal/session"
	"github.com/vbonduro/lensfriend/internal/speech"
)

const maxJSONBody = 64 * 1024

type imageView struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CapturedAt time.Time `json:"captured_at"`
}

type sessionView struct {
	ID         string      `json:"id"`
	Version    uint64      `json:"version"`
	Status     string      `json:"status"`
	Images     []imageView `json:"images"`
	Prompt     string      `json:"prompt"`
	InProgress bool        `json:"in_progress"`
	Answer     string      `json:"answer"`
	Error      string      `json:"error,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func newImageView(sessionID string, img domain.Image) imageView {
	return imageView{
		ID:         img.ID,
		URL:        fmt.Sprintf("/api/sessions/%s/images/%s", sessionID, img.ID),
		Width:      img.Width,
		Height:     img.Height,
		CapturedAt: img.CapturedAt,
	}
}

func newSessionView(snap session.Snapshot) sessionView {
	images := make([]imageView, 0, len(snap.Images))
	for _, img := range snap.Images {
		images = append(images, newImageView(snap.ID, img))
	}
	return sessionView{
		ID:         snap.ID,
		Version:    snap.Version,
		Status:     string(snap.Status),
		Images:     images,
		Prompt:     snap.Prompt,
		InProgress: snap.InProgress,
		Answer:     snap.Answer,
		Error:      snap.Err,
		UpdatedAt:  snap.UpdatedAt,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write json response failed", "error", err)
	}
}

// writeError maps service and session errors onto HTTP statuses. The message
// is shown to the user as-is.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrImageNotFound),
		errors.Is(err, session.ErrClosed):
		return http.StatusNotFound
	case errors.Is(err, session.ErrTooManySessions):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrResponding),
		errors.Is(err, session.ErrAnswerPresent),
		errors.Is(err, session.ErrNoImages):
		return http.StatusConflict
	case errors.Is(err, session.ErrBlankPrompt),
		errors.Is(err, service.ErrInvalidFrame),
		errors.Is(err, imaging.ErrImageTooLarge),
		errors.Is(err, speech.ErrEmptyAudio):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrCaptureFailed),
		errors.Is(err, service.ErrSpeechFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.CreateSession()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newSessionView(snap))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Snapshot(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newSessionView(snap))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CloseSession(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Reset(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type promptRequest struct {
	Text string `json:"text"`
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req promptRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid prompt body"})
		return
	}

	if err := s.service.SubmitPrompt(r.Context(), id, req.Text); err != nil {
		s.writeError(w, r, err)
		return
	}

	snap, err := s.service.Snapshot(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, newSessionView(snap))
}

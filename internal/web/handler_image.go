package web

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/vbonduro/lensfriend/internal/domain"
)

const maxFrameSize = 20 * 1024 * 1024 // 20 MB

// allowedImageTypes is the set of MIME types accepted for uploaded frames.
// net/http.DetectContentType handles JPEG, PNG, and GIF via magic-byte
// sniffing. WebP is detected separately because the WHATWG sniffing algorithm (and
// therefore the stdlib) does not include a WebP signature.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// allowedImageMIME returns the detected MIME type and true if the data is an
// accepted image format, or ("", false) otherwise.
func allowedImageMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

// handleUploadImage accepts a frame captured by the client camera. The form
// carries the "image" file, the sensor "rotation" in degrees and the lens
// "facing".
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	r.Body = http.MaxBytesReader(w, r.Body, maxFrameSize+1024*1024)
	if err := r.ParseMultipartForm(maxFrameSize); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to parse form"})
		return
	}

	rotation := 0
	if v := r.FormValue("rotation"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid rotation"})
			return
		}
		rotation = n
	}

	facing, err := domain.ParseFacing(r.FormValue("facing"), domain.FacingBack)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image file required"})
		return
	}
	defer closeWithLog(file, "upload file", s.logger)

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read file"})
		s.logger.Error("read upload failed", "session_id", id, "error", err)
		return
	}

	mimeType, ok := allowedImageMIME(data)
	if !ok {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported image format"})
		return
	}

	img, err := s.service.AddFrame(r.Context(), id, domain.Frame{
		Data:            data,
		MimeType:        mimeType,
		RotationDegrees: rotation,
		Facing:          facing,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newImageView(id, img))
}

// handleCapture triggers the server-side camera.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	facing, err := domain.ParseFacing(r.URL.Query().Get("facing"), "")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	img, err := s.service.Capture(r.Context(), id, facing)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newImageView(id, img))
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	img, err := s.service.Image(r.PathValue("id"), r.PathValue("imageID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", img.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	// Image IDs are never reused, so the bytes behind a URL never change.
	w.Header().Set("Cache-Control", "private, max-age=3600, immutable")
	if _, err := w.Write(img.Data); err != nil {
		s.logger.Error("write image failed", "image_id", img.ID, "error", err)
	}
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RemoveImage(r.PathValue("id"), r.PathValue("imageID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}

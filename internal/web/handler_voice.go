package web

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
)

const maxAudioSize = 10 * 1024 * 1024 // 10 MB

type voiceRequest struct {
	Transcript string `json:"transcript"`
}

type voiceResponse struct {
	Transcript string      `json:"transcript"`
	Session    sessionView `json:"session"`
}

// handleVoice runs a voice prompt. Clients that recognise speech themselves
// post JSON {"transcript": "..."}; others upload the recording as the "audio"
// multipart field and the server transcribes it.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var transcript string
	var err error
	switch mediaType {
	case "application/json":
		var req voiceRequest
		if derr := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); derr != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid voice body"})
			return
		}
		transcript = req.Transcript
		err = s.service.VoiceTranscript(r.Context(), id, transcript)

	case "multipart/form-data":
		audio, audioType, ok := s.readAudio(w, r)
		if !ok {
			return
		}
		transcript, err = s.service.Voice(r.Context(), id, audio, audioType)

	default:
		s.writeJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "expected JSON transcript or multipart audio"})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	snap, err := s.service.Snapshot(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, voiceResponse{Transcript: transcript, Session: newSessionView(snap)})
}

// readAudio extracts the "audio" form file. It writes the error response
// itself and reports false on failure.
func (s *Server) readAudio(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioSize+1024*1024)
	if err := r.ParseMultipartForm(maxAudioSize); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to parse form"})
		return nil, "", false
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "audio file required"})
		return nil, "", false
	}
	defer closeWithLog(file, "audio file", s.logger)

	audio, err := io.ReadAll(file)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read audio"})
		s.logger.Error("read audio failed", "error", err)
		return nil, "", false
	}

	audioType := header.Header.Get("Content-Type")
	if audioType == "" || audioType == "application/octet-stream" {
		audioType = http.DetectContentType(audio)
	}
	return audio, audioType, true
}

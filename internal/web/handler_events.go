package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vbonduro/lensfriend/internal/domain"
)

const wsWriteTimeout = 10 * time.Second

// Commands are small JSON objects; anything larger closes the socket.
const wsReadLimit = maxJSONBody

// CheckOrigin is left nil so only same-origin pages may connect.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// handleEvents streams session snapshots as server-sent events. Each event
// carries the full session JSON; a slow client skips intermediate snapshots
// but always receives the latest. The stream ends with a "closed" event when
// the session is torn down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	updates, cancel, err := s.service.Subscribe(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	gauge := s.metrics.StreamsActive.WithLabelValues("sse")
	gauge.Inc()
	defer gauge.Dec()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				if _, err := w.Write([]byte("event: closed\ndata: {}\n\n")); err != nil {
					s.logger.Error("write closed event failed", "session_id", id, "error", err)
				}
				_ = rc.Flush()
				return
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if err := enc.Encode(newSessionView(snap)); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// wsCommand is a gesture sent by the client over the websocket.
type wsCommand struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	ImageID string `json:"image_id,omitempty"`
	Facing  string `json:"facing,omitempty"`
}

type wsMessage struct {
	Type    string       `json:"type"`
	Session *sessionView `json:"session,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// wsConn serialises writes; gorilla connections allow one writer at a time.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg wsMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// handleWebSocket pushes the same snapshots as handleEvents and accepts
// gestures (prompt, voice, capture, remove, reset, ping) on the same socket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	updates, cancel, err := s.service.Subscribe(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "session_id", id, "error", err)
		return
	}
	defer closeWithLog(conn, "websocket", s.logger)
	conn.SetReadLimit(wsReadLimit)

	gauge := s.metrics.StreamsActive.WithLabelValues("websocket")
	gauge.Inc()
	defer gauge.Dec()

	ws := &wsConn{conn: conn}
	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	go func() {
		defer stop()
		s.readCommands(ctx, ws, id)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				_ = ws.send(wsMessage{Type: "closed"})
				return
			}
			view := newSessionView(snap)
			if err := ws.send(wsMessage{Type: "snapshot", Session: &view}); err != nil {
				return
			}
		}
	}
}

func (s *Server) readCommands(ctx context.Context, ws *wsConn, id string) {
	for {
		var cmd wsCommand
		if err := ws.conn.ReadJSON(&cmd); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "session_id", id, "error", err)
			}
			return
		}

		if err := s.dispatch(ctx, ws, id, cmd); err != nil {
			if serr := ws.send(wsMessage{Type: "error", Error: err.Error()}); serr != nil {
				return
			}
		}
	}
}

func (s *Server) dispatch(ctx context.Context, ws *wsConn, id string, cmd wsCommand) error {
	switch cmd.Type {
	case "prompt":
		return s.service.SubmitPrompt(ctx, id, cmd.Text)
	case "voice":
		return s.service.VoiceTranscript(ctx, id, cmd.Text)
	case "capture":
		facing, err := domain.ParseFacing(cmd.Facing, "")
		if err != nil {
			return err
		}
		_, err = s.service.Capture(ctx, id, facing)
		return err
	case "remove":
		return s.service.RemoveImage(id, cmd.ImageID)
	case "reset":
		return s.service.Reset(id)
	case "ping":
		return ws.send(wsMessage{Type: "pong"})
	default:
		return errors.New("unknown command type")
	}
}

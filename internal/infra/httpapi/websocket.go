package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Salako07/WKL/internal/infra/wire"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type   string       `json:"type"`
	Run    *wire.Run    `json:"run,omitempty"`
	Result *wire.Result `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// handleWatch pushes the current run status, then the terminal result once
// the run settles.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	done, err := s.engine.Watch(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("run_id", id).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	run, err := s.engine.Status(ctx, id)
	if err != nil {
		wsWriteJSON(conn, wsOutgoing{Type: "error", Error: err.Error()})
		return
	}
	doc := runDocument(run)
	if err := wsWriteJSON(conn, wsOutgoing{Type: "status", Run: &doc}); err != nil {
		return
	}

	// The read loop only notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-gone:
		return
	case <-ctx.Done():
		return
	}

	result, err := s.engine.Result(ctx, id)
	if err != nil {
		wsWriteJSON(conn, wsOutgoing{Type: "error", Error: err.Error()})
		return
	}
	if err := wsWriteJSON(conn, wsOutgoing{Type: "result", Result: wire.FromResult(result.Redacted())}); err != nil {
		return
	}

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run settled"),
		time.Now().Add(wsWriteTimeout),
	)
}

func wsWriteJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}

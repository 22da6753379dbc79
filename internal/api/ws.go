package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsWriteTimeout bounds each WebSocket write so one stalled client
// cannot pin the handler goroutine.
const wsWriteTimeout = 10 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API binds to trusted networks; origin checks belong to a
	// fronting proxy if one is deployed.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEventsWS streams bus events to a WebSocket client as JSON, one
// event per message, until the client disconnects or the server shuts
// down. Slow clients miss events rather than applying backpressure to
// publishers (the bus drops on full buffers).
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		s.errorResponse(w, http.StatusNotFound, "event stream not enabled")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.bus.Subscribe(64)
	defer s.bus.Unsubscribe(ch)

	s.logger.Debug("event stream client connected", "remote", r.RemoteAddr)

	// Drain client frames so pings and close messages are processed;
	// the payloads themselves are ignored.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				s.logger.Debug("event stream write failed", "error", err)
				return
			}
		}
	}
}

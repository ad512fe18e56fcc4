package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the deadline for a single outbound write
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong before the read fails
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The relay is unauthenticated and the browser client may be
		// served from anywhere; accept all origins.
		return true
	},
}

// HandleWebSocket upgrades an HTTP request and runs the connection
// lifecycle: register session, replay history, dispatch inbound frames,
// and clean up exactly once on close.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	ws.SetReadLimit(s.config.MaxMessageBytes)

	sess := s.sessions.CreateSession(ws)
	log.Printf("New connection from %s (session %d)", ws.RemoteAddr(), sess.ID)

	// Queue the history replay before the session joins the fanout
	// set: the send queue is FIFO, so everything broadcast after
	// registration lands behind the replay.
	s.admitSession(sess)

	go s.writePump(sess)
	s.readLoop(sess)
}

// readLoop reads frames until the connection fails, then performs the
// single disconnect cleanup. Session removal is idempotent, so a racing
// shutdown path is harmless.
func (s *Server) readLoop(sess *Session) {
	defer func() {
		log.Printf("Session %d disconnected", sess.ID)
		s.sessions.Remove(sess.ID)
	}()

	sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Session %d read error: %v", sess.ID, err)
			}
			return
		}
		s.dispatchFrame(sess, data)
	}
}

// writePump owns all writes to the connection. It drains the session's
// send queue and keeps the connection alive with periodic pings.
func (s *Server) writePump(sess *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sess.close()
	}()

	for {
		select {
		case <-sess.done:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			sess.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case payload := <-sess.send:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				debugLog.Printf("Session %d write error: %v", sess.ID, err)
				return
			}

		case <-ticker.C:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				debugLog.Printf("Session %d ping error: %v", sess.ID, err)
				return
			}
		}
	}
}

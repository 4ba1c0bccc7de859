// WebSocket variant of the check stream

package server

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veribrand/brandgate/agent"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// same-origin policy is the proxy's job in this deployment
	CheckOrigin: func(_ *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// handleCheckWS streams one check over a WebSocket: the client sends a
// single CheckRequest, receives every StreamEvent as a JSON message, and
// the connection closes after the terminal event.
func (s *Server) handleCheckWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WARN] ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var req CheckRequest
	if err := conn.ReadJSON(&req); err != nil {
		writeWSError(conn, "invalid check request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeWSError(conn, "prompt is required")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// reader goroutine detects client close and cancels the loop
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	emitter := agent.NewEmitter(s.cfg.EventQueueSize)
	go func() {
		s.loop.Run(ctx, toAgentRequest(req), emitter)
		emitter.Close()
	}()

	for ev := range emitter.Events() {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			log.Printf("[Server] ws write failed, cancelling check: %v", err)
			cancel()
			// drain so the loop is not blocked on a full queue
			for range emitter.Events() {
			}
			return
		}
	}

	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "check finished"))
}

func writeWSError(conn *websocket.Conn, msg string) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteJSON(agent.StreamEvent{Type: agent.EventError, Content: msg})
}

package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/lingo-labs/internal/protocol"
	"github.com/coder/websocket"
)

// writeTimeout bounds each outbound frame write.
const writeTimeout = 10 * time.Second

// conn wraps a WebSocket connection with a write lock so the turn
// pipeline, the quiz timer, and the opening-line goroutine can all send
// without interleaving frames.
type conn struct {
	ws        *websocket.Conn
	sessionID string
	writeMu   sync.Mutex
}

func newConn(ws *websocket.Conn, sessionID string) *conn {
	return &conn{ws: ws, sessionID: sessionID}
}

// sendJSON marshals v and writes it as one text frame. Write failures
// are logged, not returned; a dead connection surfaces in the read
// loop, which owns teardown.
func (c *conn) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal outbound message", "error", err, "session_id", c.sessionID)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Warn("Failed to write message", "error", err, "session_id", c.sessionID)
	}
}

// sendError delivers the single client-visible error envelope.
func (c *conn) sendError(msg string) {
	c.sendJSON(protocol.Error{Error: msg})
}

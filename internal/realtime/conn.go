package realtime

import (
	"context"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"gomoku-server/internal/presence"
)

const writeTimeout = 10 * time.Second

// Conn wraps one accepted websocket. Writes are serialized so event
// broadcasts from different goroutines never interleave frames.
type Conn struct {
	id     presence.ConnID
	userID int64
	sock   *websocket.Conn

	writeMu sync.Mutex
}

func (c *Conn) ID() presence.ConnID { return c.id }
func (c *Conn) UserID() int64       { return c.userID }

func (c *Conn) write(ctx context.Context, env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, c.sock, env)
}

func (c *Conn) close(code websocket.StatusCode, reason string) {
	_ = c.sock.Close(code, reason)
}

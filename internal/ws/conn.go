package ws

import (
	"context"
	"sync"
	"time"

	"github.com/park285/chess-arena/pkg/protocol"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// Conn wraps one accepted websocket connection. Writes are serialized by a
// mutex because wsjson.Write is not safe for concurrent use, and carry a
// bounded deadline so a stalled peer cannot block a broadcast.
type Conn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func newConn(c *websocket.Conn) *Conn {
	return &Conn{c: c}
}

func (c *Conn) Send(ctx context.Context, env *protocol.Envelope) error {
	dctx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, writeTimeout)
		defer cancel()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsjson.Write(dctx, c.c, env)
}

func (c *Conn) Close(reason string) error {
	return c.c.Close(websocket.StatusNormalClosure, reason)
}

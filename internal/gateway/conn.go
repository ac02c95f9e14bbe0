package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/protocol"
	"go.uber.org/zap"
)

const (
	writeTimeout     = 5 * time.Second
	pongTimeout      = 60 * time.Second
	pingInterval     = 25 * time.Second
	maxFrameBytes    = 16 * 1024
	outboundCapacity = 64
)

// Conn wraps one websocket connection. All writes flow through a single
// writer goroutine; Deliver never blocks, so a stalled device cannot hold up
// the relay or other devices of the same user.
type Conn struct {
	id        string
	userID    string
	socket    *websocket.Conn
	outbound  chan protocol.Envelope
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	logger    *zap.Logger
	createdAt time.Time
}

func newConn(id, userID string, socket *websocket.Conn, logger *zap.Logger, clock func() time.Time) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		id:        id,
		userID:    userID,
		socket:    socket,
		outbound:  make(chan protocol.Envelope, outboundCapacity),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		createdAt: clock(),
	}
}

// ID returns the unique connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// UserID returns the authenticated owner of the connection.
func (c *Conn) UserID() string {
	return c.userID
}

// Context is canceled when the connection closes; in-flight operations for
// this connection observe it.
func (c *Conn) Context() context.Context {
	return c.ctx
}

// Deliver queues an event for the device. Events beyond the outbound buffer
// are dropped; live delivery is best-effort and persisted state is the source
// of truth on reconnect.
func (c *Conn) Deliver(envelope protocol.Envelope) {
	select {
	case c.outbound <- envelope:
	case <-c.ctx.Done():
	default:
		c.logger.Debug("outbound buffer full, dropping event",
			zap.String("connection_id", c.id),
			zap.String("user_id", c.userID),
			zap.String("event", envelope.Event))
	}
}

// Close tears the connection down exactly once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.socket.Close()
	})
}

// writePump serializes all socket writes and keeps the connection alive with
// periodic pings. It exits when the connection context is canceled.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case envelope := <-c.outbound:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.socket.WriteJSON(envelope); err != nil {
				c.logger.Debug("socket write failed",
					zap.String("connection_id", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

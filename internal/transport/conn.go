package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/electr1fy0/relay/internal/session"
)

var (
	ErrQueueFull   = errors.New("outbound queue full")
	ErrBinaryFrame = errors.New("binary frames are not supported")
)

// Conn adapts one websocket to session.Conn. Outbound text is queued and
// written by writePump so a slow client only stalls its own queue.
type Conn struct {
	ws         *websocket.Conn
	send       chan string
	done       chan struct{}
	closeOnce  sync.Once
	writeWait  time.Duration
	pingPeriod time.Duration
}

func newConn(ws *websocket.Conn, cfg Config) *Conn {
	return &Conn{
		ws:         ws,
		send:       make(chan string, cfg.SendBuffer),
		done:       make(chan struct{}),
		writeWait:  cfg.WriteWait,
		pingPeriod: cfg.PingPeriod,
	}
}

// Receive blocks until the client sends a text frame or the connection ends.
func (c *Conn) Receive(ctx context.Context) (string, error) {
	typ, data, err := c.ws.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return "", session.ErrClosed
		}
		select {
		case <-c.done:
			return "", session.ErrClosed
		default:
		}
		return "", err
	}

	if typ != websocket.MessageText {
		c.closeWith(websocket.StatusUnsupportedData, "text frames only")
		return "", ErrBinaryFrame
	}
	return string(data), nil
}

// Send queues text for the client. It waits up to the write wait for room
// in the queue.
func (c *Conn) Send(ctx context.Context, text string) error {
	select {
	case <-c.done:
		return session.ErrClosed
	default:
	}

	timer := time.NewTimer(c.writeWait)
	defer timer.Stop()

	select {
	case c.send <- text:
		return nil
	case <-c.done:
		return session.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrQueueFull
	}
}

func (c *Conn) Close(reason string) error {
	return c.closeWith(websocket.StatusNormalClosure, reason)
}

func (c *Conn) closeWith(code websocket.StatusCode, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			err = c.ws.Close(code, reason)
		}
	})
	return err
}

// writePump drains the outbound queue and keeps the connection alive with pings.
func (c *Conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return

		case msg := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, c.writeWait)
			err := c.ws.Write(writeCtx, websocket.MessageText, []byte(msg))
			cancel()
			if err != nil {
				c.closeWith(websocket.StatusInternalError, "write failed")
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.writeWait)
			err := c.ws.Ping(pingCtx)
			cancel()
			if err != nil {
				c.closeWith(websocket.StatusInternalError, "ping failed")
				return
			}
		}
	}
}

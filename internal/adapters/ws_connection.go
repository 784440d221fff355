package adapters

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/saucecode/kittencatroom/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// WSConnection is a transport endpoint (WebSocket). It implements core.Conn.
// The write loop owns the underlying socket and closes it on exit, draining
// frames already enqueued so a terminal ERROR still reaches the peer.
type WSConnection struct {
	conn WSConn
	send chan core.Frame
	done chan struct{}
	once sync.Once
}

func NewWSConnection(conn WSConn) *WSConnection {
	return &WSConnection{
		conn: conn,
		send: make(chan core.Frame, 256),
		done: make(chan struct{}),
	}
}

func (c *WSConnection) TrySend(f core.Frame) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *WSConnection) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *WSConnection) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// StartWriteLoop pumps frames to the network.
func (c *WSConnection) StartWriteLoop(ctx context.Context) {
	go func() {
		defer c.conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				c.drain()
				return
			case f := <-c.send:
				if !c.write(f) {
					return
				}
			}
		}
	}()
}

func (c *WSConnection) drain() {
	for {
		select {
		case f := <-c.send:
			if !c.write(f) {
				return
			}
		default:
			return
		}
	}
}

func (c *WSConnection) write(f core.Frame) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, f) == nil
}

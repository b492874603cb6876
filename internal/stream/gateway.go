package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Gateway abstracts the streaming transport. Dial establishes a fresh
// connection and starts delivering inbound frames on Frames; the
// channel is closed when the connection dies. Close tears the
// connection down and is safe to call from any goroutine.
type Gateway interface {
	Dial(ctx context.Context, url string) error
	Send(ctx context.Context, payload []byte) error
	Frames() <-chan []byte
	Close() error
}

// WSGateway is the production Gateway over a websocket connection.
type WSGateway struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	frames chan []byte
	done   chan struct{}
	closed bool
}

var _ Gateway = (*WSGateway)(nil)

// NewWSGateway returns an unconnected gateway.
func NewWSGateway() *WSGateway {
	return &WSGateway{}
}

// Dial connects to the streamer endpoint and starts the read loop. A
// gateway can be redialed after Close.
func (g *WSGateway) Dial(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial streamer %s: %w", url, err)
	}

	g.mu.Lock()
	g.conn = conn
	g.frames = make(chan []byte, 256)
	g.done = make(chan struct{})
	g.closed = false
	frames, done := g.frames, g.done
	g.mu.Unlock()

	go g.readLoop(conn, frames, done)
	return nil
}

// Send writes one text frame. Writes are serialized by the mutex; the
// websocket library does not allow concurrent writers.
func (g *WSGateway) Send(ctx context.Context, payload []byte) error {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("send on closed gateway")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write stream frame: %w", err)
	}
	return nil
}

// Frames returns the inbound frame channel of the current connection.
func (g *WSGateway) Frames() <-chan []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.frames
}

// Close shuts the current connection down. The read loop observes the
// closed socket and closes the frame channel.
func (g *WSGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil || g.closed {
		return nil
	}
	g.closed = true
	close(g.done)
	return g.conn.Close()
}

// readLoop pumps inbound frames until the connection dies or Close is
// called. Closing the socket only unblocks ReadMessage; a send pending
// on a full frame buffer needs the done channel to let go.
func (g *WSGateway) readLoop(conn *websocket.Conn, frames chan<- []byte, done <-chan struct{}) {
	defer close(frames)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case frames <- raw:
		case <-done:
			return
		}
	}
}

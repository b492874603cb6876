package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWSGatewayCloseUnblocksSaturatedReadLoop(t *testing.T) {
	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Well past the 256-frame buffer so the read loop ends up
		// parked on a pending send.
		for i := 0; i < 400; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"data":[]}`)); err != nil {
				return
			}
		}
		// Park until the client hangs up.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	gw := NewWSGateway()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if err := gw.Dial(context.Background(), url); err != nil {
		t.Fatalf("Dial() error: %v", err)
	}

	// Nothing consumes frames here, mimicking an engine that stopped
	// reading before the connection drained.
	time.Sleep(50 * time.Millisecond)
	if err := gw.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// The loop must exit and close the frame channel instead of
	// leaking, blocked on the send forever.
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-gw.Frames():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("frame channel never closed after Close()")
		}
	}
}

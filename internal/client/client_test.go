package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SpandanM110/Chatroom/internal/signaling"
	"github.com/gorilla/websocket"
)

func dropServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSendMessageFailsAfterConnectionDrops(t *testing.T) {
	srv := dropServer(t)
	c := New("ws" + strings.TrimPrefix(srv.URL, "http"))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	for range c.Incoming() {
	}

	result := make(chan error, 1)
	go func() {
		// More sends than the outgoing buffer holds.
		for i := 0; i < 64; i++ {
			if err := c.SendMessage(&signaling.Message{Type: signaling.MessageTypeJoin}); err != nil {
				result <- err
				return
			}
		}
		result <- nil
	}()

	select {
	case err := <-result:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SendMessage blocked after the connection dropped")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := New("ws://127.0.0.1:1")
	c.Close()
	c.Close()
	if err := c.SendMessage(&signaling.Message{Type: signaling.MessageTypeJoin}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

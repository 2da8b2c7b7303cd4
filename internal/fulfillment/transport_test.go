package fulfillment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func transportConfig(url string) TransportConfig {
	return TransportConfig{
		URL:          url,
		PingInterval: time.Minute,
		PingTimeout:  time.Minute,
		WriteTimeout: time.Second,
		BufferSize:   8,
	}
}

func TestConn_ConnectSendFrames(t *testing.T) {
	echoed := make(chan string, 1)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		echoed <- string(msg)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribed"}`))
		drain(conn)
	})
	defer server.Close()

	c := NewConn(transportConfig(wsURL(server)), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close()

	if !c.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := c.Send(subscribeFrame("0x5")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case got := <-echoed:
		if got != `{"cmd":"subscribe","request_id":"0x5"}` {
			t.Errorf("server received %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received frame")
	}

	select {
	case f := <-c.Frames():
		if string(f.Data) != `{"type":"subscribed"}` {
			t.Errorf("frame = %q", f.Data)
		}
		if f.ReceivedAt.IsZero() {
			t.Error("ReceivedAt not set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
}

func TestConn_SendNotConnected(t *testing.T) {
	c := NewConn(transportConfig("ws://unused"), nil)
	if err := c.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
}

func TestConn_DoubleCloseAndReconnect(t *testing.T) {
	server := mockWSServer(t, drain)
	defer server.Close()

	c := NewConn(transportConfig(wsURL(server)), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if c.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("Connect after Close error = %v, want ErrAlreadyClosed", err)
	}
}

func TestConn_ServerCloseReportsError(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {})
	defer server.Close()

	c := NewConn(transportConfig(wsURL(server)), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close()

	select {
	case err := <-c.Errors():
		if err == nil {
			t.Error("expected non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported after server close")
	}
}

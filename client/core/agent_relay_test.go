package core

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"Mirage/client/service/desktop/capture"
)

// TestConcurrentRelayAndControlWrites drives binary block relays and text
// control packets through the same connection from many goroutines at once.
// The connection permits one writer at a time, so this fails (the underlying
// library panics) if the write paths are not serialized.
func TestConcurrentRelayAndControlWrites(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	endpoint := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	agent := &Agent{conn: conn, quit: make(chan struct{})}
	block := bytes.Repeat([]byte{0x5a}, 2048)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				agent.SendDiffBlocks([][]byte{block, block})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				agent.sendPacket(packet{Act: "DESKTOP_PONG", Desktop: "desk-1"})
			}
		}()
	}
	wg.Wait()
}

// TestSetMonitorAnswersFixedSource checks that a monitor switch against a
// source tied to one display still gets a reply instead of silence.
func TestSetMonitorAnswersFixedSource(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan packet, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var pack packet
		if err := json.Unmarshal(data, &pack); err != nil {
			t.Errorf("decode reply: %v", err)
			return
		}
		received <- pack
	}))
	defer server.Close()

	endpoint := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	agent := &Agent{conn: conn, source: capture.NewMockSource(32, 32), quit: make(chan struct{})}
	agent.setMonitor(packet{Act: "DESKTOP_SET_MONITOR", Desktop: "desk-1", Data: map[string]any{
		"monitor": float64(1),
	}})

	select {
	case pack := <-received:
		if pack.Act != "DESKTOP_SET_MONITOR" || pack.Desktop != "desk-1" {
			t.Fatalf("unexpected reply: %+v", pack)
		}
		if pack.Code == 0 || pack.Msg == "" {
			t.Fatalf("expected a declining reply, got %+v", pack)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply to monitor switch")
	}
}

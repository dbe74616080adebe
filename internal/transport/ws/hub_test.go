package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"turnkeep.app/internal/protocol"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) protocol.BaseMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	base, err := protocol.DecodeBase(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return base
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients=%d want %d", h.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_InitialThenBroadcast(t *testing.T) {
	h := NewHub(Options{Initial: func() any {
		return protocol.NewStateMsg("connect", protocol.View{})
	}})
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	if m := readMsg(t, a); m.Type != protocol.TypeState {
		t.Fatalf("initial type=%q", m.Type)
	}
	if m := readMsg(t, b); m.Type != protocol.TypeState {
		t.Fatalf("initial type=%q", m.Type)
	}
	waitClients(t, h, 2)

	h.Broadcast(protocol.NewNoticeMsg("info", "", "game saved"))
	for _, c := range []*websocket.Conn{a, b} {
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var n protocol.NoticeMsg
		if err := json.Unmarshal(raw, &n); err != nil || n.Type != protocol.TypeNotice || n.Message != "game saved" {
			t.Fatalf("notice=%s err=%v", raw, err)
		}
	}

	_ = a.Close()
	waitClients(t, h, 1)
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	h := NewHub(Options{})
	h.Broadcast(protocol.NewNoticeMsg("info", "", "nobody listening"))
	if h.Clients() != 0 {
		t.Fatalf("clients=%d", h.Clients())
	}
}

func TestHub_OfferNeverBlocksOnFullQueue(t *testing.T) {
	h := NewHub(Options{})
	ch := make(chan []byte, 1)
	done := make(chan [2]bool, 1)
	go func() {
		first := h.offer("c1", ch, []byte("a"))
		second := h.offer("c1", ch, []byte("b"))
		done <- [2]bool{first, second}
	}()
	select {
	case got := <-done:
		if !got[0] || got[1] {
			t.Fatalf("offer results=%v want [true false]", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("offer blocked on a full queue")
	}
	if string(<-ch) != "a" {
		t.Fatalf("queued message changed")
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5555": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}

// Package ws pushes renderer messages (STATE, NOTICE) to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const sendQueue = 32

type Options struct {
	// Initial, when set, produces the first message sent to a new client.
	Initial func() any
	// LoopbackOnly refuses clients that do not connect from localhost.
	LoopbackOnly bool
	Logger       *log.Logger
}

// Hub fans messages out to every connected renderer. A client that cannot
// keep up has messages dropped rather than blocking the broadcaster.
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[string]chan []byte
}

func NewHub(opts Options) *Hub {
	return &Hub{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs: map[string]chan []byte{},
	}
}

// Broadcast encodes msg once and queues it for every client.
func (h *Hub) Broadcast(msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.logf("encode broadcast: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		h.offer(id, ch, b)
	}
}

// offer queues b for one client without blocking; a full queue drops it.
func (h *Hub) offer(id string, ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
		h.logf("client %s lagging, message dropped", id)
		return false
	}
}

// Clients reports the number of connected renderers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) subscribe() (string, chan []byte) {
	id := uuid.NewString()
	ch := make(chan []byte, sendQueue)
	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if h.opts.LoopbackOnly && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, out := h.subscribe()
		defer h.unsubscribe(id)
		h.logf("client %s connected from %s", id, r.RemoteAddr)

		if h.opts.Initial != nil {
			if b, err := json.Marshal(h.opts.Initial()); err == nil {
				h.offer(id, out, b)
			}
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: renderers do not send anything meaningful, but reading
		// notices closes and keeps pongs flowing.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		h.logf("client %s disconnected", id)
	}
}

func (h *Hub) logf(format string, args ...any) {
	if h.opts.Logger != nil {
		h.opts.Logger.Printf(format, args...)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

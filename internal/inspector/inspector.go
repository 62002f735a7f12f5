// Package inspector implements the C14 live inspector: a loopback
// WebSocket endpoint that streams a tail of captured frames to any client
// that attaches, built on gorilla/websocket the same way the teacher's own
// rpc/websocket.go upgrades its loopback JSON-RPC listener.
package inspector

import (
	"encoding/binary"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lacrosse-labs/mcproxy/internal/proto"
	"github.com/lacrosse-labs/mcproxy/internal/rlog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const clientSendBuffer = 64

// Hub fans captured frames out to every attached WebSocket client. A slow
// or absent client never blocks the proxy: writes to a full client buffer
// are dropped and logged at Debug (SPEC_FULL.md §4.14).
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     rlog.Logger
}

type client struct {
	send chan []byte
}

// NewHub constructs an empty Hub. A nil logger discards log lines.
func NewHub(logger rlog.Logger) *Hub {
	if logger == nil {
		logger = rlog.Discard()
	}
	return &Hub{clients: make(map[*client]struct{}), log: logger}
}

// Handler upgrades the request to a WebSocket and streams frames to it
// until the connection closes.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Debug("inspector: upgrade failed", "err", err)
			return
		}
		c := &client{send: make(chan []byte, clientSendBuffer)}
		h.attach(c)
		defer h.detach(c)

		// Drain the client's outgoing messages until the socket breaks;
		// the connection itself carries no client->proxy semantics.
		go func() {
			for {
				if _, _, err := conn.NextReader(); err != nil {
					conn.Close()
					return
				}
			}
		}()
		for msg := range c.send {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}
		}
	}
}

func (h *Hub) attach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	close(c.send)
}

// Publish broadcasts one captured frame record (the same header shape the
// capture file uses) to every attached client.
func (h *Hub) Publish(dir proto.Direction, at time.Time, payload []byte) {
	msg := encodeRecord(dir, at, payload)
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Debug("inspector: dropping frame for slow client")
		}
	}
}

// encodeRecord matches the capture file's 16-byte record header (SPEC_FULL.md
// §6): u32 direction, u32 sec, u32 usec, u32 length, all big-endian.
func encodeRecord(dir proto.Direction, at time.Time, payload []byte) []byte {
	out := make([]byte, 16+len(payload))
	if dir == proto.ClientToServer {
		binary.BigEndian.PutUint32(out[0:4], 1)
	}
	binary.BigEndian.PutUint32(out[4:8], uint32(at.Unix()))
	binary.BigEndian.PutUint32(out[8:12], uint32(at.Nanosecond()/1000))
	binary.BigEndian.PutUint32(out[12:16], uint32(len(payload)))
	copy(out[16:], payload)
	return out
}

// Package hub fans change events out to connected dashboard viewers over
// WebSocket. Delivery is best-effort: a viewer that cannot keep up is
// dropped silently and never blocks the sender.
package hub

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/go-core/log"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 16
)

// event is the payload broadcast to every viewer after a store mutation.
// Viewers treat any action as a cue to re-fetch; "refresh" is the only
// action emitted today.
type event struct {
	Action string `json:"action"`
}

// Hub tracks connected viewers and broadcasts change events to them.
type Hub struct {
	logger   log.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	viewers map[string]chan []byte

	entropyMu sync.Mutex
	entropy   *rand.Rand
}

// New creates an empty hub. logger may be nil.
func New(logger log.Logger) *Hub {
	if logger == nil {
		logger = log.Nop()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served from arbitrary origins in dev;
			// auth happens at the HTTP layer, not via Origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		viewers: make(map[string]chan []byte),
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Broadcast sends the action to every connected viewer. Viewers with a
// full send buffer are pruned; Broadcast never blocks and never fails.
func (h *Hub) Broadcast(ctx context.Context, action string) {
	payload, err := json.Marshal(event{Action: action})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, send := range h.viewers {
		select {
		case send <- payload:
		default:
			delete(h.viewers, id)
			close(send)
			h.logger.Info(ctx, "viewer dropped: send buffer full", "viewer_id", id)
		}
	}
}

// ViewerCount reports the number of connected viewers.
func (h *Hub) ViewerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// Subscribe registers a raw viewer channel without a WebSocket connection.
// The returned cancel func detaches the viewer; it is safe to call after
// the hub already pruned it.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	id, send := h.register()
	return send, func() { h.unregister(id) }
}

// HandleWS upgrades the request to a WebSocket and streams change events
// until the viewer disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	id, send := h.register()
	h.logger.Info(r.Context(), "viewer connected", "viewer_id", id)

	go h.writePump(conn, send)

	// Read loop exists only to notice the close; inbound frames are
	// discarded.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.unregister(id)
	_ = conn.Close()
	h.logger.Info(r.Context(), "viewer disconnected", "viewer_id", id)
}

func (h *Hub) writePump(conn *websocket.Conn, send <-chan []byte) {
	for msg := range send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			_ = conn.Close()
			return
		}
	}
	// Hub closed the channel: the viewer was pruned.
	_ = conn.Close()
}

func (h *Hub) register() (string, chan []byte) {
	id := h.newViewerID()
	send := make(chan []byte, sendBufferSize)

	h.mu.Lock()
	h.viewers[id] = send
	h.mu.Unlock()
	return id, send
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if send, ok := h.viewers[id]; ok {
		delete(h.viewers, id)
		close(send)
	}
}

func (h *Hub) newViewerID() string {
	h.entropyMu.Lock()
	defer h.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), h.entropy).String()
}

// Package live broadcasts write notifications to websocket subscribers.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/hylla/stamp/internal/adapters/server/common"
)

const (
	// clientBuffer bounds queued changes per subscriber before new ones are dropped.
	clientBuffer = 32
	// writeTimeout bounds one websocket frame write.
	writeTimeout = 5 * time.Second
)

// Logger is the subset of the runtime logger the hub reports through.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
}

// Hub fans each published Change out to every connected subscriber.
type Hub struct {
	logger Logger

	mu      sync.Mutex
	clients map[chan common.Change]struct{}
	closed  bool
}

// NewHub constructs an empty hub. A nil logger disables hub logging.
func NewHub(logger Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: map[chan common.Change]struct{}{},
	}
}

// Publish queues change for every subscriber. Full subscriber queues drop the change.
func (h *Hub) Publish(change common.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for ch := range h.clients {
		select {
		case ch <- change:
		default:
			h.warn("dropping live change for slow subscriber", "kind", change.Kind)
		}
	}
}

// Clients reports the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.clients {
		close(ch)
		delete(h.clients, ch)
	}
}

// ServeHTTP upgrades the request and streams changes until either side goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"127.0.0.1:*", "localhost:*"},
	})
	if err != nil {
		h.warn("websocket accept failed", "err", err)
		return
	}
	ch, ok := h.subscribe()
	if !ok {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.unsubscribe(ch)
	h.debug("live subscriber connected", "remote", r.RemoteAddr)

	// Subscribers never send; CloseRead handles control frames and cancels ctx on disconnect.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case change, open := <-ch:
			if !open {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := writeChange(ctx, conn, change); err != nil {
				h.debug("live subscriber write failed", "err", err)
				_ = conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (h *Hub) subscribe() (chan common.Change, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan common.Change, clientBuffer)
	h.clients[ch] = struct{}{}
	return ch, true
}

func (h *Hub) unsubscribe(ch chan common.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

func writeChange(ctx context.Context, conn *websocket.Conn, change common.Change) error {
	data, err := json.Marshal(change)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (h *Hub) debug(msg string, keyvals ...any) {
	if h.logger != nil {
		h.logger.Debug(msg, keyvals...)
	}
}

func (h *Hub) warn(msg string, keyvals ...any) {
	if h.logger != nil {
		h.logger.Warn(msg, keyvals...)
	}
}

var _ common.ChangeNotifier = (*Hub)(nil)

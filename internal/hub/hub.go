package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Client is one connected websocket. Send is drained by the connection's
// writer goroutine; the hub never blocks on a slow client.
type Client struct {
	UserID string
	Send   chan []byte
}

// Hub routes reconciled view updates to every socket a user has open, and
// optionally republishes to other instances over the presence store's
// pub/sub so multi-instance deployments deliver too.
type Hub struct {
	mu            sync.RWMutex
	clientsByUser map[string]map[*Client]struct{}

	publish func(ctx context.Context, channel string, payload []byte) error
	log     *zap.SugaredLogger
}

func New(publish func(ctx context.Context, channel string, payload []byte) error, log *zap.SugaredLogger) *Hub {
	return &Hub{
		clientsByUser: make(map[string]map[*Client]struct{}),
		publish:       publish,
		log:           log,
	}
}

func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clientsByUser[c.UserID]; !ok {
		h.clientsByUser[c.UserID] = make(map[*Client]struct{})
	}
	h.clientsByUser[c.UserID][c] = struct{}{}
}

func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clientsByUser[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clientsByUser, c.UserID)
		}
	}
}

// SendToUser delivers to every local socket for the user and republishes for
// other instances. Slow clients are skipped rather than blocking the sender.
func (h *Hub) SendToUser(ctx context.Context, userID string, payload []byte) {
	h.mu.RLock()
	for c := range h.clientsByUser[userID] {
		select {
		case c.Send <- payload:
		default:
			h.log.Debugw("dropping frame for slow client", "user_id", userID)
		}
	}
	h.mu.RUnlock()

	if h.publish != nil {
		if err := h.publish(ctx, "user:"+userID, payload); err != nil {
			h.log.Warnw("cross-instance publish", "user_id", userID, "err", err)
		}
	}
}

// LocalOnly delivers to local sockets without republishing; used when the
// payload itself arrived over pub/sub.
func (h *Hub) LocalOnly(userID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clientsByUser[userID] {
		select {
		case c.Send <- payload:
		default:
		}
	}
}

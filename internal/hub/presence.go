package hub

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence tracks who is connected, shared across instances through Redis,
// and carries the cross-instance fanout channel.
type Presence struct {
	client *redis.Client
	prefix string
}

func NewPresence(client *redis.Client, prefix string) *Presence {
	return &Presence{client: client, prefix: prefix}
}

func (p *Presence) key(userID string) string { return p.prefix + ":presence:" + userID }

func (p *Presence) SetOnline(ctx context.Context, userID string, ttl time.Duration) error {
	return p.client.Set(ctx, p.key(userID), "online", ttl).Err()
}

func (p *Presence) SetOffline(ctx context.Context, userID string) error {
	return p.client.Del(ctx, p.key(userID)).Err()
}

func (p *Presence) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := p.client.Exists(ctx, p.key(userID)).Result()
	return n > 0, err
}

func (p *Presence) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, p.prefix+":"+channel, payload).Err()
}

// Listen forwards frames published by other instances into the local hub
// until ctx is canceled.
func (p *Presence) Listen(ctx context.Context, h *Hub) {
	sub := p.client.PSubscribe(ctx, p.prefix+":user:*")
	defer sub.Close()
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return
		}
		userID := strings.TrimPrefix(msg.Channel, p.prefix+":user:")
		h.LocalOnly(userID, []byte(msg.Payload))
	}
}

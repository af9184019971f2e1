package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event types emitted on mutations. Events are advisory: downstream consumers
// (notifications, analytics) react to them, but a publish failure never fails
// the mutation that produced it.
const (
	MessageSent        = "message.sent"
	MessageDeleted     = "message.deleted"
	GroupCreated       = "group.created"
	GroupDeleted       = "group.deleted"
	GroupMemberAdded   = "group.member_added"
	GroupMemberRemoved = "group.member_removed"
	UserBlocked        = "user.blocked"
	UserUnblocked      = "user.unblocked"
)

type Envelope struct {
	Type       string      `json:"type"`
	ActorID    string      `json:"actor_id"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload,omitempty"`
}

type Publisher struct {
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

func NewPublisher(brokers []string, topic string, log *zap.SugaredLogger) *Publisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &Publisher{writer: w, log: log}
}

// Publish emits one envelope keyed by actor. Failures are logged and
// swallowed.
func (p *Publisher) Publish(ctx context.Context, eventType, actorID string, payload interface{}) {
	env := Envelope{
		Type:       eventType,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
	b, err := json.Marshal(env)
	if err != nil {
		p.log.Warnw("event marshal", "type", eventType, "err", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(actorID),
		Value: b,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warnw("event publish", "type", eventType, "err", err)
	}
}

func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

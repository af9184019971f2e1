package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/nagham05/chatterly/internal/clock"
	"github.com/nagham05/chatterly/internal/events"
	"github.com/nagham05/chatterly/internal/model"
	"github.com/nagham05/chatterly/internal/store"
)

var (
	ErrBlocked      = errors.New("conversation is blocked")
	ErrEmptyMessage = errors.New("message content cannot be empty")
	ErrNotSender    = errors.New("you can only change your own messages")
	ErrSystemMsg    = errors.New("system messages cannot be changed")
)

// Service carries the direct-message operations. Sends never patch local
// reconciler state; the stored document's snapshot echo is the only writer
// into the merged view.
type Service struct {
	st  *store.Store
	pub *events.Publisher
	clk clock.Clock
	log *zap.SugaredLogger
}

func NewService(st *store.Store, pub *events.Publisher, clk clock.Clock, log *zap.SugaredLogger) *Service {
	return &Service{st: st, pub: pub, clk: clk, log: log}
}

// blockedEither reports whether a block row exists in either direction
// between the two users. Checked at mutation time against the store itself,
// not the viewer's cached tracker state.
func (s *Service) blockedEither(ctx context.Context, a, b string) (bool, error) {
	if _, err := s.st.FindBlock(ctx, a, b); err == nil {
		return true, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if _, err := s.st.FindBlock(ctx, b, a); err == nil {
		return true, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	return false, nil
}

// Send validates and stores a direct message. The message id is the client
// correlation id when provided, so a pending overlay entry clears when the
// document echoes back in a snapshot.
func (s *Service) Send(ctx context.Context, sender *model.User, msg *model.Message) (*model.Message, error) {
	if msg.Type == model.TypeText && strings.TrimSpace(msg.Content) == "" {
		return nil, ErrEmptyMessage
	}
	if msg.ReceiverID == "" {
		return nil, errors.New("receiver required")
	}
	blocked, err := s.blockedEither(ctx, sender.ID, msg.ReceiverID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrBlocked
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.SenderID = sender.ID
	msg.SenderName = sender.Name
	if msg.SentAt.IsZero() {
		msg.SentAt = model.TimestampFromTime(s.clk.Now())
	}
	if err := s.st.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.pub.Publish(ctx, events.MessageSent, sender.ID, map[string]string{
		"message_id": msg.ID, "receiver_id": msg.ReceiverID,
	})
	return msg, nil
}

// History pages a direct conversation backwards from the cursor.
func (s *Service) History(ctx context.Context, me *model.User, peerID string, limit int64, before model.Timestamp) ([]model.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.st.MessagesBetween(ctx, me.ID, peerID, limit, before)
}

// MarkRead flags every currently-unread message from peer to me as read,
// stamped with the injected clock. Called when the conversation is the open
// one; the snapshot echo then drives the unread count to zero.
func (s *Service) MarkRead(ctx context.Context, me *model.User, peerID string) (int64, error) {
	return s.st.MarkMessagesRead(ctx, me.ID, peerID, model.TimestampFromTime(s.clk.Now()))
}

func (s *Service) Edit(ctx context.Context, actor *model.User, messageID, newContent string) error {
	if strings.TrimSpace(newContent) == "" {
		return ErrEmptyMessage
	}
	msg, err := s.st.MessageByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.Type == model.TypeSystem {
		return ErrSystemMsg
	}
	if msg.SenderID != actor.ID {
		return ErrNotSender
	}
	return s.st.UpdateMessage(ctx, messageID, bson.M{
		"content":   newContent,
		"edited":    true,
		"edited_at": model.TimestampFromTime(s.clk.Now()),
	})
}

// Delete tombstones a message: the flag flips but the document and its id
// stay, so stale snapshots cannot revive it.
func (s *Service) Delete(ctx context.Context, actor *model.User, messageID string) error {
	msg, err := s.st.MessageByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != actor.ID {
		return ErrNotSender
	}
	if err := s.st.UpdateMessage(ctx, messageID, bson.M{"deleted": true}); err != nil {
		return err
	}
	s.pub.Publish(ctx, events.MessageDeleted, actor.ID, map[string]string{"message_id": messageID})
	return nil
}

func (s *Service) ToggleReaction(ctx context.Context, actor *model.User, messageID, emoji string) error {
	msg, err := s.st.MessageByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.Type == model.TypeSystem {
		return ErrSystemMsg
	}
	msg.ToggleReaction(emoji, actor.ID)
	return s.st.UpdateMessage(ctx, messageID, bson.M{"reactions": msg.Reactions})
}

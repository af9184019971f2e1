package group

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/nagham05/chatterly/internal/clock"
	"github.com/nagham05/chatterly/internal/events"
	"github.com/nagham05/chatterly/internal/model"
	"github.com/nagham05/chatterly/internal/store"
)

var (
	ErrSystemImmutable = errors.New("system messages cannot be edited or reacted to")
	ErrNotSender       = errors.New("you can only change your own messages")
	ErrEmptyMessage    = errors.New("message content cannot be empty")
)

// Manager enforces the group role invariants and appends a system message to
// the group timeline for every membership or role change, so the timeline
// doubles as an activity log.
type Manager struct {
	st  *store.Store
	pub *events.Publisher
	clk clock.Clock
	log *zap.SugaredLogger
}

func NewManager(st *store.Store, pub *events.Publisher, clk clock.Clock, log *zap.SugaredLogger) *Manager {
	return &Manager{st: st, pub: pub, clk: clk, log: log}
}

func (m *Manager) now() model.Timestamp { return model.TimestampFromTime(m.clk.Now()) }

func (m *Manager) Create(ctx context.Context, actor *model.User, name string, memberIDs []string) (*model.Group, error) {
	g, err := newGroup(name, actor.ID, memberIDs)
	if err != nil {
		return nil, err
	}
	g.CreatedAt = m.now()
	g.UpdatedAt = g.CreatedAt
	if err := m.st.InsertGroup(ctx, g); err != nil {
		return nil, err
	}
	m.systemMessage(ctx, g.ID, actor.ID, fmt.Sprintf("%s created the group", actor.Name))
	m.pub.Publish(ctx, events.GroupCreated, actor.ID, map[string]string{"group_id": g.ID, "name": g.Name})
	return g, nil
}

func (m *Manager) Get(ctx context.Context, actor *model.User, groupID string) (*model.Group, error) {
	g, err := m.st.GroupByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !g.IsMember(actor.ID) {
		return nil, ErrNotMember
	}
	return g, nil
}

func (m *Manager) AddMembers(ctx context.Context, actor *model.User, groupID string, memberIDs []string) error {
	if len(memberIDs) == 0 {
		return ErrNoMembers
	}
	g, err := m.st.GroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	if err := addMembers(g, actor.ID, memberIDs); err != nil {
		return err
	}
	if err := m.st.UpdateGroup(ctx, g.ID, bson.M{"members": g.Members, "updated_at": m.now()}); err != nil {
		return err
	}
	m.systemMessage(ctx, g.ID, actor.ID,
		fmt.Sprintf("%s added %s to the group", actor.Name, m.memberNames(ctx, memberIDs)))
	m.pub.Publish(ctx, events.GroupMemberAdded, actor.ID, map[string]interface{}{"group_id": g.ID, "member_ids": memberIDs})
	return nil
}

func (m *Manager) RemoveMembers(ctx context.Context, actor *model.User, groupID string, memberIDs []string) error {
	if len(memberIDs) == 0 {
		return ErrNoMembers
	}
	g, err := m.st.GroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	if err := removeMembers(g, actor.ID, memberIDs); err != nil {
		return err
	}
	if err := m.st.UpdateGroup(ctx, g.ID, bson.M{"members": g.Members, "admins": g.Admins, "updated_at": m.now()}); err != nil {
		return err
	}
	m.systemMessage(ctx, g.ID, actor.ID,
		fmt.Sprintf("%s removed %s from the group", actor.Name, m.memberNames(ctx, memberIDs)))
	m.pub.Publish(ctx, events.GroupMemberRemoved, actor.ID, map[string]interface{}{"group_id": g.ID, "member_ids": memberIDs})
	return nil
}

func (m *Manager) MakeAdmin(ctx context.Context, actor *model.User, groupID, memberID string) error {
	g, err := m.st.GroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	changed, err := makeAdmin(g, actor.ID, memberID)
	if err != nil || !changed {
		return err
	}
	if err := m.st.UpdateGroup(ctx, g.ID, bson.M{"admins": g.Admins, "updated_at": m.now()}); err != nil {
		return err
	}
	m.systemMessage(ctx, g.ID, actor.ID,
		fmt.Sprintf("%s made %s an admin", actor.Name, m.memberNames(ctx, []string{memberID})))
	return nil
}

func (m *Manager) RemoveAdmin(ctx context.Context, actor *model.User, groupID, memberID string) error {
	g, err := m.st.GroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	changed, err := removeAdmin(g, actor.ID, memberID)
	if err != nil || !changed {
		return err
	}
	if err := m.st.UpdateGroup(ctx, g.ID, bson.M{"admins": g.Admins, "updated_at": m.now()}); err != nil {
		return err
	}
	m.systemMessage(ctx, g.ID, actor.ID,
		fmt.Sprintf("%s removed %s as admin", actor.Name, m.memberNames(ctx, []string{memberID})))
	return nil
}

func (m *Manager) Leave(ctx context.Context, actor *model.User, groupID string) error {
	g, err := m.st.GroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	if err := leave(g, actor.ID); err != nil {
		return err
	}
	fields := bson.M{"members": g.Members, "admins": g.Admins, "updated_at": m.now()}
	if err := m.st.UpdateGroup(ctx, g.ID, fields); err != nil {
		return err
	}
	m.systemMessage(ctx, g.ID, actor.ID, fmt.Sprintf("%s left the group", actor.Name))

	// if the leaver authored the displayed last message, recompute it from
	// the remaining history
	if g.LastMessageSender == actor.Name {
		m.refreshLastMessage(ctx, g.ID)
	}
	m.pub.Publish(ctx, events.GroupMemberRemoved, actor.ID, map[string]interface{}{"group_id": g.ID, "member_ids": []string{actor.ID}})
	return nil
}

func (m *Manager) Delete(ctx context.Context, actor *model.User, groupID string) error {
	g, err := m.st.GroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g.CreatorID != actor.ID {
		return ErrNotCreator
	}
	if err := m.st.DeleteGroup(ctx, g.ID); err != nil {
		return err
	}
	m.pub.Publish(ctx, events.GroupDeleted, actor.ID, map[string]string{"group_id": g.ID})
	return nil
}

// SendMessage appends a member's message to the group timeline and refreshes
// the denormalized last-message fields on the group document.
func (m *Manager) SendMessage(ctx context.Context, actor *model.User, groupID string, msg *model.Message) (*model.Message, error) {
	if msg.Type == model.TypeText && strings.TrimSpace(msg.Content) == "" {
		return nil, ErrEmptyMessage
	}
	g, err := m.st.GroupByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !g.IsMember(actor.ID) {
		return nil, ErrNotMember
	}
	msg.GroupID = groupID
	msg.SenderID = actor.ID
	msg.SenderName = actor.Name
	if msg.SentAt.IsZero() {
		msg.SentAt = m.now()
	}
	if err := m.st.InsertGroupMessage(ctx, msg); err != nil {
		return nil, err
	}
	if msg.Type == model.TypeText {
		_ = m.st.UpdateGroup(ctx, groupID, bson.M{
			"last_message":        msg.Content,
			"last_message_time":   msg.SentAt,
			"last_message_sender": actor.Name,
			"updated_at":          m.now(),
		})
	}
	m.pub.Publish(ctx, events.MessageSent, actor.ID, map[string]string{"group_id": groupID, "message_id": msg.ID})
	return msg, nil
}

// EditMessage rewrites a message's content. Only the sender may edit, and
// system messages are immutable.
func (m *Manager) EditMessage(ctx context.Context, actor *model.User, messageID, newContent string) error {
	if strings.TrimSpace(newContent) == "" {
		return ErrEmptyMessage
	}
	msg, err := m.st.GroupMessageByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.Type == model.TypeSystem {
		return ErrSystemImmutable
	}
	if msg.SenderID != actor.ID {
		return ErrNotSender
	}
	now := m.now()
	if err := m.st.UpdateGroupMessage(ctx, messageID, bson.M{
		"content": newContent, "edited": true, "edited_at": now,
	}); err != nil {
		return err
	}
	// keep the sidebar preview honest if this was the latest message
	g, err := m.st.GroupByID(ctx, msg.GroupID)
	if err == nil && g.LastMessageTime == msg.SentAt {
		_ = m.st.UpdateGroup(ctx, g.ID, bson.M{"last_message": newContent, "updated_at": now})
	}
	return nil
}

// DeleteMessage tombstones a message. The sender or any group admin may
// delete; the document keeps its id so stale snapshots cannot revive it.
func (m *Manager) DeleteMessage(ctx context.Context, actor *model.User, messageID string) error {
	msg, err := m.st.GroupMessageByID(ctx, messageID)
	if err != nil {
		return err
	}
	g, err := m.st.GroupByID(ctx, msg.GroupID)
	if err != nil {
		return err
	}
	if msg.SenderID != actor.ID && !g.IsAdmin(actor.ID) {
		return ErrNotSender
	}
	if err := m.st.UpdateGroupMessage(ctx, messageID, bson.M{"deleted": true}); err != nil {
		return err
	}
	if g.LastMessageTime == msg.SentAt {
		m.refreshLastMessage(ctx, g.ID)
	}
	m.pub.Publish(ctx, events.MessageDeleted, actor.ID, map[string]string{"group_id": g.ID, "message_id": messageID})
	return nil
}

// ToggleReaction flips the actor's reaction under emoji on a group message.
func (m *Manager) ToggleReaction(ctx context.Context, actor *model.User, messageID, emoji string) error {
	msg, err := m.st.GroupMessageByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.Type == model.TypeSystem {
		return ErrSystemImmutable
	}
	msg.ToggleReaction(emoji, actor.ID)
	return m.st.UpdateGroupMessage(ctx, messageID, bson.M{"reactions": msg.Reactions})
}

func (m *Manager) systemMessage(ctx context.Context, groupID, actorID, content string) {
	msg := &model.Message{
		GroupID:  groupID,
		SenderID: actorID,
		Content:  content,
		Type:     model.TypeSystem,
		SentAt:   m.now(),
	}
	if err := m.st.InsertGroupMessage(ctx, msg); err != nil {
		m.log.Warnw("system message", "group_id", groupID, "err", err)
	}
}

func (m *Manager) refreshLastMessage(ctx context.Context, groupID string) {
	fields := bson.M{"last_message": "", "last_message_time": model.Timestamp(0), "last_message_sender": "", "updated_at": m.now()}
	if last, err := m.st.LatestGroupTextMessage(ctx, groupID); err == nil {
		fields["last_message"] = last.Content
		fields["last_message_time"] = last.SentAt
		fields["last_message_sender"] = last.SenderName
	} else if !errors.Is(err, store.ErrNotFound) {
		m.log.Warnw("refresh last message", "group_id", groupID, "err", err)
		return
	}
	if err := m.st.UpdateGroup(ctx, groupID, fields); err != nil {
		m.log.Warnw("refresh last message", "group_id", groupID, "err", err)
	}
}

func (m *Manager) memberNames(ctx context.Context, ids []string) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if u, err := m.st.UserByID(ctx, id); err == nil {
			names = append(names, u.Name)
		} else {
			names = append(names, "unknown user")
		}
	}
	return strings.Join(names, ", ")
}

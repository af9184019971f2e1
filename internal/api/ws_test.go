package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nagham05/chatterly/internal/clock"
	"github.com/nagham05/chatterly/internal/model"
	"github.com/nagham05/chatterly/internal/reconcile"
)

func TestHasUnreadFrom(t *testing.T) {
	view := func(msgs ...model.Message) reconcile.View {
		return reconcile.View{Messages: msgs}
	}

	// a peer message landing while the chat is open must count as unread
	require.True(t, hasUnreadFrom(view(
		model.Message{ID: "m1", SenderID: "bob", ReceiverID: "alice"},
	), "alice", "bob"))

	require.False(t, hasUnreadFrom(view(
		model.Message{ID: "m1", SenderID: "bob", ReceiverID: "alice", Read: true},
	), "alice", "bob"))

	// my own messages never need marking
	require.False(t, hasUnreadFrom(view(
		model.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob"},
	), "alice", "bob"))

	require.False(t, hasUnreadFrom(view(), "alice", "bob"))
}

func TestPendingMessageUsesServerClock(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)
	c := &wsConn{
		srv:    &Server{clk: fake},
		user:   &model.User{ID: "alice", Name: "Alice"},
		peerID: "bob",
	}
	cmd := wsCommand{Type: "send"}
	cmd.Message = &wsMessageBody{Content: "hi", MsgType: model.TypeText}

	m := c.pendingMessage(cmd)
	require.NotEmpty(t, m.ID)
	require.Equal(t, "alice", m.SenderID)
	require.Equal(t, "bob", m.ReceiverID)
	require.Equal(t, model.TimestampFromTime(start), m.SentAt)

	fake.Advance(time.Minute)
	require.Equal(t, model.TimestampFromTime(start.Add(time.Minute)), c.pendingMessage(cmd).SentAt)

	// a client-supplied correlation id is preserved
	cmd.Message.ID = "client-id"
	require.Equal(t, "client-id", c.pendingMessage(cmd).ID)
}

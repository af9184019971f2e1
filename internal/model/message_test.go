package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInConversation(t *testing.T) {
	m := Message{SenderID: "alice", ReceiverID: "bob"}
	require.True(t, m.InConversation("alice", "bob"))
	require.True(t, m.InConversation("bob", "alice"))
	require.False(t, m.InConversation("alice", "carol"))

	g := Message{SenderID: "alice", GroupID: "g1"}
	require.False(t, g.InConversation("alice", "bob"))
}

func TestToggleReaction(t *testing.T) {
	m := Message{}

	m.ToggleReaction("👍", "alice")
	require.Equal(t, []string{"alice"}, m.Reactions["👍"])

	m.ToggleReaction("👍", "bob")
	require.Equal(t, []string{"alice", "bob"}, m.Reactions["👍"])

	// toggling again removes only that user
	m.ToggleReaction("👍", "alice")
	require.Equal(t, []string{"bob"}, m.Reactions["👍"])

	// last reactor leaving drops the emoji key entirely
	m.ToggleReaction("👍", "bob")
	require.NotContains(t, m.Reactions, "👍")
}

func TestMessageTypeValid(t *testing.T) {
	for _, typ := range []MessageType{TypeText, TypeImage, TypeFile, TypeSystem} {
		require.True(t, typ.Valid(), string(typ))
	}
	require.False(t, MessageType("video").Valid())

	require.True(t, TypeImage.IsMedia())
	require.True(t, TypeFile.IsMedia())
	require.False(t, TypeText.IsMedia())
	require.False(t, TypeSystem.IsMedia())
}

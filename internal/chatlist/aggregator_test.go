package chatlist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nagham05/chatterly/internal/model"
	"github.com/nagham05/chatterly/internal/store"
)

type stubBlocks struct {
	blocked map[string]bool
}

func (s *stubBlocks) IsBlocked(peerID string) model.BlockStatus {
	return model.BlockStatus{Blocked: s.blocked[peerID]}
}

type stubUsers struct {
	names   map[string]string
	lookups int
}

func (s *stubUsers) UserByID(_ context.Context, id string) (*model.User, error) {
	s.lookups++
	if name, ok := s.names[id]; ok {
		return &model.User{ID: id, Name: name}, nil
	}
	return nil, store.ErrNotFound
}

func newTestAggregator(blocked ...string) *Aggregator {
	b := &stubBlocks{blocked: make(map[string]bool)}
	for _, id := range blocked {
		b.blocked[id] = true
	}
	return &Aggregator{
		me:       "alice",
		blocks:   b,
		users:    &stubUsers{names: map[string]string{"bob": "Bob", "carol": "Carol"}},
		ctx:      context.Background(),
		log:      zap.NewNop().Sugar(),
		sent:     make(map[string]peerChat),
		received: make(map[string]peerChat),
		srcErr:   make(map[string]error),
		names:    make(map[string]string),
	}
}

func msg(id, from, to string, at int64, read bool) model.Message {
	return model.Message{
		ID:         id,
		SenderID:   from,
		ReceiverID: to,
		Content:    "msg " + id,
		Type:       model.TypeText,
		SentAt:     model.Timestamp(at),
		Read:       read,
	}
}

func chatIDs(l List) []string {
	out := make([]string, 0, len(l.Chats))
	for _, c := range l.Chats {
		out = append(out, c.ID)
	}
	return out
}

func TestListLoadingUntilBothDirectSourcesArrive(t *testing.T) {
	a := newTestAggregator()
	require.Equal(t, StateLoading, a.buildList().State)

	a.apply(event{source: "sent"})
	require.Equal(t, StateLoading, a.buildList().State)

	a.apply(event{source: "received"})
	require.Equal(t, StateReady, a.buildList().State)
}

func TestListUnionsSentAndReceivedPerPeer(t *testing.T) {
	a := newTestAggregator()
	a.apply(event{source: "sent", msgs: []model.Message{
		msg("s1", "alice", "bob", 100, false),
	}})
	a.apply(event{source: "received", msgs: []model.Message{
		msg("r1", "bob", "alice", 200, false),
		msg("r2", "carol", "alice", 50, false),
	}})

	l := a.buildList()
	require.Equal(t, []string{"bob", "carol"}, chatIDs(l))
	// bob's row carries the newer received message
	require.Equal(t, "msg r1", l.Chats[0].LastMessage)
	require.Equal(t, model.Timestamp(200), l.Chats[0].LastMessageTime)
}

func TestListKeepsNewerSentMessageOverReceived(t *testing.T) {
	a := newTestAggregator()
	a.apply(event{source: "sent", msgs: []model.Message{
		msg("s1", "alice", "bob", 300, false),
	}})
	a.apply(event{source: "received", msgs: []model.Message{
		msg("r1", "bob", "alice", 200, true),
	}})

	l := a.buildList()
	require.Equal(t, "msg s1", l.Chats[0].LastMessage)
	require.Equal(t, model.Timestamp(300), l.Chats[0].LastMessageTime)
}

func TestUnreadCountsOnlyUnreadReceived(t *testing.T) {
	a := newTestAggregator()
	a.apply(event{source: "sent"})
	a.apply(event{source: "received", msgs: []model.Message{
		msg("r1", "bob", "alice", 100, true),
		msg("r2", "bob", "alice", 200, false),
		msg("r3", "bob", "alice", 300, false),
	}})

	l := a.buildList()
	require.Equal(t, 2, l.Chats[0].UnreadCount)
}

func TestDeletedMessagesExcludedFromSummaries(t *testing.T) {
	a := newTestAggregator()
	tombstone := msg("r2", "bob", "alice", 200, false)
	tombstone.Deleted = true
	a.apply(event{source: "sent"})
	a.apply(event{source: "received", msgs: []model.Message{
		msg("r1", "bob", "alice", 100, false),
		tombstone,
	}})

	l := a.buildList()
	require.Equal(t, "msg r1", l.Chats[0].LastMessage)
	require.Equal(t, 1, l.Chats[0].UnreadCount)
}

func TestGroupsAppearNamespacedAndSortedIn(t *testing.T) {
	a := newTestAggregator()
	a.apply(event{source: "sent", msgs: []model.Message{
		msg("s1", "alice", "bob", 100, false),
	}})
	a.apply(event{source: "received"})
	a.apply(event{source: "groups", groups: []model.Group{
		{ID: "g1", Name: "team", LastMessage: "hi all", LastMessageTime: model.Timestamp(250)},
	}})

	l := a.buildList()
	require.Equal(t, []string{"group:g1", "bob"}, chatIDs(l))
	require.True(t, l.Chats[0].IsGroup)
	require.Equal(t, "team", l.Chats[0].DisplayName)
}

func TestChatsWithNoMessagesSortLast(t *testing.T) {
	a := newTestAggregator()
	a.apply(event{source: "sent", msgs: []model.Message{
		msg("s1", "alice", "bob", 100, false),
	}})
	a.apply(event{source: "received"})
	a.apply(event{source: "groups", groups: []model.Group{
		{ID: "g1", Name: "fresh group"},
	}})

	require.Equal(t, []string{"bob", "group:g1"}, chatIDs(a.buildList()))
}

func TestDirectRowsCarryPeerDisplayName(t *testing.T) {
	a := newTestAggregator()
	a.apply(event{source: "sent", msgs: []model.Message{
		msg("s1", "alice", "bob", 100, false),
	}})
	a.apply(event{source: "received", msgs: []model.Message{
		msg("r1", "carol", "alice", 200, false),
	}})

	l := a.buildList()
	require.Equal(t, []string{"carol", "bob"}, chatIDs(l))
	require.Equal(t, "Carol", l.Chats[0].DisplayName)
	require.Equal(t, "Bob", l.Chats[1].DisplayName)
}

func TestDisplayNameCachedAcrossRebuilds(t *testing.T) {
	a := newTestAggregator()
	users := a.users.(*stubUsers)
	a.apply(event{source: "sent", msgs: []model.Message{
		msg("s1", "alice", "bob", 100, false),
	}})
	a.apply(event{source: "received"})

	a.buildList()
	a.buildList()
	require.Equal(t, 1, users.lookups)
}

func TestDisplayNameFallsBackToPeerID(t *testing.T) {
	a := newTestAggregator()
	a.apply(event{source: "sent", msgs: []model.Message{
		msg("s1", "alice", "ghost", 100, false),
	}})
	a.apply(event{source: "received"})

	l := a.buildList()
	require.Equal(t, "ghost", l.Chats[0].DisplayName)
	// failures are not cached; the next rebuild retries
	require.NotContains(t, a.names, "ghost")
}

func TestBlockedFlagFromChecker(t *testing.T) {
	a := newTestAggregator("bob")
	a.apply(event{source: "sent", msgs: []model.Message{
		msg("s1", "alice", "bob", 100, false),
		msg("s2", "alice", "carol", 200, false),
	}})
	a.apply(event{source: "received"})

	l := a.buildList()
	require.Equal(t, []string{"carol", "bob"}, chatIDs(l))
	require.False(t, l.Chats[0].IsBlocked)
	require.True(t, l.Chats[1].IsBlocked)
}

func TestIndexNotReadyReportedDistinctly(t *testing.T) {
	a := newTestAggregator()
	a.apply(event{source: "sent", err: store.ErrIndexNotReady})
	require.Equal(t, StateIndexNotReady, a.buildList().State)

	// the source recovering clears the state
	a.apply(event{source: "sent"})
	a.apply(event{source: "received"})
	require.Equal(t, StateReady, a.buildList().State)
}

func TestTransientErrorReported(t *testing.T) {
	a := newTestAggregator()
	a.apply(event{source: "received", err: store.ErrUnavailable})

	l := a.buildList()
	require.Equal(t, StateError, l.State)
	require.ErrorIs(t, l.Err, store.ErrUnavailable)
}

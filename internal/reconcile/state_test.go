package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nagham05/chatterly/internal/model"
	"github.com/nagham05/chatterly/internal/store"
)

func direct(id, from, to string, at int64) model.Message {
	return model.Message{
		ID:         id,
		SenderID:   from,
		ReceiverID: to,
		Content:    "msg " + id,
		Type:       model.TypeText,
		SentAt:     model.Timestamp(at),
	}
}

func ids(msgs []model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestViewMergesSourcesInTimestampOrder(t *testing.T) {
	st := NewDirectState("alice", "bob")
	st.ApplySnapshot("sent", store.MessageSnapshot{Messages: []model.Message{
		direct("a1", "alice", "bob", 100),
		direct("a3", "alice", "bob", 300),
	}})
	st.ApplySnapshot("received", store.MessageSnapshot{Messages: []model.Message{
		direct("b2", "bob", "alice", 200),
		direct("b4", "bob", "alice", 400),
	}})

	require.Equal(t, []string{"a1", "b2", "a3", "b4"}, ids(st.View().Messages))
}

func TestViewTieBreaksEqualTimestampsByID(t *testing.T) {
	st := NewDirectState("alice", "bob")
	st.ApplySnapshot("sent", store.MessageSnapshot{Messages: []model.Message{
		direct("zz", "alice", "bob", 100),
	}})
	st.ApplySnapshot("received", store.MessageSnapshot{Messages: []model.Message{
		direct("aa", "bob", "alice", 100),
	}})

	require.Equal(t, []string{"aa", "zz"}, ids(st.View().Messages))
}

func TestApplySnapshotIsIdempotent(t *testing.T) {
	st := NewDirectState("alice", "bob")
	snap := store.MessageSnapshot{Messages: []model.Message{
		direct("a1", "alice", "bob", 100),
		direct("a2", "alice", "bob", 200),
	}}
	st.ApplySnapshot("sent", snap)
	first := st.View()
	st.ApplySnapshot("sent", snap)
	second := st.View()

	require.Equal(t, first.Messages, second.Messages)
	require.Equal(t, first.Sections, second.Sections)
}

func TestSnapshotReplacesSourceWholesale(t *testing.T) {
	st := NewDirectState("alice", "bob")
	st.ApplySnapshot("sent", store.MessageSnapshot{Messages: []model.Message{
		direct("a1", "alice", "bob", 100),
		direct("a2", "alice", "bob", 200),
	}})
	// next snapshot no longer contains a1
	st.ApplySnapshot("sent", store.MessageSnapshot{Messages: []model.Message{
		direct("a2", "alice", "bob", 200),
	}})

	require.Equal(t, []string{"a2"}, ids(st.View().Messages))
}

func TestTombstoneSurvivesStaleSnapshot(t *testing.T) {
	st := NewDirectState("alice", "bob")
	deleted := direct("a1", "alice", "bob", 100)
	deleted.Deleted = true
	st.ApplySnapshot("sent", store.MessageSnapshot{Messages: []model.Message{deleted}})

	// a stale snapshot still carrying the live doc cannot revive it
	st.ApplySnapshot("sent", store.MessageSnapshot{Messages: []model.Message{
		direct("a1", "alice", "bob", 100),
	}})

	require.Empty(t, st.View().Messages)
}

func TestOutOfConversationMessagesFiltered(t *testing.T) {
	st := NewDirectState("alice", "bob")
	st.ApplySnapshot("sent", store.MessageSnapshot{Messages: []model.Message{
		direct("a1", "alice", "bob", 100),
		direct("x1", "alice", "carol", 150),
	}})

	require.Equal(t, []string{"a1"}, ids(st.View().Messages))
}

func TestPendingClearedByAuthoritativeEcho(t *testing.T) {
	st := NewDirectState("alice", "bob")
	m := direct("p1", "alice", "bob", 100)
	st.AddPending(m)
	require.Len(t, st.View().Pending, 1)
	require.Empty(t, st.View().Messages)

	st.ApplySnapshot("sent", store.MessageSnapshot{Messages: []model.Message{m}})
	v := st.View()
	require.Empty(t, v.Pending)
	require.Equal(t, []string{"p1"}, ids(v.Messages))
}

func TestDropPendingOnFailedSend(t *testing.T) {
	st := NewDirectState("alice", "bob")
	st.AddPending(direct("p1", "alice", "bob", 100))
	st.DropPending("p1")
	require.Empty(t, st.View().Pending)
}

func TestSourceErrorKeepsLastGoodData(t *testing.T) {
	st := NewDirectState("alice", "bob")
	st.ApplySnapshot("sent", store.MessageSnapshot{Messages: []model.Message{
		direct("a1", "alice", "bob", 100),
	}})
	st.ApplySnapshot("sent", store.MessageSnapshot{Err: store.ErrUnavailable})

	v := st.View()
	require.Equal(t, []string{"a1"}, ids(v.Messages))
	require.ErrorIs(t, v.Err, store.ErrUnavailable)
	require.False(t, v.IndexNotReady)
}

func TestIndexNotReadyDegradesOnlyThatSource(t *testing.T) {
	st := NewDirectState("alice", "bob")
	st.ApplySnapshot("sent", store.MessageSnapshot{Err: store.ErrIndexNotReady})
	st.ApplySnapshot("received", store.MessageSnapshot{Messages: []model.Message{
		direct("b1", "bob", "alice", 100),
	}})

	v := st.View()
	require.True(t, v.IndexNotReady)
	require.NoError(t, v.Err)
	require.Equal(t, []string{"b1"}, ids(v.Messages))
}

func TestSourceRecoversAfterError(t *testing.T) {
	st := NewDirectState("alice", "bob")
	st.ApplySnapshot("sent", store.MessageSnapshot{Err: store.ErrIndexNotReady})
	require.True(t, st.View().IndexNotReady)

	st.ApplySnapshot("sent", store.MessageSnapshot{Messages: []model.Message{
		direct("a1", "alice", "bob", 100),
	}})
	v := st.View()
	require.False(t, v.IndexNotReady)
	require.Equal(t, []string{"a1"}, ids(v.Messages))
}

func TestGroupStateFiltersByGroup(t *testing.T) {
	st := NewGroupState("alice", "g1")
	in := direct("m1", "bob", "", 100)
	in.GroupID = "g1"
	out := direct("m2", "bob", "", 200)
	out.GroupID = "g2"
	st.ApplySnapshot("group", store.MessageSnapshot{Messages: []model.Message{in, out}})

	require.Equal(t, []string{"m1"}, ids(st.View().Messages))
}

func TestSectionsSplitByUTCDay(t *testing.T) {
	st := NewDirectState("alice", "bob")
	st.ApplySnapshot("sent", store.MessageSnapshot{Messages: []model.Message{
		direct("a1", "alice", "bob", 1_700_000_000_000), // 2023-11-14 UTC
		direct("a2", "alice", "bob", 1_700_086_400_000), // 2023-11-15 UTC
		direct("a3", "alice", "bob", 1_700_090_000_000), // same day as a2
	}})

	v := st.View()
	require.Len(t, v.Sections, 2)
	require.Equal(t, "2023-11-14", v.Sections[0].Day)
	require.Equal(t, []string{"a1"}, ids(v.Sections[0].Messages))
	require.Equal(t, "2023-11-15", v.Sections[1].Day)
	require.Equal(t, []string{"a2", "a3"}, ids(v.Sections[1].Messages))
}

func TestMediaCollectsImageAndFileMessages(t *testing.T) {
	st := NewDirectState("alice", "bob")
	img := direct("i1", "alice", "bob", 100)
	img.Type = model.TypeImage
	file := direct("f1", "bob", "alice", 200)
	file.Type = model.TypeFile
	st.ApplySnapshot("sent", store.MessageSnapshot{Messages: []model.Message{
		img, direct("t1", "alice", "bob", 150),
	}})
	st.ApplySnapshot("received", store.MessageSnapshot{Messages: []model.Message{file}})

	require.Equal(t, []string{"i1", "f1"}, ids(st.View().Media))
}

package block

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nagham05/chatterly/internal/model"
	"github.com/nagham05/chatterly/internal/store"
)

func newTestTracker(onChange func()) *Tracker {
	return &Tracker{
		me:       "alice",
		log:      zap.NewNop().Sugar(),
		outgoing: make(map[string]model.BlockRelationship),
		incoming: make(map[string]model.BlockRelationship),
		onChange: onChange,
	}
}

func TestIsBlockedBothDirections(t *testing.T) {
	tr := newTestTracker(nil)
	tr.applySnapshot(store.BlockSnapshot{Blocks: []model.BlockRelationship{
		{ID: "b1", BlockerID: "alice", BlockedID: "bob"},
		{ID: "b2", BlockerID: "carol", BlockedID: "alice"},
	}})

	st := tr.IsBlocked("bob")
	require.True(t, st.Blocked)
	require.Equal(t, model.BlockedByMe, st.Direction)

	st = tr.IsBlocked("carol")
	require.True(t, st.Blocked)
	require.Equal(t, model.BlockedByThem, st.Direction)

	require.False(t, tr.IsBlocked("dave").Blocked)
}

func TestViewerBlockWinsWhenMutual(t *testing.T) {
	tr := newTestTracker(nil)
	tr.applySnapshot(store.BlockSnapshot{Blocks: []model.BlockRelationship{
		{ID: "b1", BlockerID: "alice", BlockedID: "bob"},
		{ID: "b2", BlockerID: "bob", BlockedID: "alice"},
	}})

	st := tr.IsBlocked("bob")
	require.True(t, st.Blocked)
	require.Equal(t, model.BlockedByMe, st.Direction)
}

func TestSnapshotReplacesPreviousBlocks(t *testing.T) {
	tr := newTestTracker(nil)
	tr.applySnapshot(store.BlockSnapshot{Blocks: []model.BlockRelationship{
		{ID: "b1", BlockerID: "alice", BlockedID: "bob"},
	}})
	require.True(t, tr.IsBlocked("bob").Blocked)

	// unblock arrives as a snapshot without the row
	tr.applySnapshot(store.BlockSnapshot{})
	require.False(t, tr.IsBlocked("bob").Blocked)
}

func TestSnapshotErrorKeepsLastGoodView(t *testing.T) {
	tr := newTestTracker(nil)
	tr.applySnapshot(store.BlockSnapshot{Blocks: []model.BlockRelationship{
		{ID: "b1", BlockerID: "alice", BlockedID: "bob"},
	}})
	tr.applySnapshot(store.BlockSnapshot{Err: store.ErrUnavailable})

	require.True(t, tr.IsBlocked("bob").Blocked)
}

// Trackers are built before their dependents, so the callback is wired
// after the watch is already delivering snapshots.
func TestSetOnChangeWiresCallbackLate(t *testing.T) {
	tr := newTestTracker(nil)
	tr.applySnapshot(store.BlockSnapshot{Blocks: []model.BlockRelationship{
		{ID: "b1", BlockerID: "alice", BlockedID: "bob"},
	}})

	var fired int
	tr.SetOnChange(func() { fired++ })
	require.Equal(t, 0, fired)

	tr.applySnapshot(store.BlockSnapshot{})
	require.Equal(t, 1, fired)
}

func TestOnChangeFiresPerAppliedSnapshot(t *testing.T) {
	var fired int
	tr := newTestTracker(func() { fired++ })

	tr.applySnapshot(store.BlockSnapshot{})
	tr.applySnapshot(store.BlockSnapshot{Err: store.ErrUnavailable}) // not applied
	tr.applySnapshot(store.BlockSnapshot{Blocks: []model.BlockRelationship{
		{ID: "b1", BlockerID: "alice", BlockedID: "bob"},
	}})

	require.Equal(t, 2, fired)
}

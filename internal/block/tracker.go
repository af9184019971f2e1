package block

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/nagham05/chatterly/internal/model"
	"github.com/nagham05/chatterly/internal/store"
)

// Tracker keeps a live local view of block relationships touching one
// viewer, in both directions: rows where the viewer is the blocker and rows
// where the viewer is the blocked party. One Tracker per signed-in session.
type Tracker struct {
	me  string
	log *zap.SugaredLogger

	mu       sync.RWMutex
	outgoing map[string]model.BlockRelationship // blockedID -> row
	incoming map[string]model.BlockRelationship // blockerID -> row
	onChange func()

	cancel store.CancelFunc
}

// NewTracker subscribes to both block directions for me. onChange fires
// after every applied snapshot so dependents (chat list, open conversation)
// can refresh; wire it with SetOnChange when the dependent is built after
// the tracker.
func NewTracker(ctx context.Context, st *store.Store, me string, onChange func(), log *zap.SugaredLogger) *Tracker {
	t := &Tracker{
		me:       me,
		log:      log,
		outgoing: make(map[string]model.BlockRelationship),
		incoming: make(map[string]model.BlockRelationship),
		onChange: onChange,
	}
	t.cancel = st.WatchBlocks(ctx, me, t.applySnapshot)
	return t
}

// SetOnChange replaces the change callback. Snapshots applied before the
// call fire the old one (or none); snapshots after fire the new one.
func (t *Tracker) SetOnChange(fn func()) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

func (t *Tracker) applySnapshot(snap store.BlockSnapshot) {
	if snap.Err != nil {
		t.log.Warnw("block snapshot", "err", snap.Err)
		return
	}
	out := make(map[string]model.BlockRelationship)
	in := make(map[string]model.BlockRelationship)
	for _, b := range snap.Blocks {
		switch {
		case b.BlockerID == t.me:
			out[b.BlockedID] = b
		case b.BlockedID == t.me:
			in[b.BlockerID] = b
		}
	}
	t.mu.Lock()
	t.outgoing = out
	t.incoming = in
	notify := t.onChange
	t.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// IsBlocked reports whether the conversation with peer is blocked and from
// which side. If both sides blocked each other, the viewer's own block wins
// for display purposes.
func (t *Tracker) IsBlocked(peerID string) model.BlockStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.outgoing[peerID]; ok {
		return model.BlockStatus{Blocked: true, Direction: model.BlockedByMe}
	}
	if _, ok := t.incoming[peerID]; ok {
		return model.BlockStatus{Blocked: true, Direction: model.BlockedByThem}
	}
	return model.BlockStatus{}
}

func (t *Tracker) Close() {
	if t.cancel != nil {
		t.cancel()
	}
}

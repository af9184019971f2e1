package reconcile

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/nagham05/chatterly/internal/model"
	"github.com/nagham05/chatterly/internal/store"
)

// Reconciler merges the snapshot streams feeding one open conversation and
// pushes a recomputed View after every event. Sources never touch shared
// state; they post events into the reducer loop, which is the only writer.
type Reconciler struct {
	state   *State
	events  chan event
	cancels []store.CancelFunc
	onView  func(View)
	log     *zap.SugaredLogger
	stopped chan struct{}
}

type event struct {
	source  string
	snap    store.MessageSnapshot
	pending *model.Message
	drop    string
}

// NewDirect opens a reconciler for the direct conversation between me and
// peer. Two overlapping snapshot sources feed it: messages I sent to the peer
// and messages the peer sent to me, merged by message id.
func NewDirect(ctx context.Context, st *store.Store, me, peer string, onView func(View), log *zap.SugaredLogger) *Reconciler {
	r := newReconciler(NewDirectState(me, peer), onView, log)
	r.cancels = append(r.cancels,
		st.WatchMessages(ctx, bson.M{"sender_id": me, "receiver_id": peer}, r.source("sent")),
		st.WatchMessages(ctx, bson.M{"sender_id": peer, "receiver_id": me}, r.source("received")),
	)
	return r
}

// NewGroup opens a reconciler for a group conversation, fed by the single
// group-message stream.
func NewGroup(ctx context.Context, st *store.Store, me, groupID string, onView func(View), log *zap.SugaredLogger) *Reconciler {
	r := newReconciler(NewGroupState(me, groupID), onView, log)
	r.cancels = append(r.cancels,
		st.WatchGroupMessages(ctx, groupID, r.source("group")),
	)
	return r
}

func newReconciler(state *State, onView func(View), log *zap.SugaredLogger) *Reconciler {
	r := &Reconciler{
		state:   state,
		events:  make(chan event, 16),
		onView:  onView,
		log:     log,
		stopped: make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Reconciler) source(name string) func(store.MessageSnapshot) {
	return func(snap store.MessageSnapshot) {
		r.events <- event{source: name, snap: snap}
	}
}

// AddPending records an optimistic overlay entry for a just-issued send. The
// id must be the client-generated correlation id used for the stored
// document, so the authoritative echo clears it.
func (r *Reconciler) AddPending(m model.Message) {
	r.events <- event{pending: &m}
}

// DropPending discards an overlay entry whose remote write failed.
func (r *Reconciler) DropPending(id string) {
	r.events <- event{drop: id}
}

func (r *Reconciler) loop() {
	defer close(r.stopped)
	for ev := range r.events {
		switch {
		case ev.pending != nil:
			r.state.AddPending(*ev.pending)
		case ev.drop != "":
			r.state.DropPending(ev.drop)
		default:
			if ev.snap.Err != nil {
				r.log.Warnw("snapshot error", "source", ev.source, "err", ev.snap.Err)
			}
			r.state.ApplySnapshot(ev.source, ev.snap)
		}
		r.onView(r.state.View())
	}
}

// Close cancels all snapshot sources, waits for them to stop delivering, and
// shuts the reducer down. After Close returns no callback fires again.
func (r *Reconciler) Close() {
	for _, cancel := range r.cancels {
		cancel()
	}
	close(r.events)
	<-r.stopped
}

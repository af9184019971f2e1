package reconcile

import (
	"errors"
	"sort"

	"github.com/nagham05/chatterly/internal/model"
	"github.com/nagham05/chatterly/internal/store"
)

// State is the merged message state for one open conversation, fed by one or
// more snapshot sources. It has a single writer: the Reconciler loop applies
// events one at a time, so none of this needs a lock.
type State struct {
	me      string
	peer    string
	groupID string

	// docs per source; a snapshot from a source replaces its slice wholesale
	sources map[string]map[string]model.Message
	// order in which sources first appeared, so union order is deterministic
	sourceOrder []string

	// ids seen deleted this session; a stale snapshot that still carries the
	// undeleted doc cannot revive it
	tombstones map[string]struct{}

	// per-source failure state; a broken source degrades, others keep serving
	srcErr map[string]error

	pending map[string]model.Message
}

func NewDirectState(me, peer string) *State {
	s := newState()
	s.me, s.peer = me, peer
	return s
}

func NewGroupState(me, groupID string) *State {
	s := newState()
	s.me, s.groupID = me, groupID
	return s
}

func newState() *State {
	return &State{
		sources:    make(map[string]map[string]model.Message),
		tombstones: make(map[string]struct{}),
		srcErr:     make(map[string]error),
		pending:    make(map[string]model.Message),
	}
}

// ApplySnapshot replaces everything previously known from source with the
// snapshot's contents. Applying the same snapshot twice is a no-op on the
// resulting view.
func (s *State) ApplySnapshot(source string, snap store.MessageSnapshot) {
	if _, ok := s.sources[source]; !ok {
		s.sourceOrder = append(s.sourceOrder, source)
		s.sources[source] = nil
	}
	if snap.Err != nil {
		// keep the source's last good slice; only record the failure
		s.srcErr[source] = snap.Err
		return
	}
	delete(s.srcErr, source)

	docs := make(map[string]model.Message, len(snap.Messages))
	for _, m := range snap.Messages {
		docs[m.ID] = m
		if m.Deleted {
			s.tombstones[m.ID] = struct{}{}
		}
		delete(s.pending, m.ID)
	}
	s.sources[source] = docs
}

// AddPending records an optimistic send overlay entry. The overlay is kept
// apart from the authoritative map and is cleared when the same id echoes
// back in a snapshot.
func (s *State) AddPending(m model.Message) {
	s.pending[m.ID] = m
}

// DropPending removes an overlay entry whose send failed.
func (s *State) DropPending(id string) {
	delete(s.pending, id)
}

func (s *State) inConversation(m *model.Message) bool {
	if s.groupID != "" {
		return m.GroupID == s.groupID
	}
	return m.InConversation(s.me, s.peer)
}

// View recomputes the visible ordered sequence and its derived groupings.
func (s *State) View() View {
	merged := make(map[string]model.Message)
	for _, src := range s.sourceOrder {
		for id, m := range s.sources[src] {
			merged[id] = m
		}
	}

	visible := make([]model.Message, 0, len(merged))
	for id, m := range merged {
		if m.Deleted {
			continue
		}
		if _, dead := s.tombstones[id]; dead {
			continue
		}
		if !s.inConversation(&m) {
			continue
		}
		visible = append(visible, m)
	}
	sort.SliceStable(visible, func(i, j int) bool {
		if visible[i].SentAt != visible[j].SentAt {
			return visible[i].SentAt < visible[j].SentAt
		}
		return visible[i].ID < visible[j].ID
	})

	pending := make([]model.Message, 0, len(s.pending))
	for _, m := range s.pending {
		pending = append(pending, m)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].SentAt != pending[j].SentAt {
			return pending[i].SentAt < pending[j].SentAt
		}
		return pending[i].ID < pending[j].ID
	})

	v := View{
		Messages: visible,
		Pending:  pending,
		Sections: sectionsByDay(visible),
		Media:    sharedMedia(visible),
	}
	for _, err := range s.srcErr {
		if errors.Is(err, store.ErrIndexNotReady) {
			v.IndexNotReady = true
		} else if v.Err == nil {
			v.Err = err
		}
	}
	return v
}

package chatlist

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/nagham05/chatterly/internal/model"
	"github.com/nagham05/chatterly/internal/store"
)

// GroupKeyPrefix namespaces group ids in the combined list so they can never
// collide with user ids.
const GroupKeyPrefix = "group:"

// LoadState distinguishes "no data yet" from "index missing" from "broken".
// These render differently upstream and are never collapsed.
type LoadState int

const (
	StateLoading LoadState = iota
	StateReady
	StateIndexNotReady
	StateError
)

// BlockChecker is satisfied by the block tracker.
type BlockChecker interface {
	IsBlocked(peerID string) model.BlockStatus
}

// UserResolver supplies display names for direct rows. Satisfied by the
// store.
type UserResolver interface {
	UserByID(ctx context.Context, id string) (*model.User, error)
}

// List is the aggregated sidebar projection.
type List struct {
	Chats []model.ChatSummary `json:"chats"`
	State LoadState           `json:"state"`
	Err   error               `json:"-"`
}

// Aggregator combines three independent partial views -- chats derived from
// messages I sent, chats derived from messages I received, and groups I am a
// member of -- into one sorted ChatSummary list. Each partial view is rebuilt
// wholesale when its snapshot fires; the union happens at read-out.
type Aggregator struct {
	me     string
	blocks BlockChecker
	users  UserResolver
	ctx    context.Context
	log    *zap.SugaredLogger

	events  chan event
	cancels []store.CancelFunc
	onList  func(List)
	stopped chan struct{}

	// reducer-owned state below; only the loop touches it
	sent     map[string]peerChat
	received map[string]peerChat
	groups   []model.Group
	haveSent bool
	haveRecv bool
	srcErr   map[string]error
	names    map[string]string // peer id -> display name, filled lazily
}

// peerChat is one side's view of a direct conversation, keyed by the other
// participant's id.
type peerChat struct {
	peerID  string
	last    model.Message
	unread  int
	hasMsgs bool
}

type event struct {
	source string
	msgs   []model.Message
	groups []model.Group
	err    error
}

func New(ctx context.Context, st *store.Store, me string, blocks BlockChecker, onList func(List), log *zap.SugaredLogger) *Aggregator {
	a := &Aggregator{
		me:       me,
		blocks:   blocks,
		users:    st,
		ctx:      ctx,
		log:      log,
		events:   make(chan event, 16),
		onList:   onList,
		stopped:  make(chan struct{}),
		sent:     make(map[string]peerChat),
		received: make(map[string]peerChat),
		srcErr:   make(map[string]error),
		names:    make(map[string]string),
	}
	go a.loop()

	a.cancels = append(a.cancels,
		st.WatchMessages(ctx, store.SentBy(me), func(s store.MessageSnapshot) {
			a.events <- event{source: "sent", msgs: s.Messages, err: s.Err}
		}),
		st.WatchMessages(ctx, store.ReceivedBy(me), func(s store.MessageSnapshot) {
			a.events <- event{source: "received", msgs: s.Messages, err: s.Err}
		}),
		st.WatchGroups(ctx, me, func(s store.GroupSnapshot) {
			a.events <- event{source: "groups", groups: s.Groups, err: s.Err}
		}),
	)
	return a
}

// Refresh forces a rebuild from current state without new snapshot data.
// The block tracker pokes this when a block lands so IsBlocked flags on the
// existing list update immediately.
func (a *Aggregator) Refresh() {
	select {
	case a.events <- event{source: "refresh"}:
	case <-a.stopped:
	}
}

func (a *Aggregator) loop() {
	defer close(a.stopped)
	for ev := range a.events {
		a.apply(ev)
		a.onList(a.buildList())
	}
}

func (a *Aggregator) apply(ev event) {
	if ev.err != nil {
		a.srcErr[ev.source] = ev.err
		return
	}
	delete(a.srcErr, ev.source)

	switch ev.source {
	case "sent":
		a.sent = summarizeByPeer(ev.msgs, func(m *model.Message) string { return m.ReceiverID }, false)
		a.haveSent = true
	case "received":
		a.received = summarizeByPeer(ev.msgs, func(m *model.Message) string { return m.SenderID }, true)
		a.haveRecv = true
	case "groups":
		a.groups = ev.groups
	}
}

// summarizeByPeer rebuilds one partial view from a full message snapshot.
// countUnread is set for the received view only: unread is the count of
// peer-to-me messages not yet read.
func summarizeByPeer(msgs []model.Message, peerOf func(*model.Message) string, countUnread bool) map[string]peerChat {
	out := make(map[string]peerChat)
	for _, m := range msgs {
		if m.Deleted {
			continue
		}
		peer := peerOf(&m)
		if peer == "" {
			continue
		}
		pc := out[peer]
		pc.peerID = peer
		if !pc.hasMsgs || pc.last.SentAt.Before(m.SentAt) {
			pc.last = m
			pc.hasMsgs = true
		}
		if countUnread && !m.Read {
			pc.unread++
		}
		out[peer] = pc
	}
	return out
}

// displayName resolves the peer's user name, caching hits for the life of
// the aggregator. A failed lookup falls back to the raw id and is retried on
// the next rebuild.
func (a *Aggregator) displayName(peerID string) string {
	if n, ok := a.names[peerID]; ok {
		return n
	}
	u, err := a.users.UserByID(a.ctx, peerID)
	if err != nil {
		a.log.Debugw("peer name lookup", "peer_id", peerID, "err", err)
		return peerID
	}
	a.names[peerID] = u.Name
	return u.Name
}

func (a *Aggregator) buildList() List {
	l := List{State: StateReady}
	for _, err := range a.srcErr {
		if errors.Is(err, store.ErrIndexNotReady) {
			l.State = StateIndexNotReady
		} else {
			l.State = StateError
			l.Err = err
		}
		return l
	}
	if !a.haveSent || !a.haveRecv {
		l.State = StateLoading
		return l
	}

	// union the two direct views; the received side wins conflicts when its
	// message is newer (last writer wins per field owner)
	direct := make(map[string]peerChat, len(a.sent))
	for id, pc := range a.sent {
		direct[id] = pc
	}
	for id, pc := range a.received {
		if prev, ok := direct[id]; ok {
			if prev.hasMsgs && prev.last.SentAt > pc.last.SentAt {
				pc.last = prev.last
			}
		}
		direct[id] = pc
	}

	for _, pc := range direct {
		sum := model.ChatSummary{
			ID:          pc.peerID,
			DisplayName: a.displayName(pc.peerID),
			UnreadCount: pc.unread,
			IsBlocked:   a.blocks.IsBlocked(pc.peerID).Blocked,
		}
		if pc.hasMsgs {
			sum.LastMessage = pc.last.Content
			sum.LastMessageTime = pc.last.SentAt
			sum.LastMessageType = pc.last.Type
		}
		l.Chats = append(l.Chats, sum)
	}

	for _, g := range a.groups {
		l.Chats = append(l.Chats, model.ChatSummary{
			ID:              GroupKeyPrefix + g.ID,
			IsGroup:         true,
			DisplayName:     g.Name,
			LastMessage:     g.LastMessage,
			LastMessageTime: g.LastMessageTime,
			LastMessageType: model.TypeText,
		})
	}

	// newest first; chats with no timestamp yet sort last
	sort.SliceStable(l.Chats, func(i, j int) bool {
		ti, tj := l.Chats[i].LastMessageTime, l.Chats[j].LastMessageTime
		if ti != tj {
			return ti > tj
		}
		return l.Chats[i].ID < l.Chats[j].ID
	})
	return l
}

// Close cancels the snapshot sources, waits them out, then stops the loop.
func (a *Aggregator) Close() {
	for _, cancel := range a.cancels {
		cancel()
	}
	close(a.events)
	<-a.stopped
}

package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/nagham05/chatterly/internal/block"
	"github.com/nagham05/chatterly/internal/chatlist"
	"github.com/nagham05/chatterly/internal/hub"
	"github.com/nagham05/chatterly/internal/model"
	"github.com/nagham05/chatterly/internal/reconcile"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	presenceTTL  = 90 * time.Second
)

// userSync is the per-user live state shared by all of that user's
// connections on this instance: one block tracker and one chat list
// aggregator. Refcounted so a second tab reuses the running watchers.
type userSync struct {
	me      string
	refs    int
	cancel  context.CancelFunc
	tracker *block.Tracker
	agg     *chatlist.Aggregator
}

type syncRegistry struct {
	mu    sync.Mutex
	srv   *Server
	users map[string]*userSync
}

func newSyncRegistry(s *Server) *syncRegistry {
	return &syncRegistry{srv: s, users: make(map[string]*userSync)}
}

func (r *syncRegistry) acquire(userID string) *userSync {
	r.mu.Lock()
	defer r.mu.Unlock()
	if us, ok := r.users[userID]; ok {
		us.refs++
		return us
	}
	ctx, cancel := context.WithCancel(context.Background())
	us := &userSync{me: userID, refs: 1, cancel: cancel}
	// tracker before aggregator: the aggregator loop reads IsBlocked from
	// its first snapshot on, so the checker must be fully built
	us.tracker = block.NewTracker(ctx, r.srv.st, userID, nil, r.srv.log)
	us.agg = chatlist.New(ctx, r.srv.st, userID, us.tracker, func(l chatlist.List) {
		r.srv.hub.LocalOnly(userID, encodeFrame(listFrame(l)))
	}, r.srv.log)
	// block changes flip IsBlocked flags on existing summaries
	us.tracker.SetOnChange(us.agg.Refresh)
	r.users[userID] = us
	return us
}

func (r *syncRegistry) release(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	us, ok := r.users[userID]
	if !ok {
		return
	}
	us.refs--
	if us.refs > 0 {
		return
	}
	delete(r.users, userID)
	us.cancel()
	// tracker first: its onChange pokes the aggregator
	us.tracker.Close()
	us.agg.Close()
}

type wsMessageBody struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	MsgType  model.MessageType `json:"msg_type"`
	FileName string            `json:"file_name"`
}

type wsCommand struct {
	Type    string         `json:"type"`
	PeerID  string         `json:"peer_id,omitempty"`
	GroupID string         `json:"group_id,omitempty"`
	Message *wsMessageBody `json:"message,omitempty"`
}

type wsFrame struct {
	Type    string          `json:"type"`
	PeerID  string          `json:"peer_id,omitempty"`
	GroupID string          `json:"group_id,omitempty"`
	List    *chatlist.List  `json:"list,omitempty"`
	View    *reconcile.View `json:"view,omitempty"`
	State   string          `json:"state,omitempty"`
	Error   string          `json:"error,omitempty"`
	Ack     string          `json:"ack,omitempty"`
}

func listFrame(l chatlist.List) wsFrame {
	f := wsFrame{Type: "chat_list", List: &l, State: loadStateName(l.State)}
	if l.Err != nil {
		f.Error = l.Err.Error()
	}
	return f
}

func loadStateName(s chatlist.LoadState) string {
	switch s {
	case chatlist.StateLoading:
		return "loading"
	case chatlist.StateReady:
		return "ready"
	case chatlist.StateIndexNotReady:
		return "index_not_ready"
	default:
		return "error"
	}
}

func encodeFrame(f wsFrame) []byte {
	b, _ := json.Marshal(f)
	return b
}

// wsConn is one websocket connection's mutable state. Only the read loop
// touches it.
type wsConn struct {
	srv    *Server
	user   *model.User
	client *hub.Client

	rec     *reconcile.Reconciler
	recStop context.CancelFunc
	peerID  string
	groupID string
}

func (s *Server) handleWS(conn *websocket.Conn) {
	u, _ := conn.Locals(localUser).(*model.User)
	if u == nil {
		conn.Close()
		return
	}
	log := s.log.With("user_id", u.ID)
	log.Info("websocket connected")

	client := &hub.Client{UserID: u.ID, Send: make(chan []byte, 64)}
	s.hub.Add(client)
	s.syncs.acquire(u.ID)

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.presence.SetOnline(ctx, u.ID, presenceTTL); err != nil {
		log.Warnw("presence set failed", "error", err)
	}

	wc := &wsConn{srv: s, user: u, client: client}

	done := make(chan struct{})
	go wc.writeLoop(ctx, conn, done)

	wc.readLoop(conn)

	wc.closeConversation()
	cancel()
	<-done
	s.hub.Remove(client)
	s.syncs.release(u.ID)
	if err := s.presence.SetOffline(context.Background(), u.ID); err != nil {
		log.Warnw("presence clear failed", "error", err)
	}
	log.Info("websocket disconnected")
}

func (c *wsConn) writeLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case payload, ok := <-c.client.Send:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			// keep the presence key alive while the socket is
			if err := c.srv.presence.SetOnline(ctx, c.user.ID, presenceTTL); err != nil {
				c.srv.log.Debugw("presence refresh failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *wsConn) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.send(wsFrame{Type: "error", Error: "malformed command"})
			continue
		}
		c.handle(cmd)
	}
}

func (c *wsConn) handle(cmd wsCommand) {
	switch cmd.Type {
	case "open_direct":
		c.openDirect(cmd.PeerID)
	case "open_group":
		c.openGroup(cmd.GroupID)
	case "close":
		c.closeConversation()
	case "send":
		c.sendMessage(cmd)
	default:
		c.send(wsFrame{Type: "error", Error: "unknown command " + cmd.Type})
	}
}

// openDirect swaps the active conversation. The previous reconciler is torn
// down first so no stale views land after the switch.
func (c *wsConn) openDirect(peerID string) {
	if peerID == "" || peerID == c.user.ID {
		c.send(wsFrame{Type: "error", Error: "invalid peer_id"})
		return
	}
	c.closeConversation()

	ctx, cancel := context.WithCancel(context.Background())
	c.recStop = cancel
	c.peerID = peerID
	c.rec = reconcile.NewDirect(ctx, c.srv.st, c.user.ID, peerID, func(v reconcile.View) {
		c.send(viewFrame(peerID, "", v))
		// displaying unread peer messages reads them; covers both the
		// initial snapshot and messages landing while the chat is open.
		// MarkRead is idempotent, and the resulting snapshot carries the
		// read flags so this does not retrigger.
		if hasUnreadFrom(v, c.user.ID, peerID) {
			go func() {
				if _, err := c.srv.chats.MarkRead(context.Background(), c.user, peerID); err != nil {
					c.srv.log.Warnw("mark read failed", "peer_id", peerID, "error", err)
				}
			}()
		}
	}, c.srv.log)
}

// hasUnreadFrom reports whether the view shows peer-to-me messages not yet
// flagged read.
func hasUnreadFrom(v reconcile.View, me, peerID string) bool {
	for _, m := range v.Messages {
		if m.SenderID == peerID && m.ReceiverID == me && !m.Read {
			return true
		}
	}
	return false
}

func (c *wsConn) openGroup(groupID string) {
	if groupID == "" {
		c.send(wsFrame{Type: "error", Error: "invalid group_id"})
		return
	}
	if _, err := c.srv.groups.Get(context.Background(), c.user, groupID); err != nil {
		c.send(wsFrame{Type: "error", GroupID: groupID, Error: err.Error()})
		return
	}
	c.closeConversation()

	ctx, cancel := context.WithCancel(context.Background())
	c.recStop = cancel
	c.groupID = groupID
	c.rec = reconcile.NewGroup(ctx, c.srv.st, c.user.ID, groupID, func(v reconcile.View) {
		c.send(viewFrame("", groupID, v))
	}, c.srv.log)
}

func (c *wsConn) closeConversation() {
	if c.rec == nil {
		return
	}
	c.recStop()
	c.rec.Close()
	c.rec = nil
	c.recStop = nil
	c.peerID = ""
	c.groupID = ""
}

// sendMessage runs the optimistic-send flow: the message appears in the view
// as a pending overlay entry immediately, and graduates (or disappears) when
// the write settles.
func (c *wsConn) sendMessage(cmd wsCommand) {
	if cmd.Message == nil {
		c.send(wsFrame{Type: "error", Error: "send requires a message"})
		return
	}
	if c.rec == nil {
		c.send(wsFrame{Type: "error", Error: "no open conversation"})
		return
	}
	msg := c.pendingMessage(cmd)
	id := msg.ID
	c.rec.AddPending(msg)

	var err error
	if c.groupID != "" {
		_, err = c.srv.groups.SendMessage(context.Background(), c.user, c.groupID, &msg)
	} else {
		_, err = c.srv.chats.Send(context.Background(), c.user, &msg)
	}
	if err != nil {
		c.rec.DropPending(id)
		c.send(wsFrame{Type: "send_failed", Ack: id, Error: err.Error()})
		return
	}
	c.send(wsFrame{Type: "sent", Ack: id})
}

// pendingMessage materializes the overlay entry for a send command:
// correlation id assigned here unless the client supplied one, timestamp
// from the server clock.
func (c *wsConn) pendingMessage(cmd wsCommand) model.Message {
	id := cmd.Message.ID
	if id == "" {
		id = uuid.NewString()
	}
	return model.Message{
		ID:         id,
		SenderID:   c.user.ID,
		SenderName: c.user.Name,
		ReceiverID: c.peerID,
		GroupID:    c.groupID,
		Content:    cmd.Message.Content,
		Type:       cmd.Message.MsgType,
		FileName:   cmd.Message.FileName,
		SentAt:     model.TimestampFromTime(c.srv.clk.Now()),
	}
}

func viewFrame(peerID, groupID string, v reconcile.View) wsFrame {
	f := wsFrame{Type: "conversation", PeerID: peerID, GroupID: groupID, View: &v}
	switch {
	case v.IndexNotReady:
		f.State = "index_not_ready"
	case v.Err != nil:
		f.State = "error"
		f.Error = v.Err.Error()
	default:
		f.State = "ready"
	}
	return f
}

// send queues a frame on this connection's outbox, dropping when the client
// cannot keep up. Every frame is a full snapshot so a dropped one is made
// obsolete by the next.
func (c *wsConn) send(f wsFrame) {
	select {
	case c.client.Send <- encodeFrame(f):
	default:
		c.srv.log.Warnw("ws outbox full, dropping frame", "user_id", c.user.ID, "type", f.Type)
	}
}

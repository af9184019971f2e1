package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nagham05/chatterly/internal/model"
)

// Snapshots are full-replace deliveries: every event carries the complete
// current set of documents matching the filter, never a diff. A failed query
// is delivered as Err on the snapshot and the watch keeps listening; it never
// tears down the subscription.
type MessageSnapshot struct {
	Messages []model.Message
	Err      error
}

type GroupSnapshot struct {
	Groups []model.Group
	Err    error
}

type BlockSnapshot struct {
	Blocks []model.BlockRelationship
	Err    error
}

// CancelFunc stops a watch. It does not return until the watch goroutine has
// exited, so no stale callback can fire into a conversation that has been
// switched away from.
type CancelFunc func()

// Filter constructors for the query shapes the sync layer uses.

func SentBy(userID string) bson.M { return bson.M{"sender_id": userID} }

func ReceivedBy(userID string) bson.M { return bson.M{"receiver_id": userID} }

func InGroup(groupID string) bson.M { return bson.M{"group_id": groupID} }

func MemberOf(userID string) bson.M { return bson.M{"members": userID} }

func Involving(userID string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"blocker_id": userID},
		bson.M{"blocked_id": userID},
	}}
}

func (s *Store) WatchMessages(ctx context.Context, filter bson.M, h func(MessageSnapshot)) CancelFunc {
	return s.watchMessageColl(ctx, collMessages, filter, h)
}

func (s *Store) WatchGroupMessages(ctx context.Context, groupID string, h func(MessageSnapshot)) CancelFunc {
	return s.watchMessageColl(ctx, collGroupMessages, InGroup(groupID), h)
}

func (s *Store) watchMessageColl(ctx context.Context, coll string, filter bson.M, h func(MessageSnapshot)) CancelFunc {
	return s.watch(ctx, coll, func(ctx context.Context) {
		msgs, err := s.queryMessages(ctx, coll, filter)
		h(MessageSnapshot{Messages: msgs, Err: err})
	})
}

func (s *Store) WatchGroups(ctx context.Context, userID string, h func(GroupSnapshot)) CancelFunc {
	return s.watch(ctx, collGroups, func(ctx context.Context) {
		cur, err := s.db.Collection(collGroups).Find(ctx, MemberOf(userID))
		if err != nil {
			h(GroupSnapshot{Err: classify(err)})
			return
		}
		defer cur.Close(ctx)
		var groups []model.Group
		if err := cur.All(ctx, &groups); err != nil {
			h(GroupSnapshot{Err: classify(err)})
			return
		}
		h(GroupSnapshot{Groups: groups})
	})
}

// WatchBlocks subscribes to both directions at once, so a viewer sees blocks
// they created and blocks created against them without polling.
func (s *Store) WatchBlocks(ctx context.Context, userID string, h func(BlockSnapshot)) CancelFunc {
	return s.watch(ctx, collBlocked, func(ctx context.Context) {
		cur, err := s.db.Collection(collBlocked).Find(ctx, Involving(userID))
		if err != nil {
			h(BlockSnapshot{Err: classify(err)})
			return
		}
		defer cur.Close(ctx)
		var blocks []model.BlockRelationship
		if err := cur.All(ctx, &blocks); err != nil {
			h(BlockSnapshot{Err: classify(err)})
			return
		}
		h(BlockSnapshot{Blocks: blocks})
	})
}

func (s *Store) queryMessages(ctx context.Context, coll string, filter bson.M) ([]model.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sent_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.db.Collection(coll).Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err)
	}
	defer cur.Close(ctx)
	var out []model.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// watch delivers an initial snapshot, then re-runs the query on every change
// event on the collection. The change stream is only a wakeup signal; the
// query result is the authoritative snapshot.
func (s *Store) watch(ctx context.Context, coll string, run func(context.Context)) CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		run(ctx)
		for ctx.Err() == nil {
			cs, err := s.db.Collection(coll).Watch(ctx, mongo.Pipeline{})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Warnw("change stream open", "collection", coll, "err", classify(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}
			for cs.Next(ctx) {
				run(ctx)
			}
			_ = cs.Close(context.Background())
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

package store

import (
	"context"
	"regexp"
	"time"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/nagham05/chatterly/internal/model"
)

const (
	collUsers         = "users"
	collMessages      = "messages"
	collGroups        = "groups"
	collGroupMessages = "group_messages"
	collBlocked       = "blocked"
)

// Store is the document-store boundary. All reads and writes against the
// remote database go through here; mutations additionally pass a circuit
// breaker so a flapping remote fails fast instead of queueing timeouts.
type Store struct {
	db      *mongo.Database
	breaker *gobreaker.CircuitBreaker
	log     *zap.SugaredLogger
}

func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func New(db *mongo.Database, log *zap.SugaredLogger) *Store {
	s := &Store{
		db:  db,
		log: log,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "document-store",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
	s.ensureIndexes()
	return s
}

func (s *Store) ensureIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	idx := func(coll string, keys bson.D, name string, unique bool) {
		m := mongo.IndexModel{Keys: keys, Options: options.Index().SetName(name).SetUnique(unique)}
		if _, err := s.db.Collection(coll).Indexes().CreateOne(ctx, m); err != nil {
			s.log.Warnw("create index", "collection", coll, "index", name, "err", err)
		}
	}

	idx(collUsers, bson.D{{Key: "email", Value: 1}}, "email_idx", true)
	idx(collMessages, bson.D{{Key: "sender_id", Value: 1}, {Key: "sent_at", Value: 1}}, "sender_sent_idx", false)
	idx(collMessages, bson.D{{Key: "receiver_id", Value: 1}, {Key: "sent_at", Value: 1}}, "receiver_sent_idx", false)
	idx(collGroupMessages, bson.D{{Key: "group_id", Value: 1}, {Key: "sent_at", Value: 1}}, "group_sent_idx", false)
	idx(collGroups, bson.D{{Key: "members", Value: 1}}, "members_idx", false)
	idx(collBlocked, bson.D{{Key: "blocker_id", Value: 1}, {Key: "blocked_id", Value: 1}}, "block_pair_idx", true)
}

// write funnels every mutation through the breaker.
func (s *Store) write(fn func() error) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return ErrUnavailable
	}
	return classify(err)
}

func newID() string { return primitive.NewObjectID().Hex() }

// --- users ---

func (s *Store) InsertUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = newID()
	}
	return s.write(func() error {
		_, err := s.db.Collection(collUsers).InsertOne(ctx, u)
		return err
	})
}

func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.Collection(collUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err != nil {
		return nil, classify(err)
	}
	return &u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.db.Collection(collUsers).FindOne(ctx, bson.M{"email": email}).Decode(&u)
	if err != nil {
		return nil, classify(err)
	}
	return &u, nil
}

// emailPrefixFilter builds a case-insensitive anchored prefix match; the
// query is quoted so regex metacharacters in user input match literally.
func emailPrefixFilter(query string) bson.M {
	return bson.M{"email": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(query), Options: "i"}}
}

// SearchUsers finds users whose email starts with query, for starting a new
// conversation. Results are capped and ordered by email.
func (s *Store) SearchUsers(ctx context.Context, query string, limit int64) ([]model.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "email", Value: 1}}).
		SetLimit(limit)
	cur, err := s.db.Collection(collUsers).Find(ctx, emailPrefixFilter(query), opts)
	if err != nil {
		return nil, classify(err)
	}
	var users []model.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, classify(err)
	}
	return users, nil
}

func (s *Store) UpdateUserProfile(ctx context.Context, id string, fields bson.M) error {
	return s.write(func() error {
		res, err := s.db.Collection(collUsers).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// --- direct messages ---

func (s *Store) InsertMessage(ctx context.Context, m *model.Message) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return s.write(func() error {
		_, err := s.db.Collection(collMessages).InsertOne(ctx, m)
		return err
	})
}

func (s *Store) MessageByID(ctx context.Context, id string) (*model.Message, error) {
	return s.messageByID(ctx, collMessages, id)
}

func (s *Store) messageByID(ctx context.Context, coll, id string) (*model.Message, error) {
	var m model.Message
	err := s.db.Collection(coll).FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err != nil {
		return nil, classify(err)
	}
	return &m, nil
}

// MessagesBetween pages a direct conversation backwards from the cursor.
// A zero before cursor starts at the newest message. Results come back in
// chronological order.
func (s *Store) MessagesBetween(ctx context.Context, a, b string, limit int64, before model.Timestamp) ([]model.Message, error) {
	filter := bson.M{
		"sender_id":   bson.M{"$in": []string{a, b}},
		"receiver_id": bson.M{"$in": []string{a, b}},
	}
	if !before.IsZero() {
		filter["sent_at"] = bson.M{"$lt": primitive.NewDateTimeFromTime(before.Time())}
	}
	opts := options.Find().SetSort(bson.D{{Key: "sent_at", Value: -1}}).SetLimit(limit)
	cur, err := s.db.Collection(collMessages).Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err)
	}
	defer cur.Close(ctx)

	var out []model.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, classify(err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) UpdateMessage(ctx context.Context, id string, fields bson.M) error {
	return s.updateMessage(ctx, collMessages, id, fields)
}

func (s *Store) updateMessage(ctx context.Context, coll, id string, fields bson.M) error {
	return s.write(func() error {
		res, err := s.db.Collection(coll).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// MarkMessagesRead flags every unread message from peer to reader as read.
// Returns the count flagged.
func (s *Store) MarkMessagesRead(ctx context.Context, readerID, peerID string, readAt model.Timestamp) (int64, error) {
	var n int64
	err := s.write(func() error {
		res, err := s.db.Collection(collMessages).UpdateMany(ctx,
			bson.M{"sender_id": peerID, "receiver_id": readerID, "read": false},
			bson.M{"$set": bson.M{"read": true, "read_at": primitive.NewDateTimeFromTime(readAt.Time())}},
		)
		if err != nil {
			return err
		}
		n = res.ModifiedCount
		return nil
	})
	return n, err
}

// --- group messages ---

func (s *Store) InsertGroupMessage(ctx context.Context, m *model.Message) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return s.write(func() error {
		_, err := s.db.Collection(collGroupMessages).InsertOne(ctx, m)
		return err
	})
}

func (s *Store) GroupMessageByID(ctx context.Context, id string) (*model.Message, error) {
	return s.messageByID(ctx, collGroupMessages, id)
}

func (s *Store) UpdateGroupMessage(ctx context.Context, id string, fields bson.M) error {
	return s.updateMessage(ctx, collGroupMessages, id, fields)
}

// LatestGroupTextMessage returns the newest non-deleted text message in a
// group, used to recompute the denormalized last-message fields.
func (s *Store) LatestGroupTextMessage(ctx context.Context, groupID string) (*model.Message, error) {
	filter := bson.M{"group_id": groupID, "type": model.TypeText, "deleted": bson.M{"$ne": true}}
	opts := options.FindOne().SetSort(bson.D{{Key: "sent_at", Value: -1}})
	var m model.Message
	err := s.db.Collection(collGroupMessages).FindOne(ctx, filter, opts).Decode(&m)
	if err != nil {
		return nil, classify(err)
	}
	return &m, nil
}

// --- groups ---

func (s *Store) InsertGroup(ctx context.Context, g *model.Group) error {
	if g.ID == "" {
		g.ID = newID()
	}
	return s.write(func() error {
		_, err := s.db.Collection(collGroups).InsertOne(ctx, g)
		return err
	})
}

func (s *Store) GroupByID(ctx context.Context, id string) (*model.Group, error) {
	var g model.Group
	err := s.db.Collection(collGroups).FindOne(ctx, bson.M{"_id": id}).Decode(&g)
	if err != nil {
		return nil, classify(err)
	}
	return &g, nil
}

func (s *Store) UpdateGroup(ctx context.Context, id string, fields bson.M) error {
	return s.write(func() error {
		res, err := s.db.Collection(collGroups).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	return s.write(func() error {
		res, err := s.db.Collection(collGroups).DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return ErrNotFound
		}
		// the message history goes with the group
		_, err = s.db.Collection(collGroupMessages).DeleteMany(ctx, bson.M{"group_id": id})
		return err
	})
}

// --- block relationships ---

func (s *Store) InsertBlock(ctx context.Context, b *model.BlockRelationship) error {
	if b.ID == "" {
		b.ID = newID()
	}
	return s.write(func() error {
		_, err := s.db.Collection(collBlocked).InsertOne(ctx, b)
		return err
	})
}

func (s *Store) FindBlock(ctx context.Context, blockerID, blockedID string) (*model.BlockRelationship, error) {
	var b model.BlockRelationship
	err := s.db.Collection(collBlocked).
		FindOne(ctx, bson.M{"blocker_id": blockerID, "blocked_id": blockedID}).Decode(&b)
	if err != nil {
		return nil, classify(err)
	}
	return &b, nil
}

// DeleteBlock removes the one relationship row for the pair, located by its
// fields rather than an assumed id.
func (s *Store) DeleteBlock(ctx context.Context, blockerID, blockedID string) error {
	return s.write(func() error {
		res, err := s.db.Collection(collBlocked).
			DeleteOne(ctx, bson.M{"blocker_id": blockerID, "blocked_id": blockedID})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return ErrNotFound
		}
		return nil
	})
}

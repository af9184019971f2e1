package block

import (
	"context"
	"errors"

	"github.com/nagham05/chatterly/internal/clock"
	"github.com/nagham05/chatterly/internal/events"
	"github.com/nagham05/chatterly/internal/model"
	"github.com/nagham05/chatterly/internal/store"
)

var ErrSelfBlock = errors.New("cannot block yourself")

// Service issues block and unblock mutations. Blocking is exclusive-acquire:
// exactly one relationship row per (blocker, blocked) pair.
type Service struct {
	st  *store.Store
	pub *events.Publisher
	clk clock.Clock
}

func NewService(st *store.Store, pub *events.Publisher, clk clock.Clock) *Service {
	return &Service{st: st, pub: pub, clk: clk}
}

// Block creates the single relationship row for (actor, peer). Blocking an
// already-blocked peer is a no-op.
func (s *Service) Block(ctx context.Context, actorID, peerID string) error {
	if peerID == actorID {
		return ErrSelfBlock
	}
	if _, err := s.st.FindBlock(ctx, actorID, peerID); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	rel := &model.BlockRelationship{
		BlockerID: actorID,
		BlockedID: peerID,
		BlockedAt: model.TimestampFromTime(s.clk.Now()),
	}
	if err := s.st.InsertBlock(ctx, rel); err != nil {
		return err
	}
	s.pub.Publish(ctx, events.UserBlocked, actorID, map[string]string{"blocked_id": peerID})
	return nil
}

// Unblock locates and removes the specific row for (actor, peer).
func (s *Service) Unblock(ctx context.Context, actorID, peerID string) error {
	if err := s.st.DeleteBlock(ctx, actorID, peerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	s.pub.Publish(ctx, events.UserUnblocked, actorID, map[string]string{"blocked_id": peerID})
	return nil
}

// Status answers one viewer's blocked state against a peer with on-demand
// store reads, for callers without a live tracker.
func (s *Service) Status(ctx context.Context, viewerID, peerID string) (model.BlockStatus, error) {
	if _, err := s.st.FindBlock(ctx, viewerID, peerID); err == nil {
		return model.BlockStatus{Blocked: true, Direction: model.BlockedByMe}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return model.BlockStatus{}, err
	}
	if _, err := s.st.FindBlock(ctx, peerID, viewerID); err == nil {
		return model.BlockStatus{Blocked: true, Direction: model.BlockedByThem}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return model.BlockStatus{}, err
	}
	return model.BlockStatus{}, nil
}

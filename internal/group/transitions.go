package group

import (
	"errors"
	"strings"

	"github.com/nagham05/chatterly/internal/model"
)

// Validation failures. All are rejected synchronously, before any remote
// mutation is issued.
var (
	ErrEmptyName       = errors.New("group name cannot be empty")
	ErrNoMembers       = errors.New("select at least one member")
	ErrNotMember       = errors.New("you are not a member of this group")
	ErrNotAdmin        = errors.New("only group admins can do this")
	ErrNotCreator      = errors.New("only the group creator can do this")
	ErrCreatorRemove   = errors.New("the group creator cannot be removed")
	ErrCreatorDemote   = errors.New("the group creator cannot lose admin status")
	ErrCreatorLeave    = errors.New("the group creator cannot leave; delete the group instead")
	ErrWouldEmptyGroup = errors.New("cannot remove all members from the group")
)

// The transitions below are pure: they validate and mutate a Group value and
// never touch the store. After every transition the group holds
// creator in admins, admins subset of members, members non-empty.

func newGroup(name, creatorID string, memberIDs []string) (*model.Group, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}
	if len(memberIDs) == 0 {
		return nil, ErrNoMembers
	}
	g := &model.Group{
		Name:      strings.TrimSpace(name),
		CreatorID: creatorID,
		Members:   []string{creatorID},
		Admins:    []string{creatorID},
	}
	addAll(&g.Members, memberIDs)
	return g, nil
}

func addMembers(g *model.Group, actorID string, ids []string) error {
	if !g.IsMember(actorID) {
		return ErrNotMember
	}
	addAll(&g.Members, ids)
	return nil
}

func removeMembers(g *model.Group, actorID string, ids []string) error {
	if !g.IsAdmin(actorID) {
		return ErrNotAdmin
	}
	for _, id := range ids {
		if id == g.CreatorID {
			return ErrCreatorRemove
		}
	}
	remaining := without(g.Members, ids)
	if len(remaining) == 0 {
		return ErrWouldEmptyGroup
	}
	g.Members = remaining
	g.Admins = without(g.Admins, ids)
	return nil
}

// makeAdmin reports false when the target already is an admin (no-op).
func makeAdmin(g *model.Group, actorID, memberID string) (bool, error) {
	if !g.IsAdmin(actorID) {
		return false, ErrNotAdmin
	}
	if !g.IsMember(memberID) {
		return false, ErrNotMember
	}
	if g.IsAdmin(memberID) {
		return false, nil
	}
	g.Admins = append(g.Admins, memberID)
	return true, nil
}

// removeAdmin reports false when the target was not an admin (no-op).
func removeAdmin(g *model.Group, actorID, memberID string) (bool, error) {
	if !g.IsAdmin(actorID) {
		return false, ErrNotAdmin
	}
	if memberID == g.CreatorID {
		return false, ErrCreatorDemote
	}
	if !g.IsAdmin(memberID) {
		return false, nil
	}
	g.Admins = without(g.Admins, []string{memberID})
	return true, nil
}

func leave(g *model.Group, actorID string) error {
	if !g.IsMember(actorID) {
		return ErrNotMember
	}
	if actorID == g.CreatorID {
		return ErrCreatorLeave
	}
	g.Members = without(g.Members, []string{actorID})
	g.Admins = without(g.Admins, []string{actorID})
	return nil
}

func addAll(dst *[]string, ids []string) {
	for _, id := range ids {
		if !contains(*dst, id) {
			*dst = append(*dst, id)
		}
	}
}

func without(ids, drop []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !contains(drop, id) {
			out = append(out, id)
		}
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

package group

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nagham05/chatterly/internal/model"
)

// invariants every group must hold after any sequence of transitions:
// creator is a member and an admin, every admin is a member, members nonempty.
func checkInvariants(t *testing.T, g *model.Group) {
	t.Helper()
	require.NotEmpty(t, g.Members)
	require.True(t, g.IsMember(g.CreatorID), "creator must stay a member")
	require.True(t, g.IsAdmin(g.CreatorID), "creator must stay an admin")
	for _, a := range g.Admins {
		require.True(t, g.IsMember(a), "admin %s must be a member", a)
	}
}

func testGroup(t *testing.T) *model.Group {
	t.Helper()
	g, err := newGroup("team", "creator", []string{"m1", "m2"})
	require.NoError(t, err)
	checkInvariants(t, g)
	return g
}

func TestNewGroupValidation(t *testing.T) {
	_, err := newGroup("  ", "creator", []string{"m1"})
	require.ErrorIs(t, err, ErrEmptyName)

	_, err = newGroup("team", "creator", nil)
	require.ErrorIs(t, err, ErrNoMembers)

	g, err := newGroup("team", "creator", []string{"m1", "m1", "creator"})
	require.NoError(t, err)
	require.Equal(t, []string{"creator", "m1"}, g.Members)
}

func TestAddMembersDeduplicates(t *testing.T) {
	g := testGroup(t)
	require.NoError(t, addMembers(g, "m1", []string{"m3", "m2", "m3"}))
	require.Equal(t, []string{"creator", "m1", "m2", "m3"}, g.Members)
	checkInvariants(t, g)
}

func TestAddMembersRequiresMembership(t *testing.T) {
	g := testGroup(t)
	require.ErrorIs(t, addMembers(g, "outsider", []string{"m3"}), ErrNotMember)
}

func TestRemoveMembersRequiresAdmin(t *testing.T) {
	g := testGroup(t)
	require.ErrorIs(t, removeMembers(g, "m1", []string{"m2"}), ErrNotAdmin)
}

func TestRemoveMembersRejectsCreatorInSet(t *testing.T) {
	g := testGroup(t)
	err := removeMembers(g, "creator", []string{"creator", "m1", "m2"})
	require.ErrorIs(t, err, ErrCreatorRemove)
	// rejected wholesale, nothing was removed
	require.Equal(t, []string{"creator", "m1", "m2"}, g.Members)
	checkInvariants(t, g)
}

func TestRemoveMembersDropsAdminStatus(t *testing.T) {
	g := testGroup(t)
	_, err := makeAdmin(g, "creator", "m1")
	require.NoError(t, err)

	require.NoError(t, removeMembers(g, "creator", []string{"m1"}))
	require.False(t, g.IsMember("m1"))
	require.False(t, g.IsAdmin("m1"))
	checkInvariants(t, g)
}

func TestMakeAdminGuards(t *testing.T) {
	g := testGroup(t)

	_, err := makeAdmin(g, "m1", "m2")
	require.ErrorIs(t, err, ErrNotAdmin)

	_, err = makeAdmin(g, "creator", "outsider")
	require.ErrorIs(t, err, ErrNotMember)

	changed, err := makeAdmin(g, "creator", "m1")
	require.NoError(t, err)
	require.True(t, changed)

	// promoting twice is a no-op
	changed, err = makeAdmin(g, "creator", "m1")
	require.NoError(t, err)
	require.False(t, changed)
	checkInvariants(t, g)
}

func TestRemoveAdminGuards(t *testing.T) {
	g := testGroup(t)
	_, err := makeAdmin(g, "creator", "m1")
	require.NoError(t, err)

	_, err = removeAdmin(g, "m2", "m1")
	require.ErrorIs(t, err, ErrNotAdmin)

	_, err = removeAdmin(g, "m1", "creator")
	require.ErrorIs(t, err, ErrCreatorDemote)

	changed, err := removeAdmin(g, "creator", "m1")
	require.NoError(t, err)
	require.True(t, changed)
	require.False(t, g.IsAdmin("m1"))

	changed, err = removeAdmin(g, "creator", "m2")
	require.NoError(t, err)
	require.False(t, changed)
	checkInvariants(t, g)
}

func TestLeave(t *testing.T) {
	g := testGroup(t)
	_, err := makeAdmin(g, "creator", "m1")
	require.NoError(t, err)

	require.ErrorIs(t, leave(g, "outsider"), ErrNotMember)
	require.ErrorIs(t, leave(g, "creator"), ErrCreatorLeave)

	require.NoError(t, leave(g, "m1"))
	require.False(t, g.IsMember("m1"))
	require.False(t, g.IsAdmin("m1"))
	checkInvariants(t, g)
}

func TestTransitionSequencePreservesInvariants(t *testing.T) {
	g := testGroup(t)

	require.NoError(t, addMembers(g, "m2", []string{"m3", "m4"}))
	checkInvariants(t, g)

	_, err := makeAdmin(g, "creator", "m3")
	require.NoError(t, err)
	checkInvariants(t, g)

	require.NoError(t, removeMembers(g, "m3", []string{"m1", "m4"}))
	checkInvariants(t, g)

	require.NoError(t, leave(g, "m3"))
	checkInvariants(t, g)

	// only creator and m2 remain; removing m2 would not empty the group
	require.NoError(t, removeMembers(g, "creator", []string{"m2"}))
	checkInvariants(t, g)
	require.Equal(t, []string{"creator"}, g.Members)
}

package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devconnect/internal/apperr"
)

type memberKey struct{ project, user int64 }

type fakeLookup struct {
	roles map[memberKey]Role
	err   error
}

func (f *fakeLookup) MemberRole(_ context.Context, projectID, userID int64) (Role, error) {
	if f.err != nil {
		return None, f.err
	}
	return f.roles[memberKey{projectID, userID}], nil
}

func TestRoleOf(t *testing.T) {
	lookup := &fakeLookup{roles: map[memberKey]Role{
		{1, 10}: Admin,
		{1, 11}: Member,
		{2, 11}: Admin,
	}}
	auth := NewAuthority(lookup)
	ctx := context.Background()

	for key, want := range lookup.roles {
		got, err := auth.RoleOf(ctx, key.project, key.user)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// never added anywhere
	for _, project := range []int64{1, 2, 3} {
		got, err := auth.RoleOf(ctx, project, 99)
		require.NoError(t, err)
		assert.Equal(t, None, got)
	}

	// member of project 1 only
	got, err := auth.RoleOf(ctx, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, None, got)
}

func TestRoleOfLookupFailure(t *testing.T) {
	boom := errors.New("db down")
	auth := NewAuthority(&fakeLookup{err: boom})

	role, err := auth.RoleOf(context.Background(), 1, 1)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, None, role)
}

func TestAllowedMatrix(t *testing.T) {
	memberActions := []Action{ViewProject, CreatePhase, UpdatePhase, MovePhase, CreateTask, UpdateTask, MoveTask, CreateComment}
	adminActions := []Action{UpdateProject, DeleteProject, ManageMembers, DeletePhase, DeleteTask}

	for _, a := range memberActions {
		assert.True(t, Allowed(Admin, a))
		assert.True(t, Allowed(Member, a))
		assert.False(t, Allowed(None, a))
	}
	for _, a := range adminActions {
		assert.True(t, Allowed(Admin, a))
		assert.False(t, Allowed(Member, a))
		assert.False(t, Allowed(None, a))
	}
	assert.False(t, Allowed(Role("owner"), ViewProject), "unknown tags are not members")
}

func TestRequireReturnsForbidden(t *testing.T) {
	err := Require(Member, DeleteProject)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Authorization))

	err = Require(None, ViewProject)
	require.Error(t, err)
	assert.Equal(t, "Vous n'êtes pas membre de ce projet", apperr.Message(err))

	assert.NoError(t, Require(Admin, DeleteProject))
}

func TestAuthorize(t *testing.T) {
	auth := NewAuthority(&fakeLookup{roles: map[memberKey]Role{{1, 2}: Member}})

	role, err := auth.Authorize(context.Background(), 1, 2, UpdateTask)
	require.NoError(t, err)
	assert.Equal(t, Member, role)

	role, err = auth.Authorize(context.Background(), 1, 2, DeleteTask)
	assert.True(t, apperr.Is(err, apperr.Authorization))
	assert.Equal(t, Member, role)
}

func TestCanDeleteComment(t *testing.T) {
	assert.True(t, CanDeleteComment(Member, 5, 5), "author")
	assert.False(t, CanDeleteComment(Member, 5, 6), "other member")
	assert.True(t, CanDeleteComment(Admin, 5, 6), "admin")
	assert.False(t, CanDeleteComment(None, 5, 5), "author who left the project")
}

func TestEnsureAdminRemains(t *testing.T) {
	members := []Membership{{UserID: 1, Role: Admin}, {UserID: 2, Role: Member}}

	err := EnsureAdminRemains(members, 1, None)
	assert.True(t, apperr.Is(err, apperr.Conflict), "removing the last admin")

	err = EnsureAdminRemains(members, 1, Member)
	assert.True(t, apperr.Is(err, apperr.Conflict), "demoting the last admin")

	assert.NoError(t, EnsureAdminRemains(members, 2, None))
	assert.NoError(t, EnsureAdminRemains(members, 2, Admin))

	members = append(members, Membership{UserID: 3, Role: Admin})
	assert.NoError(t, EnsureAdminRemains(members, 1, None))
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{"admin": Admin, "ADMIN": Admin, "user": Member, "member": Member} {
		got, ok := ParseRole(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseRole("Developer")
	assert.False(t, ok)
}

func TestParseTitle(t *testing.T) {
	got, ok := ParseTitle("product  owner")
	require.True(t, ok)
	assert.Equal(t, TitleProductOwner, got)

	got, ok = ParseTitle("TESTER")
	require.True(t, ok)
	assert.Equal(t, TitleTester, got)

	_, ok = ParseTitle("Manager")
	assert.False(t, ok)

	assert.Equal(t, TitleAdmin, DefaultTitle(Admin))
	assert.Equal(t, TitleDeveloper, DefaultTitle(Member))
}

package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreatePermissionSkipsExisting(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	p := Permission{Name: "users.read", Description: "Read users", Resource: ResourceUsers, Action: ActionRead}
	require.NoError(t, store.CreatePermission(ctx, &p))

	again := Permission{Name: "users.read", Description: "changed", Resource: ResourceUsers, Action: ActionRead}
	require.NoError(t, store.CreatePermission(ctx, &again))

	permissions, err := store.ListPermissions(ctx)
	require.NoError(t, err)
	require.Len(t, permissions, 1)
	assert.Equal(t, "Read users", permissions[0].Description)
}

func TestStore_GetRoleByName(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	role := Role{Name: RoleEditor, Description: "Editor"}
	require.NoError(t, store.CreateRole(ctx, &role))

	got, err := store.GetRoleByName(ctx, RoleEditor)
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, got.Name)
	assert.NotEmpty(t, got.ID)

	_, err = store.GetRoleByName(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_AssignAndRevokeRole(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)
	userID := createTestUser(t, db, "alice@example.com")

	role := Role{Name: RoleUser, Description: "User"}
	require.NoError(t, store.CreateRole(ctx, &role))

	require.NoError(t, store.AssignRole(ctx, userID, role.ID))
	// Assigning the same role again is a no-op.
	require.NoError(t, store.AssignRole(ctx, userID, role.ID))

	roles, err := store.GetUserRoles(ctx, userID)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, RoleUser, roles[0].Name)

	require.NoError(t, store.RevokeRole(ctx, userID, role.ID))
	roles, err = store.GetUserRoles(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, roles)

	// Revoking an absent assignment is a no-op.
	require.NoError(t, store.RevokeRole(ctx, userID, role.ID))
}

func TestStore_AssignRoleByNameUnknownRole(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewStore(db)
	userID := createTestUser(t, db, "bob@example.com")

	err := store.AssignRoleByName(context.Background(), userID, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UserPermissionNames(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)
	userID := createTestUser(t, db, "carol@example.com")
	seedAndAssign(t, db, store, userID, RoleEditor, RoleUser)

	names, err := store.UserPermissionNames(ctx, userID)
	require.NoError(t, err)

	// The raw join may repeat permissions granted through multiple roles;
	// both editor and user grant posts.read and users.read.
	counts := map[string]int{}
	for _, n := range names {
		counts[n]++
	}
	assert.GreaterOrEqual(t, counts["posts.read"], 2)
	assert.GreaterOrEqual(t, counts["users.read"], 2)
	assert.Equal(t, 1, counts["posts.write"])
	assert.Zero(t, counts["users.delete"])
}

func TestStore_UserHasPermission(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)
	userID := createTestUser(t, db, "dave@example.com")
	seedAndAssign(t, db, store, userID, RoleUser)

	ok, err := store.UserHasPermission(ctx, userID, "users.read")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.UserHasPermission(ctx, userID, "users.write")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_DeleteRoleCascades(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)
	userID := createTestUser(t, db, "erin@example.com")
	seedAndAssign(t, db, store, userID, RoleUser)

	role, err := store.GetRoleByName(ctx, RoleUser)
	require.NoError(t, err)
	require.NoError(t, store.DeleteRole(ctx, role.ID))

	roles, err := store.GetUserRoles(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, roles)

	names, err := store.UserPermissionNames(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, names)

	err = store.DeleteRole(ctx, role.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

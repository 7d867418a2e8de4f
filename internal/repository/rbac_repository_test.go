// Copyright (c) 2025 Justin Cranford

package repository_test

import (
	"context"
	"testing"

	reauthDomain "github.com/reauth/reauth/internal/domain"

	googleUuid "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRbacRepository_DirectRoleIDsForUser_IncludesGroupAncestry(t *testing.T) {
	t.Parallel()

	factory := setupTestFactory(t)
	ctx := context.Background()

	realm := &reauthDomain.Realm{Name: "r1"}
	require.NoError(t, factory.RealmRepository().Create(ctx, realm))

	user := &reauthDomain.User{RealmID: realm.ID, Username: "alice", HashedPassword: "x"}
	require.NoError(t, factory.UserRepository().Create(ctx, user))

	rbac := factory.RbacRepository()

	parentGroup := &reauthDomain.Group{RealmID: realm.ID, Name: "engineering"}
	require.NoError(t, rbac.CreateGroup(ctx, parentGroup))

	childGroup := &reauthDomain.Group{RealmID: realm.ID, Name: "backend", ParentID: reauthDomain.NewNullableUUID(&parentGroup.ID)}
	require.NoError(t, rbac.CreateGroup(ctx, childGroup))

	directRole := &reauthDomain.Role{RealmID: realm.ID, Name: "direct-role"}
	require.NoError(t, rbac.CreateRole(ctx, directRole))
	require.NoError(t, rbac.AssignRoleToUser(ctx, user.ID, directRole.ID))

	inheritedRole := &reauthDomain.Role{RealmID: realm.ID, Name: "inherited-role"}
	require.NoError(t, rbac.CreateRole(ctx, inheritedRole))
	require.NoError(t, rbac.AssignRoleToGroup(ctx, parentGroup.ID, inheritedRole.ID))
	require.NoError(t, rbac.AssignUserToGroup(ctx, user.ID, childGroup.ID))

	roleIDs, err := rbac.DirectRoleIDsForUser(ctx, user.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []googleUuid.UUID{directRole.ID, inheritedRole.ID}, roleIDs)
}

func TestRbacRepository_SetGroupOrders(t *testing.T) {
	t.Parallel()

	factory := setupTestFactory(t)
	ctx := context.Background()
	rbac := factory.RbacRepository()

	realm := &reauthDomain.Realm{Name: "r1"}
	require.NoError(t, factory.RealmRepository().Create(ctx, realm))

	a := &reauthDomain.Group{RealmID: realm.ID, Name: "a", SortOrder: 5}
	b := &reauthDomain.Group{RealmID: realm.ID, Name: "b", SortOrder: 9}
	require.NoError(t, rbac.CreateGroup(ctx, a))
	require.NoError(t, rbac.CreateGroup(ctx, b))

	require.NoError(t, rbac.SetGroupOrders(ctx, []googleUuid.UUID{b.ID, a.ID}))

	children, err := rbac.ListChildren(ctx, googleUuid.Nil)
	require.NoError(t, err)
	require.Empty(t, children)

	reloadedB, err := rbac.FindGroupByID(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, 0, reloadedB.SortOrder)

	reloadedA, err := rbac.FindGroupByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 1, reloadedA.SortOrder)
}

func TestRbacRepository_CompositeEdges(t *testing.T) {
	t.Parallel()

	factory := setupTestFactory(t)
	ctx := context.Background()
	rbac := factory.RbacRepository()

	realm := &reauthDomain.Realm{Name: "r1"}
	require.NoError(t, factory.RealmRepository().Create(ctx, realm))

	parent := &reauthDomain.Role{RealmID: realm.ID, Name: "parent"}
	child := &reauthDomain.Role{RealmID: realm.ID, Name: "child"}
	require.NoError(t, rbac.CreateRole(ctx, parent))
	require.NoError(t, rbac.CreateRole(ctx, child))

	require.NoError(t, rbac.AddCompositeEdge(ctx, parent.ID, child.ID))

	edges, err := rbac.ListChildEdges(ctx, []googleUuid.UUID{parent.ID})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, child.ID, edges[0].ChildRoleID)

	require.NoError(t, rbac.RemoveCompositeEdge(ctx, parent.ID, child.ID))
	edges, err = rbac.ListChildEdges(ctx, []googleUuid.UUID{parent.ID})
	require.NoError(t, err)
	require.Empty(t, edges)
}

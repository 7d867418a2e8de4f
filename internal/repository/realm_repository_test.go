// Copyright (c) 2025 Justin Cranford

package repository_test

import (
	"context"
	"testing"

	reauthApperr "github.com/reauth/reauth/internal/apperr"
	reauthDomain "github.com/reauth/reauth/internal/domain"

	googleUuid "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRealmRepository_CreateAndGet(t *testing.T) {
	t.Parallel()

	factory := setupTestFactory(t)
	ctx := context.Background()
	realms := factory.RealmRepository()

	realm := &reauthDomain.Realm{Name: "master"}
	require.NoError(t, realms.Create(ctx, realm))
	require.NotEqual(t, googleUuid.Nil, realm.ID)

	byID, err := realms.GetByID(ctx, realm.ID)
	require.NoError(t, err)
	require.Equal(t, "master", byID.Name)

	byName, err := realms.GetByName(ctx, "master")
	require.NoError(t, err)
	require.Equal(t, realm.ID, byName.ID)
}

func TestRealmRepository_GetByName_NotFound(t *testing.T) {
	t.Parallel()

	factory := setupTestFactory(t)
	ctx := context.Background()

	_, err := factory.RealmRepository().GetByName(ctx, "missing")
	require.Error(t, err)
	require.True(t, reauthApperr.Is(err, reauthApperr.KindNotFound))
}

func TestRealmRepository_List(t *testing.T) {
	t.Parallel()

	factory := setupTestFactory(t)
	ctx := context.Background()
	realms := factory.RealmRepository()

	require.NoError(t, realms.Create(ctx, &reauthDomain.Realm{Name: "b-realm"}))
	require.NoError(t, realms.Create(ctx, &reauthDomain.Realm{Name: "a-realm"}))

	all, err := realms.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "a-realm", all[0].Name)
}

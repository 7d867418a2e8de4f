// Copyright (c) 2025 Justin Cranford

package nodes_test

import (
	"context"
	"testing"

	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthFlow "github.com/reauth/reauth/internal/flow"
	"github.com/reauth/reauth/internal/flow/nodes"
	reauthRepository "github.com/reauth/reauth/internal/repository"
	"github.com/reauth/reauth/internal/security"

	googleUuid "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func setupFactory(t *testing.T) *reauthRepository.RepositoryFactory {
	t.Helper()
	ctx := context.Background()
	dsn := "file:" + googleUuid.Must(googleUuid.NewV7()).String() + "?mode=memory&cache=shared"
	factory, err := reauthRepository.NewRepositoryFactory(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, factory.AutoMigrate(ctx))
	t.Cleanup(func() { _ = factory.Close() })
	return factory
}

func TestPasswordNode_HandleInput_CorrectCredentialsSucceed(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	ctx := context.Background()

	realm := &reauthDomain.Realm{Name: "r1", LockoutThreshold: 5, LockoutDurationSecs: 900}
	require.NoError(t, factory.RealmRepository().Create(ctx, realm))

	hash, err := security.HashPassword("hunter2")
	require.NoError(t, err)
	user := &reauthDomain.User{RealmID: realm.ID, Username: "alice", HashedPassword: hash}
	require.NoError(t, factory.UserRepository().Create(ctx, user))

	node := nodes.NewPasswordNode(factory.UserRepository(), factory.SessionRepository(), factory.RealmRepository())
	session := &reauthDomain.AuthenticationSession{RealmID: realm.ID, Context: reauthDomain.JSON{}}

	outcome, err := node.HandleInput(ctx, session, reauthDomain.ExecutionNode{}, map[string]any{"username": "alice", "password": "hunter2"})
	require.NoError(t, err)
	require.Equal(t, reauthFlow.OutcomeContinue, outcome.Kind)
	require.Equal(t, "success", outcome.Output)
	require.Equal(t, user.ID, *session.UserID.Ptr())
}

func TestPasswordNode_HandleInput_WrongPasswordSuspendsWithError(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	ctx := context.Background()

	realm := &reauthDomain.Realm{Name: "r1", LockoutThreshold: 5, LockoutDurationSecs: 900}
	require.NoError(t, factory.RealmRepository().Create(ctx, realm))

	hash, err := security.HashPassword("hunter2")
	require.NoError(t, err)
	user := &reauthDomain.User{RealmID: realm.ID, Username: "alice", HashedPassword: hash}
	require.NoError(t, factory.UserRepository().Create(ctx, user))

	node := nodes.NewPasswordNode(factory.UserRepository(), factory.SessionRepository(), factory.RealmRepository())
	session := &reauthDomain.AuthenticationSession{RealmID: realm.ID, Context: reauthDomain.JSON{}}

	outcome, err := node.HandleInput(ctx, session, reauthDomain.ExecutionNode{}, map[string]any{"username": "alice", "password": "wrong"})
	require.NoError(t, err)
	require.Equal(t, reauthFlow.OutcomeSuspendForUI, outcome.Kind)

	attempt, err := factory.SessionRepository().GetOrCreateLoginAttempt(ctx, realm.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, attempt.FailureCount)
}

func TestPasswordNode_HandleInput_LocksAfterThreshold(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	ctx := context.Background()

	realm := &reauthDomain.Realm{Name: "r1", LockoutThreshold: 2, LockoutDurationSecs: 900}
	require.NoError(t, factory.RealmRepository().Create(ctx, realm))

	hash, err := security.HashPassword("hunter2")
	require.NoError(t, err)
	user := &reauthDomain.User{RealmID: realm.ID, Username: "alice", HashedPassword: hash}
	require.NoError(t, factory.UserRepository().Create(ctx, user))

	node := nodes.NewPasswordNode(factory.UserRepository(), factory.SessionRepository(), factory.RealmRepository())

	for i := 0; i < 2; i++ {
		session := &reauthDomain.AuthenticationSession{RealmID: realm.ID, Context: reauthDomain.JSON{}}
		_, err := node.HandleInput(ctx, session, reauthDomain.ExecutionNode{}, map[string]any{"username": "alice", "password": "wrong"})
		require.NoError(t, err)
	}

	attempt, err := factory.SessionRepository().GetOrCreateLoginAttempt(ctx, realm.ID, "alice")
	require.NoError(t, err)
	require.True(t, attempt.IsLocked())

	session := &reauthDomain.AuthenticationSession{RealmID: realm.ID, Context: reauthDomain.JSON{}}
	outcome, err := node.HandleInput(ctx, session, reauthDomain.ExecutionNode{}, map[string]any{"username": "alice", "password": "hunter2"})
	require.NoError(t, err)
	require.Equal(t, reauthFlow.OutcomeReject, outcome.Kind)
}

func TestPasswordNode_OnExit_WipesPasswordKey(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	node := nodes.NewPasswordNode(factory.UserRepository(), factory.SessionRepository(), factory.RealmRepository())

	session := &reauthDomain.AuthenticationSession{Context: reauthDomain.JSON{"password": "hunter2"}}
	require.NoError(t, node.OnExit(context.Background(), session, reauthDomain.ExecutionNode{}))

	_, ok := session.Context.Get("password")
	require.False(t, ok)
}

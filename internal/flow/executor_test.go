// Copyright (c) 2025 Justin Cranford

package flow_test

import (
	"context"
	"testing"
	"time"

	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthFlow "github.com/reauth/reauth/internal/flow"
	reauthRepository "github.com/reauth/reauth/internal/repository"

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

// stubPasswordNode succeeds whenever HandleInput receives {"password":
// "correct"}, otherwise continues down its "failure" edge.
type stubPasswordNode struct {
	userID googleUuid.UUID
}

func (stubPasswordNode) OnEnter(_ context.Context, _ *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode) error {
	return nil
}

func (n stubPasswordNode) Execute(_ context.Context, _ *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode) (reauthFlow.NodeOutcome, error) {
	return reauthFlow.SuspendForUI("login", map[string]any{}), nil
}

func (n stubPasswordNode) HandleInput(_ context.Context, session *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode, input map[string]any) (reauthFlow.NodeOutcome, error) {
	if input["password"] == "correct" {
		session.UserID = reauthDomain.NewNullableUUID(&n.userID)
		return reauthFlow.Continue("success"), nil
	}
	return reauthFlow.Continue("failure"), nil
}

func (stubPasswordNode) OnExit(_ context.Context, _ *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode) error {
	return nil
}

// stubRejectingNode rejects unless its input carries ok: true, so tests
// can drive the executor's Reject re-render loop.
type stubRejectingNode struct {
	userID googleUuid.UUID
}

func (stubRejectingNode) OnEnter(_ context.Context, _ *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode) error {
	return nil
}

func (stubRejectingNode) Execute(_ context.Context, session *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode) (reauthFlow.NodeOutcome, error) {
	screenCtx := map[string]any{}
	if errMsg, ok := session.Context.Get(reauthDomain.CtxError); ok {
		screenCtx["error"] = errMsg
	}
	return reauthFlow.SuspendForUI("gate", screenCtx), nil
}

func (n stubRejectingNode) HandleInput(_ context.Context, session *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode, input map[string]any) (reauthFlow.NodeOutcome, error) {
	if input["ok"] == true {
		session.UserID = reauthDomain.NewNullableUUID(&n.userID)
		return reauthFlow.Continue("success"), nil
	}
	return reauthFlow.Reject("denied"), nil
}

func (stubRejectingNode) OnExit(_ context.Context, _ *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode) error {
	return nil
}

func buildPlan(userID googleUuid.UUID) *reauthDomain.ExecutionPlan {
	return &reauthDomain.ExecutionPlan{
		StartNodeID: "start",
		Nodes: map[string]reauthDomain.ExecutionNode{
			"start": {
				ID:       "start",
				StepType: reauthDomain.StepLogic,
				Next:     map[string]string{"default": "pwd"},
			},
			"pwd": {
				ID:       "pwd",
				StepType: reauthDomain.StepAuthenticator,
				Next:     map[string]string{"success": "ok", "failure": "fail"},
				Config:   map[string]any{"auth_type": reauthFlow.NodeTypePassword},
			},
			"ok": {
				ID:       "ok",
				StepType: reauthDomain.StepTerminal,
				Config:   map[string]any{"is_failure": false},
			},
			"fail": {
				ID:       "fail",
				StepType: reauthDomain.StepTerminal,
				Config:   map[string]any{"is_failure": true},
			},
		},
	}
}

func seedSession(t *testing.T, factory *reauthRepository.RepositoryFactory, plan *reauthDomain.ExecutionPlan) *reauthDomain.AuthenticationSession {
	t.Helper()
	ctx := context.Background()

	artifact, err := plan.Marshal()
	require.NoError(t, err)

	realm := &reauthDomain.Realm{Name: "r1"}
	require.NoError(t, factory.RealmRepository().Create(ctx, realm))

	draft := &reauthDomain.FlowDraft{RealmID: realm.ID, Name: "browser", FlowType: "browser", GraphJSON: "{}"}
	require.NoError(t, factory.FlowRepository().CreateDraft(ctx, draft))

	version := &reauthDomain.FlowVersion{
		FlowID:            draft.ID,
		VersionNumber:     1,
		GraphJSON:         "{}",
		ExecutionArtifact: artifact,
		Checksum:          "deadbeef",
	}
	require.NoError(t, factory.FlowRepository().CreateVersion(ctx, version))

	session := &reauthDomain.AuthenticationSession{
		RealmID:       realm.ID,
		FlowVersionID: version.ID,
		CurrentNodeID: plan.StartNodeID,
		Status:        reauthDomain.SessionActive,
		ExpiresAt:     time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, factory.SessionRepository().CreateSession(ctx, session))
	return session
}

func TestExecutor_Execute_SuspendsForUIThenSucceeds(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	ctx := context.Background()
	userID := googleUuid.Must(googleUuid.NewV7())

	plan := buildPlan(userID)
	session := seedSession(t, factory, plan)

	registry := reauthFlow.NewRegistry()
	registry.Register(reauthFlow.NodeTypeStart, reauthDomain.StepLogic, nil)
	registry.Register(reauthFlow.NodeTypeTerminal, reauthDomain.StepTerminal, nil)
	registry.Register(reauthFlow.NodeTypePassword, reauthDomain.StepAuthenticator, stubPasswordNode{userID: userID})

	executor := reauthFlow.NewExecutor(factory.SessionRepository(), factory.FlowRepository(), registry)

	result, err := executor.Execute(ctx, session.ID, nil)
	require.NoError(t, err)
	require.Equal(t, reauthFlow.OutcomeSuspendForUI, result.Outcome.Kind)
	require.Equal(t, "login", result.Outcome.Screen)

	result, err = executor.Execute(ctx, session.ID, map[string]any{"password": "correct"})
	require.NoError(t, err)
	require.Equal(t, reauthFlow.OutcomeFlowSuccess, result.Outcome.Kind)
	require.Equal(t, userID, result.Outcome.UserID)
	require.Equal(t, reauthDomain.SessionCompleted, result.Session.Status)
}

func TestExecutor_Execute_WrongPasswordReachesFailureTerminal(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	ctx := context.Background()
	userID := googleUuid.Must(googleUuid.NewV7())

	plan := buildPlan(userID)
	session := seedSession(t, factory, plan)

	registry := reauthFlow.NewRegistry()
	registry.Register(reauthFlow.NodeTypeStart, reauthDomain.StepLogic, nil)
	registry.Register(reauthFlow.NodeTypeTerminal, reauthDomain.StepTerminal, nil)
	registry.Register(reauthFlow.NodeTypePassword, reauthDomain.StepAuthenticator, stubPasswordNode{userID: userID})

	executor := reauthFlow.NewExecutor(factory.SessionRepository(), factory.FlowRepository(), registry)

	_, err := executor.Execute(ctx, session.ID, nil)
	require.NoError(t, err)

	result, err := executor.Execute(ctx, session.ID, map[string]any{"password": "wrong"})
	require.NoError(t, err)
	require.Equal(t, reauthFlow.OutcomeFlowFailure, result.Outcome.Kind)
	require.Equal(t, reauthDomain.SessionFailed, result.Session.Status)
}

func TestExecutor_Execute_RejectRerendersSameScreenWithError(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	ctx := context.Background()
	userID := googleUuid.Must(googleUuid.NewV7())

	plan := buildPlan(userID)
	plan.Nodes["pwd"] = reauthDomain.ExecutionNode{
		ID:       "pwd",
		StepType: reauthDomain.StepAuthenticator,
		Next:     map[string]string{"success": "ok", "failure": "fail"},
		Config:   map[string]any{"auth_type": "test.reject"},
	}
	session := seedSession(t, factory, plan)

	registry := reauthFlow.NewRegistry()
	registry.Register(reauthFlow.NodeTypeStart, reauthDomain.StepLogic, nil)
	registry.Register(reauthFlow.NodeTypeTerminal, reauthDomain.StepTerminal, nil)
	registry.Register("test.reject", reauthDomain.StepAuthenticator, stubRejectingNode{userID: userID})

	executor := reauthFlow.NewExecutor(factory.SessionRepository(), factory.FlowRepository(), registry)

	_, err := executor.Execute(ctx, session.ID, nil)
	require.NoError(t, err)

	result, err := executor.Execute(ctx, session.ID, map[string]any{"ok": false})
	require.NoError(t, err)
	require.Equal(t, reauthFlow.OutcomeSuspendForUI, result.Outcome.Kind)
	require.Equal(t, "gate", result.Outcome.Screen)
	require.Equal(t, "denied", result.Outcome.Context["error"])

	result, err = executor.Execute(ctx, session.ID, map[string]any{"ok": true})
	require.NoError(t, err)
	require.Equal(t, reauthFlow.OutcomeFlowSuccess, result.Outcome.Kind)
}

func TestExecutor_Execute_HealsCompletedSessionBackToStart(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	ctx := context.Background()
	userID := googleUuid.Must(googleUuid.NewV7())

	plan := buildPlan(userID)
	session := seedSession(t, factory, plan)
	session.Status = reauthDomain.SessionCompleted
	session.CurrentNodeID = "ok"
	session.UserID = reauthDomain.NewNullableUUID(&userID)
	require.NoError(t, factory.SessionRepository().SaveSession(ctx, session))

	registry := reauthFlow.NewRegistry()
	registry.Register(reauthFlow.NodeTypeStart, reauthDomain.StepLogic, nil)
	registry.Register(reauthFlow.NodeTypeTerminal, reauthDomain.StepTerminal, nil)
	registry.Register(reauthFlow.NodeTypePassword, reauthDomain.StepAuthenticator, stubPasswordNode{userID: userID})

	executor := reauthFlow.NewExecutor(factory.SessionRepository(), factory.FlowRepository(), registry)

	// user_input meant for the "ok" node the session used to sit on is
	// silently dropped; the healed session re-enters "pwd" fresh.
	result, err := executor.Execute(ctx, session.ID, map[string]any{"password": "correct"})
	require.NoError(t, err)
	require.Equal(t, reauthFlow.OutcomeSuspendForUI, result.Outcome.Kind)
	require.Equal(t, reauthDomain.SessionActive, result.Session.Status)
	require.Equal(t, "pwd", result.Session.CurrentNodeID)
	require.False(t, result.Session.UserID.Valid)
}

func TestExecutor_Execute_ExpiredSessionRejected(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	ctx := context.Background()
	userID := googleUuid.Must(googleUuid.NewV7())

	plan := buildPlan(userID)
	session := seedSession(t, factory, plan)
	session.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, factory.SessionRepository().SaveSession(ctx, session))

	registry := reauthFlow.NewRegistry()
	registry.Register(reauthFlow.NodeTypeStart, reauthDomain.StepLogic, nil)
	registry.Register(reauthFlow.NodeTypeTerminal, reauthDomain.StepTerminal, nil)
	registry.Register(reauthFlow.NodeTypePassword, reauthDomain.StepAuthenticator, stubPasswordNode{userID: userID})

	executor := reauthFlow.NewExecutor(factory.SessionRepository(), factory.FlowRepository(), registry)

	_, err := executor.Execute(ctx, session.ID, nil)
	require.Error(t, err)
}

// Copyright (c) 2025 Justin Cranford

package realmsvc_test

import (
	"context"
	"encoding/json"
	"testing"

	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthCompiler "github.com/reauth/reauth/internal/flow/compiler"
	reauthFlow "github.com/reauth/reauth/internal/flow"
	reauthRealmsvc "github.com/reauth/reauth/internal/realmsvc"
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

func newService(factory *reauthRepository.RepositoryFactory) *reauthRealmsvc.Service {
	registry := reauthFlow.NewRegistry()
	registry.Register(reauthFlow.NodeTypeStart, reauthDomain.StepLogic, nil)
	registry.Register(reauthFlow.NodeTypeTerminal, reauthDomain.StepTerminal, nil)
	registry.Register(reauthFlow.NodeTypePassword, reauthDomain.StepAuthenticator, nil)
	compiler := reauthCompiler.New(registry)
	return reauthRealmsvc.NewService(factory.RealmRepository(), factory.FlowRepository(), compiler)
}

func validGraphJSON(t *testing.T) string {
	t.Helper()
	graph := reauthDomain.AuthoringGraph{
		Nodes: []reauthDomain.AuthoringNode{
			{ID: "start", Type: reauthFlow.NodeTypeStart},
			{ID: "pwd", Type: reauthFlow.NodeTypePassword},
			{ID: "ok", Type: reauthFlow.NodeTypeTerminal, Config: map[string]any{"is_failure": false}},
			{ID: "fail", Type: reauthFlow.NodeTypeTerminal, Config: map[string]any{"is_failure": true}},
		},
		Edges: []reauthDomain.AuthoringEdge{
			{From: "start", To: "pwd", Output: "default"},
			{From: "pwd", To: "ok", Output: "success"},
			{From: "pwd", To: "fail", Output: "failure"},
		},
	}
	b, err := json.Marshal(graph)
	require.NoError(t, err)
	return string(b)
}

func TestService_CreateRealm_AppliesPolicy(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	svc := newService(factory)

	realm, err := svc.CreateRealm(context.Background(), "acme", reauthRealmsvc.DefaultRealmPolicy{
		AccessTokenTTLSecs: 300, RefreshTokenTTLSecs: 2592000,
		PKCERequiredPublicClients: true, LockoutThreshold: 5, LockoutDurationSecs: 900,
	})
	require.NoError(t, err)
	require.Equal(t, "acme", realm.Name)
	require.Equal(t, 300, realm.AccessTokenTTLSecs)
	require.True(t, bool(realm.PKCERequiredPublicClients))
}

func TestService_Publish_CompilesVersionAndBindsRealmSlot(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	svc := newService(factory)

	realm, err := svc.CreateRealm(context.Background(), "acme", reauthRealmsvc.DefaultRealmPolicy{})
	require.NoError(t, err)

	draft, err := svc.CreateDraft(context.Background(), realm.ID, "browser", reauthDomain.FlowTypeBrowser, validGraphJSON(t))
	require.NoError(t, err)

	version, err := svc.Publish(context.Background(), draft.ID)
	require.NoError(t, err)
	require.Equal(t, 1, version.VersionNumber)
	require.NotEmpty(t, version.ExecutionArtifact)

	deployment, err := factory.FlowRepository().GetDeployment(context.Background(), realm.ID, string(reauthDomain.FlowTypeBrowser))
	require.NoError(t, err)
	require.Equal(t, version.ID, deployment.ActiveVersionID)

	updated, err := factory.RealmRepository().GetByID(context.Background(), realm.ID)
	require.NoError(t, err)
	require.Equal(t, draft.ID, *updated.FlowIDFor(reauthDomain.FlowTypeBrowser))
}

func TestService_Publish_RejectsGraphMissingPasswordSuccessEdge(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	svc := newService(factory)

	realm, err := svc.CreateRealm(context.Background(), "acme", reauthRealmsvc.DefaultRealmPolicy{})
	require.NoError(t, err)

	graph := reauthDomain.AuthoringGraph{
		Nodes: []reauthDomain.AuthoringNode{
			{ID: "start", Type: reauthFlow.NodeTypeStart},
			{ID: "pwd", Type: reauthFlow.NodeTypePassword},
			{ID: "fail", Type: reauthFlow.NodeTypeTerminal, Config: map[string]any{"is_failure": true}},
		},
		Edges: []reauthDomain.AuthoringEdge{
			{From: "start", To: "pwd", Output: "default"},
			{From: "pwd", To: "fail", Output: "failure"},
		},
	}
	b, err := json.Marshal(graph)
	require.NoError(t, err)

	draft, err := svc.CreateDraft(context.Background(), realm.ID, "browser", reauthDomain.FlowTypeBrowser, string(b))
	require.NoError(t, err)

	_, err = svc.Publish(context.Background(), draft.ID)
	require.Error(t, err)
}

func TestService_PublishTwice_IncrementsVersionNumber(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	svc := newService(factory)

	realm, err := svc.CreateRealm(context.Background(), "acme", reauthRealmsvc.DefaultRealmPolicy{})
	require.NoError(t, err)

	draft, err := svc.CreateDraft(context.Background(), realm.ID, "browser", reauthDomain.FlowTypeBrowser, validGraphJSON(t))
	require.NoError(t, err)

	first, err := svc.Publish(context.Background(), draft.ID)
	require.NoError(t, err)

	_, err = svc.UpdateDraft(context.Background(), draft.ID, validGraphJSON(t))
	require.NoError(t, err)

	second, err := svc.Publish(context.Background(), draft.ID)
	require.NoError(t, err)
	require.Equal(t, first.VersionNumber+1, second.VersionNumber)
}

func TestService_Rollback_RepointsDeploymentWithoutNewVersion(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	svc := newService(factory)

	realm, err := svc.CreateRealm(context.Background(), "acme", reauthRealmsvc.DefaultRealmPolicy{})
	require.NoError(t, err)

	draft, err := svc.CreateDraft(context.Background(), realm.ID, "browser", reauthDomain.FlowTypeBrowser, validGraphJSON(t))
	require.NoError(t, err)

	first, err := svc.Publish(context.Background(), draft.ID)
	require.NoError(t, err)

	_, err = svc.UpdateDraft(context.Background(), draft.ID, validGraphJSON(t))
	require.NoError(t, err)
	_, err = svc.Publish(context.Background(), draft.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Rollback(context.Background(), realm.ID, reauthDomain.FlowTypeBrowser, first.ID))

	deployment, err := factory.FlowRepository().GetDeployment(context.Background(), realm.ID, string(reauthDomain.FlowTypeBrowser))
	require.NoError(t, err)
	require.Equal(t, first.ID, deployment.ActiveVersionID)
}

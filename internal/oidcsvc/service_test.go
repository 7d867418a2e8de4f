// Copyright (c) 2025 Justin Cranford

package oidcsvc_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthOidcsvc "github.com/reauth/reauth/internal/oidcsvc"
	reauthRbac "github.com/reauth/reauth/internal/rbac"
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

// seedRealmWithBrowserFlow creates a realm with an (unreachable, for
// these tests) browser-flow deployment: Authorize only needs the
// deployment to resolve, never runs the plan.
func seedRealmWithBrowserFlow(t *testing.T, factory *reauthRepository.RepositoryFactory) *reauthDomain.Realm {
	t.Helper()
	ctx := context.Background()

	realm := &reauthDomain.Realm{Name: "acme", PKCERequiredPublicClients: true}
	require.NoError(t, factory.RealmRepository().Create(ctx, realm))

	plan := &reauthDomain.ExecutionPlan{
		StartNodeID: "start",
		Nodes: map[string]reauthDomain.ExecutionNode{
			"start": {ID: "start", StepType: reauthDomain.StepTerminal, Config: map[string]any{"is_failure": false}},
		},
	}
	artifact, err := plan.Marshal()
	require.NoError(t, err)

	draft := &reauthDomain.FlowDraft{RealmID: realm.ID, Name: "browser", FlowType: "browser", GraphJSON: "{}"}
	require.NoError(t, factory.FlowRepository().CreateDraft(ctx, draft))

	version := &reauthDomain.FlowVersion{FlowID: draft.ID, VersionNumber: 1, GraphJSON: "{}", ExecutionArtifact: artifact, Checksum: "deadbeef"}
	require.NoError(t, factory.FlowRepository().CreateVersion(ctx, version))

	require.NoError(t, factory.FlowRepository().SetDeployment(ctx, &reauthDomain.FlowDeployment{
		RealmID: realm.ID, FlowType: string(reauthDomain.FlowTypeBrowser), FlowID: draft.ID, ActiveVersionID: version.ID,
	}))

	realm.BrowserFlowID = reauthDomain.NewNullableUUID(&draft.ID)
	require.NoError(t, factory.RealmRepository().Update(ctx, realm))

	return realm
}

func seedPublicClient(t *testing.T, factory *reauthRepository.RepositoryFactory, realmID googleUuid.UUID, redirectURI string) *reauthDomain.OidcClient {
	t.Helper()
	client := &reauthDomain.OidcClient{RealmID: realmID, ClientID: "spa-client"}
	client.SetRedirectURIs([]string{redirectURI})
	require.NoError(t, factory.OidcRepository().CreateClient(context.Background(), client))
	return client
}

func seedUser(t *testing.T, factory *reauthRepository.RepositoryFactory, realmID googleUuid.UUID) *reauthDomain.User {
	t.Helper()
	user := &reauthDomain.User{RealmID: realmID, Username: "alice", HashedPassword: "irrelevant-for-this-test"}
	require.NoError(t, factory.UserRepository().Create(context.Background(), user))
	return user
}

func newService(t *testing.T, factory *reauthRepository.RepositoryFactory) *reauthOidcsvc.Service {
	t.Helper()
	resolver, err := reauthRbac.NewResolver(factory.RbacRepository(), 64)
	require.NoError(t, err)
	keys, err := reauthOidcsvc.NewKeyManager()
	require.NoError(t, err)
	return reauthOidcsvc.NewService(
		factory.RealmRepository(), factory.OidcRepository(), factory.UserRepository(),
		factory.FlowRepository(), factory.SessionRepository(), resolver, nil, keys, "https://reauth.example",
	)
}

func TestService_Authorize_RejectsUnregisteredRedirectURI(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	realm := seedRealmWithBrowserFlow(t, factory)
	seedPublicClient(t, factory, realm.ID, "https://app.example/callback")
	svc := newService(t, factory)

	_, err := svc.Authorize(context.Background(), reauthOidcsvc.AuthorizeRequest{
		RealmName: "acme", ClientID: "spa-client", RedirectURI: "https://evil.example/callback",
	})
	require.Error(t, err)
}

func TestService_Authorize_RequiresPKCEForPublicClients(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	realm := seedRealmWithBrowserFlow(t, factory)
	seedPublicClient(t, factory, realm.ID, "https://app.example/callback")
	svc := newService(t, factory)

	_, err := svc.Authorize(context.Background(), reauthOidcsvc.AuthorizeRequest{
		RealmName: "acme", ClientID: "spa-client", RedirectURI: "https://app.example/callback",
	})
	require.Error(t, err)
}

func TestService_Authorize_CreatesSessionWithOidcContext(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	realm := seedRealmWithBrowserFlow(t, factory)
	seedPublicClient(t, factory, realm.ID, "https://app.example/callback")
	svc := newService(t, factory)

	result, err := svc.Authorize(context.Background(), reauthOidcsvc.AuthorizeRequest{
		RealmName: "acme", ClientID: "spa-client", RedirectURI: "https://app.example/callback",
		CodeChallenge: "abc123", CodeChallengeMethod: "S256", State: "xyz",
	})
	require.NoError(t, err)
	require.Equal(t, reauthDomain.SessionActive, result.Session.Status)

	oidcRaw, ok := result.Session.Context.Get(reauthDomain.CtxOIDC)
	require.True(t, ok)
	oidcCtx := oidcRaw.(map[string]any)
	require.Equal(t, "spa-client", oidcCtx["client_id"])
	require.Equal(t, "xyz", oidcCtx["state"])
}

// buildCompletedSessionWithCode drives the full /authorize → FlowSuccess
// → /token pipeline up through authorization-code issuance, returning
// the code and the verifier needed to redeem it.
func buildCompletedSessionWithCode(t *testing.T, factory *reauthRepository.RepositoryFactory, svc *reauthOidcsvc.Service, realm *reauthDomain.Realm, user *reauthDomain.User) (code string, verifier string) {
	t.Helper()
	ctx := context.Background()

	verifier = "a-fixed-length-verifier-string-for-pkce-testing-purposes"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	result, err := svc.Authorize(ctx, reauthOidcsvc.AuthorizeRequest{
		RealmName: "acme", ClientID: "spa-client", RedirectURI: "https://app.example/callback",
		CodeChallenge: challenge, CodeChallengeMethod: "S256", State: "xyz",
	})
	require.NoError(t, err)

	session := result.Session
	session.Status = reauthDomain.SessionCompleted
	session.UserID = reauthDomain.NewNullableUUID(&user.ID)
	require.NoError(t, factory.SessionRepository().SaveSession(ctx, session))

	redirectURL, err := svc.CompleteAuthorization(ctx, session)
	require.NoError(t, err)
	require.Contains(t, redirectURL, "https://app.example/callback?code=")
	require.Contains(t, redirectURL, "state=xyz")

	code = redirectURL[len("https://app.example/callback?code=") : len(redirectURL)-len("&state=xyz")]
	return code, verifier
}

func TestService_Token_HappyPathWithPKCE(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	realm := seedRealmWithBrowserFlow(t, factory)
	seedPublicClient(t, factory, realm.ID, "https://app.example/callback")
	user := seedUser(t, factory, realm.ID)
	svc := newService(t, factory)

	code, verifier := buildCompletedSessionWithCode(t, factory, svc, realm, user)

	resp, err := svc.Token(context.Background(), "acme", reauthOidcsvc.TokenRequest{
		GrantType: "authorization_code", Code: code, RedirectURI: "https://app.example/callback",
		ClientID: "spa-client", CodeVerifier: verifier,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.IDToken)
	require.NotNil(t, resp.RefreshToken)
}

func TestService_Token_RejectsWrongVerifier(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	realm := seedRealmWithBrowserFlow(t, factory)
	seedPublicClient(t, factory, realm.ID, "https://app.example/callback")
	user := seedUser(t, factory, realm.ID)
	svc := newService(t, factory)

	code, _ := buildCompletedSessionWithCode(t, factory, svc, realm, user)

	_, err := svc.Token(context.Background(), "acme", reauthOidcsvc.TokenRequest{
		GrantType: "authorization_code", Code: code, RedirectURI: "https://app.example/callback",
		ClientID: "spa-client", CodeVerifier: "wrong-verifier",
	})
	require.Error(t, err)
}

func TestService_Token_CodeIsSingleUse(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	realm := seedRealmWithBrowserFlow(t, factory)
	seedPublicClient(t, factory, realm.ID, "https://app.example/callback")
	user := seedUser(t, factory, realm.ID)
	svc := newService(t, factory)

	code, verifier := buildCompletedSessionWithCode(t, factory, svc, realm, user)

	req := reauthOidcsvc.TokenRequest{
		GrantType: "authorization_code", Code: code, RedirectURI: "https://app.example/callback",
		ClientID: "spa-client", CodeVerifier: verifier,
	}
	_, err := svc.Token(context.Background(), "acme", req)
	require.NoError(t, err)

	_, err = svc.Token(context.Background(), "acme", req)
	require.Error(t, err)
}

func TestService_UserInfo_ReturnsClaimsForLiveSession(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	realm := seedRealmWithBrowserFlow(t, factory)
	seedPublicClient(t, factory, realm.ID, "https://app.example/callback")
	user := seedUser(t, factory, realm.ID)
	svc := newService(t, factory)

	code, verifier := buildCompletedSessionWithCode(t, factory, svc, realm, user)
	resp, err := svc.Token(context.Background(), "acme", reauthOidcsvc.TokenRequest{
		GrantType: "authorization_code", Code: code, RedirectURI: "https://app.example/callback",
		ClientID: "spa-client", CodeVerifier: verifier,
	})
	require.NoError(t, err)

	info, err := svc.UserInfo(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID.String(), info["sub"])
	require.Equal(t, "alice", info["preferred_username"])
}

func TestService_UserInfo_RejectsRevokedSession(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	realm := seedRealmWithBrowserFlow(t, factory)
	seedPublicClient(t, factory, realm.ID, "https://app.example/callback")
	user := seedUser(t, factory, realm.ID)
	svc := newService(t, factory)

	code, verifier := buildCompletedSessionWithCode(t, factory, svc, realm, user)
	resp, err := svc.Token(context.Background(), "acme", reauthOidcsvc.TokenRequest{
		GrantType: "authorization_code", Code: code, RedirectURI: "https://app.example/callback",
		ClientID: "spa-client", CodeVerifier: verifier,
	})
	require.NoError(t, err)

	require.NoError(t, factory.OidcRepository().RevokeFamily(context.Background(), resp.RefreshToken.FamilyID))

	_, err = svc.UserInfo(context.Background(), resp.AccessToken)
	require.Error(t, err)
}

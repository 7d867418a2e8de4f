// Copyright (c) 2025 Justin Cranford

package oidcsvc

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	reauthApperr "github.com/reauth/reauth/internal/apperr"
	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthFlow "github.com/reauth/reauth/internal/flow"
	reauthRbac "github.com/reauth/reauth/internal/rbac"
	reauthRepository "github.com/reauth/reauth/internal/repository"

	googleUuid "github.com/google/uuid"
)

const authorizationCodeTTL = 60 * time.Second

// AuthorizeRequest is the parsed query string of GET /authorize (spec
// §4.2 "/authorize (GET)").
type AuthorizeRequest struct {
	RealmName           string
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	PromptLogin         bool
	ExistingSessionID   *googleUuid.UUID
}

// AuthorizeResult carries the session the HTTP layer renders the login
// UI for: a resumed active session or a freshly anchored one. Authorize
// never sets RedirectURL.
type AuthorizeResult struct {
	Session     *reauthDomain.AuthenticationSession
	RedirectURL string
}

// Service implements the OIDC authorization server surface: /authorize,
// /token, JWKS, discovery and userinfo (spec §4.2).
type Service struct {
	realms   *reauthRepository.RealmRepository
	clients  *reauthRepository.OidcRepository
	users    *reauthRepository.UserRepository
	flows    *reauthRepository.FlowRepository
	sessions *reauthRepository.SessionRepository
	rbac     *reauthRbac.Resolver
	executor *reauthFlow.Executor
	keys     *KeyManager
	issuer   string
}

func NewService(
	realms *reauthRepository.RealmRepository,
	clients *reauthRepository.OidcRepository,
	users *reauthRepository.UserRepository,
	flows *reauthRepository.FlowRepository,
	sessions *reauthRepository.SessionRepository,
	rbac *reauthRbac.Resolver,
	executor *reauthFlow.Executor,
	keys *KeyManager,
	issuer string,
) *Service {
	return &Service{
		realms: realms, clients: clients, users: users, flows: flows,
		sessions: sessions, rbac: rbac, executor: executor, keys: keys, issuer: issuer,
	}
}

// Authorize runs spec §4.2 "/authorize (GET)" steps 1-6, plus the
// session-resumption rule: a live login_session cookie in the same
// realm is reused unless prompt=login forces a fresh one.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	realm, err := s.realms.GetByName(ctx, req.RealmName)
	if err != nil {
		return nil, err
	}

	client, err := s.clients.FindClient(ctx, realm.ID, req.ClientID)
	if err != nil {
		return nil, err
	}
	if !client.HasExactRedirectURI(req.RedirectURI) {
		return nil, reauthApperr.OidcInvalidRedirect("redirect_uri is not registered for this client")
	}

	if bool(realm.PKCERequiredPublicClients) && client.IsPublic() {
		if req.CodeChallenge == "" {
			return nil, reauthApperr.OidcInvalidRequest("code_challenge is required for public clients")
		}
		if req.CodeChallengeMethod != string(reauthDomain.CodeChallengeS256) && req.CodeChallengeMethod != string(reauthDomain.CodeChallengePlain) {
			return nil, reauthApperr.OidcInvalidRequest("code_challenge_method must be S256 or plain")
		}
	}

	if !req.PromptLogin && req.ExistingSessionID != nil {
		if existing, err := s.sessions.GetSession(ctx, *req.ExistingSessionID); err == nil {
			if existing.RealmID == realm.ID && existing.Status == reauthDomain.SessionActive && !existing.IsExpired() {
				return &AuthorizeResult{Session: existing}, nil
			}
		}
	}

	flowID := realm.FlowIDFor(reauthDomain.FlowTypeBrowser)
	if flowID == nil {
		return nil, reauthApperr.Validation("No browser flow configured", nil)
	}
	version, err := s.flows.GetActiveVersion(ctx, realm.ID, string(reauthDomain.FlowTypeBrowser))
	if err != nil {
		return nil, err
	}
	plan, err := reauthDomain.ParseExecutionPlan(version.ExecutionArtifact)
	if err != nil {
		return nil, reauthApperr.System("stored execution plan is corrupt", err)
	}

	session := &reauthDomain.AuthenticationSession{
		RealmID:       realm.ID,
		FlowVersionID: version.ID,
		CurrentNodeID: plan.StartNodeID,
		Status:        reauthDomain.SessionActive,
		ExpiresAt:     time.Now().UTC().Add(15 * time.Minute),
		Context: reauthDomain.JSON{
			reauthDomain.CtxOIDC: map[string]any{
				"client_id":             req.ClientID,
				"redirect_uri":          req.RedirectURI,
				"scope":                 req.Scope,
				"state":                 req.State,
				"nonce":                 req.Nonce,
				"code_challenge":        req.CodeChallenge,
				"code_challenge_method": req.CodeChallengeMethod,
			},
		},
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return &AuthorizeResult{Session: session}, nil
}

// CompleteAuthorization runs the auth-code issuance steps once the flow
// executor has returned a FlowSuccess outcome for a session anchored to
// an OIDC context (spec §4.2 "Auth code issuance").
func (s *Service) CompleteAuthorization(ctx context.Context, session *reauthDomain.AuthenticationSession) (string, error) {
	oidcRaw, ok := session.Context.Get(reauthDomain.CtxOIDC)
	if !ok {
		return "", reauthApperr.System("session has no oidc context to complete", nil)
	}
	oidcCtx, ok := oidcRaw.(map[string]any)
	if !ok {
		return "", reauthApperr.System("session oidc context is malformed", nil)
	}

	userID := session.UserID.Ptr()
	if userID == nil {
		return "", reauthApperr.System("session completed without a resolved user", nil)
	}
	user, err := s.users.GetByID(ctx, *userID)
	if err != nil {
		return "", err
	}
	if user.RealmID != session.RealmID {
		return "", reauthApperr.SecurityViolation("user does not belong to the session's realm")
	}

	clientID, _ := oidcCtx["client_id"].(string)
	redirectURI, _ := oidcCtx["redirect_uri"].(string)
	state, _ := oidcCtx["state"].(string)
	nonce, _ := oidcCtx["nonce"].(string)
	codeChallenge, _ := oidcCtx["code_challenge"].(string)
	codeChallengeMethod, _ := oidcCtx["code_challenge_method"].(string)

	code := &reauthDomain.AuthorizationCode{
		Code:        googleUuid.Must(googleUuid.NewV7()).String(),
		UserID:      user.ID,
		ClientID:    clientID,
		RealmID:     session.RealmID,
		RedirectURI: redirectURI,
		ExpiresAt:   time.Now().UTC().Add(authorizationCodeTTL),
	}
	if nonce != "" {
		code.Nonce = &nonce
	}
	if codeChallenge != "" {
		code.CodeChallenge = &codeChallenge
		code.CodeChallengeMethod = &codeChallengeMethod
	}
	if err := s.clients.CreateCode(ctx, code); err != nil {
		return "", err
	}

	redirectURL := fmt.Sprintf("%s?code=%s", redirectURI, code.Code)
	if state != "" {
		redirectURL += "&state=" + state
	}
	return redirectURL, nil
}

// TokenRequest is the parsed form body of POST /token (spec §4.2
// "/token (POST, form-encoded)").
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	CodeVerifier string
	IPAddress    *string
	UserAgent    *string
}

// TokenResponse is what the HTTP layer renders and sets as the refresh
// cookie for (spec §4.2 step 7).
type TokenResponse struct {
	AccessToken  string
	IDToken      string
	RefreshToken *reauthDomain.RefreshToken
	ExpiresIn    int
}

// Token runs spec §4.2 "/token" steps 1-7.
func (s *Service) Token(ctx context.Context, realmName string, req TokenRequest) (*TokenResponse, error) {
	if req.GrantType != "authorization_code" {
		return nil, reauthApperr.OidcInvalidRequest("unsupported grant_type")
	}

	realm, err := s.realms.GetByName(ctx, realmName)
	if err != nil {
		return nil, err
	}

	code, err := s.clients.ConsumeCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if code.IsExpired() {
		return nil, reauthApperr.OidcInvalidCode("authorization code expired")
	}
	if code.ClientID != req.ClientID || code.RedirectURI != req.RedirectURI {
		return nil, reauthApperr.OidcInvalidCode("client_id or redirect_uri does not match the authorization code")
	}

	if code.CodeChallenge != nil {
		if err := verifyPKCE(*code.CodeChallenge, derefOr(code.CodeChallengeMethod, string(reauthDomain.CodeChallengeS256)), req.CodeVerifier); err != nil {
			return nil, err
		}
	}

	user, err := s.users.GetByID(ctx, code.UserID)
	if err != nil {
		return nil, err
	}

	perms, err := s.rbac.EffectivePermissions(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	roles, groups, err := s.rbac.RoleAndGroupNames(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	refresh := reauthDomain.NewRefreshToken(user.ID, realm.ID, &code.ClientID, time.Duration(realm.RefreshTokenTTLSecs)*time.Second)
	refresh.IPAddress = req.IPAddress
	refresh.UserAgent = req.UserAgent
	if err := s.clients.CreateRefreshToken(ctx, refresh); err != nil {
		return nil, err
	}

	ttl := time.Duration(realm.AccessTokenTTLSecs) * time.Second
	now := time.Now().UTC()

	accessToken, err := s.keys.SignAccessToken(AccessClaims{
		Subject:     user.ID.String(),
		SessionID:   refresh.ID,
		Permissions: perms,
		Roles:       roles,
		Groups:      groups,
		Issuer:      s.issuer,
		Audience:    req.ClientID,
		ExpiresAt:   now.Add(ttl),
	})
	if err != nil {
		return nil, err
	}

	idToken, err := s.keys.SignIDToken(IDClaims{
		Subject:   user.ID.String(),
		Issuer:    s.issuer,
		Audience:  req.ClientID,
		Nonce:     derefOr(code.Nonce, ""),
		Groups:    groups,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		IDToken:      idToken,
		RefreshToken: refresh,
		ExpiresIn:    int(ttl.Seconds()),
	}, nil
}

// UserInfo implements GET /userinfo (spec §4.2 "Userinfo"): validates
// the bearer token's signature, then re-checks the carried session
// (sid) has not been revoked.
func (s *Service) UserInfo(ctx context.Context, bearerToken string) (map[string]any, error) {
	claims, err := s.keys.Verify(ctx, bearerToken)
	if err != nil {
		return nil, err
	}

	refresh, err := s.clients.GetRefreshToken(ctx, claims.SessionID)
	if err != nil {
		return nil, reauthApperr.SessionRevoked("session no longer exists")
	}
	if refresh.IsRevoked() {
		return nil, reauthApperr.SessionRevoked("session has been revoked")
	}

	userID, err := googleUuid.Parse(claims.Subject)
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"sub":                user.ID.String(),
		"preferred_username": user.Username,
		"groups":             claims.Groups,
	}, nil
}

// Discovery builds the GET /.well-known/openid-configuration document
// (spec §4.2 "Discovery").
func (s *Service) Discovery() map[string]any {
	return map[string]any{
		"issuer":                                s.issuer,
		"authorization_endpoint":                s.issuer + "/oidc/authorize",
		"token_endpoint":                        s.issuer + "/oidc/token",
		"userinfo_endpoint":                     s.issuer + "/oidc/userinfo",
		"jwks_uri":                              s.issuer + "/oidc/.well-known/jwks.json",
		"response_types_supported":              []string{"code"},
		"code_challenge_methods_supported":      []string{"S256"},
		"token_endpoint_auth_methods_supported": []string{"none"},
	}
}

// verifyPKCE implements spec §4.2 step 4's S256/plain comparison.
func verifyPKCE(storedChallenge, method, verifier string) error {
	var expected string
	switch reauthDomain.CodeChallengeMethod(method) {
	case reauthDomain.CodeChallengeS256:
		sum := sha256.Sum256([]byte(verifier))
		expected = base64.RawURLEncoding.EncodeToString(sum[:])
	case reauthDomain.CodeChallengePlain:
		expected = verifier
	default:
		return reauthApperr.OidcInvalidRequest("unknown code_challenge_method")
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(storedChallenge)) != 1 {
		return reauthApperr.OidcInvalidRequest("code_verifier does not match code_challenge")
	}
	return nil
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

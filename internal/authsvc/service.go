// Copyright (c) 2025 Justin Cranford
//
// Package authsvc implements the direct (non-OIDC) token lifecycle:
// create_session, refresh_session, validate_token_and_get_user, logout
// (spec §4.3 Auth Service).
package authsvc

import (
	"context"
	"time"

	reauthApperr "github.com/reauth/reauth/internal/apperr"
	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthOidcsvc "github.com/reauth/reauth/internal/oidcsvc"
	reauthRbac "github.com/reauth/reauth/internal/rbac"
	reauthRepository "github.com/reauth/reauth/internal/repository"

	googleUuid "github.com/google/uuid"
)

// LoginResponse is the token bundle create_session/refresh_session hand
// back to the HTTP layer.
type LoginResponse struct {
	AccessToken string
	IDToken     string
	TokenType   string
	ExpiresIn   int
}

// Service mints and rotates tokens outside the /authorize-/token
// redirect dance, used by the HTTP layer when a login flow without an
// OIDC context succeeds, and by the /auth/refresh and /auth/logout
// endpoints.
type Service struct {
	oidc     *reauthRepository.OidcRepository
	realms   *reauthRepository.RealmRepository
	users    *reauthRepository.UserRepository
	rbac     *reauthRbac.Resolver
	keys     *reauthOidcsvc.KeyManager
	issuer   string
}

func NewService(
	oidc *reauthRepository.OidcRepository,
	realms *reauthRepository.RealmRepository,
	users *reauthRepository.UserRepository,
	rbac *reauthRbac.Resolver,
	keys *reauthOidcsvc.KeyManager,
	issuer string,
) *Service {
	return &Service{oidc: oidc, realms: realms, users: users, rbac: rbac, keys: keys, issuer: issuer}
}

// CreateSession implements spec §4.3 create_session: resolves effective
// permissions/roles/groups, mints an access token (and an ID token only
// when clientID is present), and persists a fresh refresh-token family.
func (s *Service) CreateSession(ctx context.Context, user *reauthDomain.User, clientID, ipAddress, userAgent *string) (*LoginResponse, *reauthDomain.RefreshToken, error) {
	realm, err := s.realms.GetByID(ctx, user.RealmID)
	if err != nil {
		return nil, nil, err
	}

	perms, err := s.rbac.EffectivePermissions(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	roles, groups, err := s.rbac.RoleAndGroupNames(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	refresh := reauthDomain.NewRefreshToken(user.ID, realm.ID, clientID, time.Duration(realm.RefreshTokenTTLSecs)*time.Second)
	refresh.IPAddress = ipAddress
	refresh.UserAgent = userAgent
	if err := s.oidc.CreateRefreshToken(ctx, refresh); err != nil {
		return nil, nil, err
	}

	ttl := time.Duration(realm.AccessTokenTTLSecs) * time.Second
	now := time.Now().UTC()
	audience := ""
	if clientID != nil {
		audience = *clientID
	}

	accessToken, err := s.keys.SignAccessToken(reauthOidcsvc.AccessClaims{
		Subject:     user.ID.String(),
		SessionID:   refresh.ID,
		Permissions: perms,
		Roles:       roles,
		Groups:      groups,
		Issuer:      s.issuer,
		Audience:    audience,
		ExpiresAt:   now.Add(ttl),
	})
	if err != nil {
		return nil, nil, err
	}

	resp := &LoginResponse{AccessToken: accessToken, TokenType: "Bearer", ExpiresIn: int(ttl.Seconds())}

	if clientID != nil {
		idToken, err := s.keys.SignIDToken(reauthOidcsvc.IDClaims{
			Subject:   user.ID.String(),
			Issuer:    s.issuer,
			Audience:  *clientID,
			Groups:    groups,
			IssuedAt:  now,
			ExpiresAt: now.Add(ttl),
		})
		if err != nil {
			return nil, nil, err
		}
		resp.IDToken = idToken
	}

	return resp, refresh, nil
}

// RefreshTokenRealm resolves which realm oldID belongs to without
// mutating it, so callers can reject a cross-realm refresh attempt
// before RefreshSession rotates anything (spec §8 scenario 2's
// leave-the-other-realm-untouched guarantee, applied to refresh tokens
// as well as sessions).
func (s *Service) RefreshTokenRealm(ctx context.Context, id googleUuid.UUID) (googleUuid.UUID, error) {
	token, err := s.oidc.GetRefreshToken(ctx, id)
	if err != nil {
		return googleUuid.Nil, err
	}
	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		return googleUuid.Nil, err
	}
	return user.RealmID, nil
}

// RefreshSession implements spec §4.3 refresh_session: rotates a live
// refresh token, or on replay of an already-revoked token in a known
// family, revokes the whole family and reports InvalidRefreshToken
// (spec §8 scenario 4 "refresh token reuse kills the family").
func (s *Service) RefreshSession(ctx context.Context, oldID googleUuid.UUID) (*LoginResponse, *reauthDomain.RefreshToken, error) {
	old, err := s.oidc.GetRefreshToken(ctx, oldID)
	if err != nil {
		return nil, nil, err
	}
	if old.IsExpired() {
		return nil, nil, reauthApperr.InvalidRefreshToken("refresh token expired")
	}
	if old.IsRevoked() {
		if err := s.oidc.RevokeFamily(ctx, old.FamilyID); err != nil {
			return nil, nil, err
		}
		return nil, nil, reauthApperr.InvalidRefreshToken("refresh token already used; family revoked")
	}

	user, err := s.users.GetByID(ctx, old.UserID)
	if err != nil {
		return nil, nil, err
	}
	realm, err := s.realms.GetByID(ctx, user.RealmID)
	if err != nil {
		return nil, nil, err
	}

	newToken := reauthDomain.NewRefreshToken(user.ID, realm.ID, old.ClientID, time.Duration(realm.RefreshTokenTTLSecs)*time.Second)
	newToken.FamilyID = old.FamilyID
	newToken.IPAddress = old.IPAddress
	newToken.UserAgent = old.UserAgent
	if err := s.oidc.CreateRefreshToken(ctx, newToken); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	old.RevokedAt = &now
	old.ReplacedBy = reauthDomain.NewNullableUUID(&newToken.ID)
	if err := s.oidc.SaveRefreshToken(ctx, old); err != nil {
		return nil, nil, err
	}

	perms, err := s.rbac.EffectivePermissions(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	roles, groups, err := s.rbac.RoleAndGroupNames(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	ttl := time.Duration(realm.AccessTokenTTLSecs) * time.Second
	audience := ""
	if old.ClientID != nil {
		audience = *old.ClientID
	}
	accessToken, err := s.keys.SignAccessToken(reauthOidcsvc.AccessClaims{
		Subject:     user.ID.String(),
		SessionID:   newToken.ID,
		Permissions: perms,
		Roles:       roles,
		Groups:      groups,
		Issuer:      s.issuer,
		Audience:    audience,
		ExpiresAt:   now.Add(ttl),
	})
	if err != nil {
		return nil, nil, err
	}

	return &LoginResponse{AccessToken: accessToken, TokenType: "Bearer", ExpiresIn: int(ttl.Seconds())}, newToken, nil
}

// ValidateTokenAndGetUser implements spec §4.3 validate_token_and_get_user:
// verifies the JWT signature, then re-checks the carried sid is a live
// refresh token.
func (s *Service) ValidateTokenAndGetUser(ctx context.Context, jwtToken string) (*reauthDomain.User, error) {
	claims, err := s.keys.Verify(ctx, jwtToken)
	if err != nil {
		return nil, err
	}

	sid, err := s.oidc.GetRefreshToken(ctx, claims.SessionID)
	if err != nil {
		return nil, reauthApperr.SessionRevoked("session no longer exists")
	}
	if sid.IsRevoked() {
		return nil, reauthApperr.SessionRevoked("session has been revoked")
	}

	userID, err := googleUuid.Parse(claims.Subject)
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return s.users.GetByID(ctx, userID)
}

// Logout implements spec §4.3 logout: revokes the refresh token's
// entire family.
func (s *Service) Logout(ctx context.Context, refreshID googleUuid.UUID) error {
	token, err := s.oidc.GetRefreshToken(ctx, refreshID)
	if err != nil {
		return err
	}
	return s.oidc.RevokeFamily(ctx, token.FamilyID)
}

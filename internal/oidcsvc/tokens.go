// Copyright (c) 2025 Justin Cranford

package oidcsvc

import (
	"context"
	"time"

	reauthApperr "github.com/reauth/reauth/internal/apperr"

	googleUuid "github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// AccessClaims is the payload minted into the RS256 access token (spec
// §4.2 step 6: "sub, sid, perms, roles, groups, exp, iss, aud=client_id").
type AccessClaims struct {
	Subject     string
	SessionID   googleUuid.UUID
	Permissions []string
	Roles       []string
	Groups      []string
	Issuer      string
	Audience    string
	ExpiresAt   time.Time
}

// IDClaims is the OIDC-profile payload minted into the ID token (spec
// §4.2 step 6: "sub, aud=client_id, iss, exp, iat, nonce?, groups").
type IDClaims struct {
	Subject   string
	Issuer    string
	Audience  string
	Nonce     string
	Groups    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (k *KeyManager) signToken(token jwt.Token) (string, error) {
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), k.privateKey))
	if err != nil {
		return "", reauthApperr.Unexpected(err)
	}
	return string(signed), nil
}

// SignAccessToken builds and signs an access token per AccessClaims.
func (k *KeyManager) SignAccessToken(c AccessClaims) (string, error) {
	builder := jwt.NewBuilder().
		Subject(c.Subject).
		Issuer(c.Issuer).
		Audience([]string{c.Audience}).
		Expiration(c.ExpiresAt).
		Claim("sid", c.SessionID.String()).
		Claim("perms", c.Permissions).
		Claim("roles", c.Roles).
		Claim("groups", c.Groups)

	token, err := builder.Build()
	if err != nil {
		return "", reauthApperr.Unexpected(err)
	}
	return k.signToken(token)
}

// SignIDToken builds and signs an OIDC ID token per IDClaims.
func (k *KeyManager) SignIDToken(c IDClaims) (string, error) {
	builder := jwt.NewBuilder().
		Subject(c.Subject).
		Issuer(c.Issuer).
		Audience([]string{c.Audience}).
		IssuedAt(c.IssuedAt).
		Expiration(c.ExpiresAt).
		Claim("groups", c.Groups)
	if c.Nonce != "" {
		builder = builder.Claim("nonce", c.Nonce)
	}

	token, err := builder.Build()
	if err != nil {
		return "", reauthApperr.Unexpected(err)
	}
	return k.signToken(token)
}

// VerifiedClaims is what Verify extracts from a bearer token, the
// subset userinfo/session-revocation checks need.
type VerifiedClaims struct {
	Subject   string
	SessionID googleUuid.UUID
	Roles     []string
	Groups    []string
}

// Verify checks the RS256 signature against the published key set and
// extracts the claims userinfo/validate_token_and_get_user need (spec
// §4.2 "validates the Authorization: Bearer token against the RS256
// key", §4.3 "validate_token_and_get_user verifies the signature").
func (k *KeyManager) Verify(ctx context.Context, raw string) (*VerifiedClaims, error) {
	token, err := jwt.Parse([]byte(raw), jwt.WithKeySet(k.publicSet), jwt.WithContext(ctx))
	if err != nil {
		return nil, reauthApperr.InvalidCredentials("invalid or expired token")
	}

	out := &VerifiedClaims{Subject: token.Subject()}

	if sidRaw, ok := token.Get("sid"); ok {
		if sidStr, ok := sidRaw.(string); ok {
			if parsed, err := googleUuid.Parse(sidStr); err == nil {
				out.SessionID = parsed
			}
		}
	}
	out.Roles = stringSliceClaim(token, "roles")
	out.Groups = stringSliceClaim(token, "groups")

	return out, nil
}

func stringSliceClaim(token jwt.Token, name string) []string {
	raw, ok := token.Get(name)
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

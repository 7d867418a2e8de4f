// Copyright (c) 2025 Justin Cranford

package domain

import (
	"encoding/json"
	"time"

	googleUuid "github.com/google/uuid"
	"gorm.io/gorm"
)

// OidcClient is compared byte-exactly against supplied redirect_uri at
// both /authorize and /token (spec §3 OidcClient, §4.2).
type OidcClient struct {
	ID                googleUuid.UUID `gorm:"type:text;primaryKey"`
	RealmID           googleUuid.UUID `gorm:"type:text;not null;uniqueIndex:idx_client_realm_clientid"`
	ClientID          string          `gorm:"not null;uniqueIndex:idx_client_realm_clientid"`
	ClientSecret      *string
	RedirectURIsJSON  string `gorm:"column:redirect_uris;not null;default:'[]'"`
	WebOriginsJSON    string `gorm:"column:web_origins;not null;default:'[]'"`
	ScopesJSON        string `gorm:"column:scopes;not null;default:'[]'"`
	ManagedByConfig   IntBool `gorm:"not null;default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (OidcClient) TableName() string { return "oidc_clients" }

func (c *OidcClient) BeforeCreate(_ *gorm.DB) error {
	if c.ID == googleUuid.Nil {
		c.ID = googleUuid.Must(googleUuid.NewV7())
	}
	return nil
}

func (c *OidcClient) RedirectURIs() []string { return decodeStringArray(c.RedirectURIsJSON) }
func (c *OidcClient) SetRedirectURIs(v []string) { c.RedirectURIsJSON = encodeStringArray(v) }
func (c *OidcClient) WebOrigins() []string       { return decodeStringArray(c.WebOriginsJSON) }
func (c *OidcClient) Scopes() []string           { return decodeStringArray(c.ScopesJSON) }
func (c *OidcClient) SetScopes(v []string)       { c.ScopesJSON = encodeStringArray(v) }

// HasExactRedirectURI performs the byte-exact comparison spec §4.2 step 2
// requires.
func (c *OidcClient) HasExactRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs() {
		if u == uri {
			return true
		}
	}
	return false
}

func (c *OidcClient) IsPublic() bool { return c.ClientSecret == nil || *c.ClientSecret == "" }

func decodeStringArray(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func encodeStringArray(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// CodeChallengeMethod enumerates the PKCE methods spec §3 AuthorizationCode
// allows.
type CodeChallengeMethod string

const (
	CodeChallengeS256  CodeChallengeMethod = "S256"
	CodeChallengePlain CodeChallengeMethod = "plain"
)

// AuthorizationCode is single-use, deleted on redemption, TTL <= 60s
// (spec §3 AuthorizationCode).
type AuthorizationCode struct {
	Code                string `gorm:"type:text;primaryKey"`
	UserID              googleUuid.UUID `gorm:"type:text;not null"`
	ClientID            string          `gorm:"not null"`
	RealmID             googleUuid.UUID `gorm:"type:text;not null"`
	RedirectURI         string          `gorm:"not null"`
	Nonce               *string
	CodeChallenge       *string
	CodeChallengeMethod *string
	ExpiresAt           time.Time `gorm:"not null"`
	CreatedAt           time.Time
}

func (AuthorizationCode) TableName() string { return "authorization_codes" }

func (a *AuthorizationCode) IsExpired() bool { return time.Now().UTC().After(a.ExpiresAt) }

// RefreshToken implements rotation semantics: on refresh the old row is
// revoked with ReplacedBy set; presenting a revoked token in the same
// family revokes the whole family (spec §3 RefreshToken, §4.3).
type RefreshToken struct {
	ID          googleUuid.UUID `gorm:"type:text;primaryKey"`
	FamilyID    googleUuid.UUID `gorm:"type:text;not null;index"`
	UserID      googleUuid.UUID `gorm:"type:text;not null;index"`
	RealmID     googleUuid.UUID `gorm:"type:text;not null"`
	ClientID    *string
	ExpiresAt   time.Time `gorm:"not null"`
	CreatedAt   time.Time
	LastUsedAt  time.Time
	RevokedAt   *time.Time
	ReplacedBy  NullableUUID `gorm:"type:text"`
	IPAddress   *string
	UserAgent   *string
}

func (RefreshToken) TableName() string { return "refresh_tokens" }

func NewRefreshToken(userID, realmID googleUuid.UUID, clientID *string, ttl time.Duration) *RefreshToken {
	now := time.Now().UTC()
	return &RefreshToken{
		ID:         googleUuid.Must(googleUuid.NewV7()),
		FamilyID:   googleUuid.Must(googleUuid.NewV7()),
		UserID:     userID,
		RealmID:    realmID,
		ClientID:   clientID,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
		LastUsedAt: now,
	}
}

func (r *RefreshToken) IsExpired() bool { return time.Now().UTC().After(r.ExpiresAt) }
func (r *RefreshToken) IsRevoked() bool { return r.RevokedAt != nil }
func (r *RefreshToken) IsLive() bool    { return !r.IsExpired() && !r.IsRevoked() }

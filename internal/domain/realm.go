// Copyright (c) 2025 Justin Cranford

package domain

import (
	"time"

	googleUuid "github.com/google/uuid"
	"gorm.io/gorm"
)

// FlowType names the four flow slots a Realm binds, per spec §3 Realm.
type FlowType string

const (
	FlowTypeBrowser          FlowType = "browser"
	FlowTypeRegistration     FlowType = "registration"
	FlowTypeDirectGrant      FlowType = "direct_grant"
	FlowTypeResetCredentials FlowType = "reset_credentials"
)

// Realm is the tenant boundary: every user, role, group, client, session
// and refresh token is scoped to exactly one realm (spec §3 Realm).
type Realm struct {
	ID                        googleUuid.UUID `gorm:"type:text;primaryKey"`
	Name                      string          `gorm:"uniqueIndex;not null"`
	AccessTokenTTLSecs        int             `gorm:"not null;default:300"`
	RefreshTokenTTLSecs       int             `gorm:"not null;default:2592000"`
	PKCERequiredPublicClients IntBool         `gorm:"not null;default:1"`
	LockoutThreshold          int             `gorm:"not null;default:5"`
	LockoutDurationSecs       int             `gorm:"not null;default:900"`
	BrowserFlowID             NullableUUID    `gorm:"type:text"`
	RegistrationFlowID        NullableUUID    `gorm:"type:text"`
	DirectGrantFlowID         NullableUUID    `gorm:"type:text"`
	ResetCredentialsFlowID    NullableUUID    `gorm:"type:text"`
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

func (Realm) TableName() string { return "realms" }

func (r *Realm) BeforeCreate(_ *gorm.DB) error {
	if r.ID == googleUuid.Nil {
		r.ID = googleUuid.Must(googleUuid.NewV7())
	}
	return nil
}

// FlowIDFor returns the realm's configured flow id for a slot, per spec
// §3 Realm's four flow-slot ids.
func (r *Realm) FlowIDFor(t FlowType) *googleUuid.UUID {
	switch t {
	case FlowTypeBrowser:
		return r.BrowserFlowID.Ptr()
	case FlowTypeRegistration:
		return r.RegistrationFlowID.Ptr()
	case FlowTypeDirectGrant:
		return r.DirectGrantFlowID.Ptr()
	case FlowTypeResetCredentials:
		return r.ResetCredentialsFlowID.Ptr()
	default:
		return nil
	}
}

// User is unique by (realm_id, username); HashedPassword is an Argon2id
// encoded hash string (spec §3 User).
type User struct {
	ID             googleUuid.UUID `gorm:"type:text;primaryKey"`
	RealmID        googleUuid.UUID `gorm:"type:text;not null;uniqueIndex:idx_user_realm_username"`
	Username       string          `gorm:"not null;uniqueIndex:idx_user_realm_username"`
	HashedPassword string          `gorm:"not null"`
	// OTPSecret is a base32 TOTP seed, set once the user enrolls in the
	// core.auth.otp.verify node's second factor (SUPPLEMENT §4 2FA).
	OTPSecret *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == googleUuid.Nil {
		u.ID = googleUuid.Must(googleUuid.NewV7())
	}
	return nil
}

// Copyright (c) 2025 Justin Cranford

package domain

import (
	"time"

	googleUuid "github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionStatus is the lifecycle state of an AuthenticationSession
// (spec §3 AuthenticationSession).
type SessionStatus string

const (
	SessionActive    SessionStatus = "Active"
	SessionCompleted SessionStatus = "Completed"
	SessionFailed    SessionStatus = "Failed"
	SessionExpired   SessionStatus = "Expired"
)

// Reserved context keys, spec §3 AuthenticationSession.
const (
	CtxSSOTokenID       = "sso_token_id"
	CtxOIDC             = "oidc"
	CtxError            = "error"
	CtxUsername         = "username"
	CtxPendingActionID  = "pending_action_id"
	CtxLastUI           = "last_ui"
	CtxActionResult     = "action_result"
)

// AuthenticationSession is the per-user, per-attempt flow state machine
// instance (spec §3 AuthenticationSession). Context is the free-form JSON
// scratch pad nodes read and write.
type AuthenticationSession struct {
	ID            googleUuid.UUID `gorm:"type:text;primaryKey"`
	RealmID       googleUuid.UUID `gorm:"type:text;not null;index"`
	FlowVersionID googleUuid.UUID `gorm:"type:text;not null"`
	CurrentNodeID string          `gorm:"not null"`
	UserID        NullableUUID    `gorm:"type:text"`
	Status        SessionStatus   `gorm:"not null"`
	Context       JSON            `gorm:"type:text"`
	ExpiresAt     time.Time       `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (AuthenticationSession) TableName() string { return "authentication_sessions" }

func (s *AuthenticationSession) BeforeCreate(_ *gorm.DB) error {
	if s.ID == googleUuid.Nil {
		s.ID = googleUuid.Must(googleUuid.NewV7())
	}
	if s.Context == nil {
		s.Context = JSON{}
	}
	return nil
}

func (s *AuthenticationSession) IsExpired() bool { return time.Now().UTC().After(s.ExpiresAt) }

// UpdateContext sets a single reserved/scratch key, mirroring the Rust
// original's `session.update_context`.
func (s *AuthenticationSession) UpdateContext(key string, value any) {
	if s.Context == nil {
		s.Context = JSON{}
	}
	s.Context.Set(key, value)
}

func (s *AuthenticationSession) ClearPendingAction() {
	if s.Context == nil {
		return
	}
	s.Context.Delete(CtxPendingActionID)
	s.Context.Delete(CtxLastUI)
}

func (s *AuthenticationSession) HasPendingAction() bool {
	if s.Context == nil {
		return false
	}
	_, ok := s.Context.Get(CtxPendingActionID)
	return ok
}

// LastUI reconstructs the (screen_id, context) pair cached at the last
// SuspendForAsync, or ok=false if absent/malformed.
func (s *AuthenticationSession) LastUI() (screenID string, ctx JSON, ok bool) {
	raw, present := s.Context.Get(CtxLastUI)
	if !present {
		return "", nil, false
	}
	m, isMap := raw.(map[string]any)
	if !isMap {
		return "", nil, false
	}
	screenID, _ = m["screen_id"].(string)
	if screenID == "" {
		return "", nil, false
	}
	innerCtx, _ := m["context"].(map[string]any)
	return screenID, JSON(innerCtx), true
}

// ActionType enumerates the out-of-band continuation kinds; new kinds can
// be registered by node implementations, this is not a closed set.
type ActionType string

// AuthSessionAction represents an outstanding asynchronous resume (spec
// §3 AuthSessionAction). Only the token hash is persisted.
type AuthSessionAction struct {
	ID            googleUuid.UUID `gorm:"type:text;primaryKey"`
	SessionID     googleUuid.UUID `gorm:"type:text;not null;index"`
	RealmID       googleUuid.UUID `gorm:"type:text;not null"`
	ActionType    string          `gorm:"not null"`
	TokenHash     string          `gorm:"not null;uniqueIndex"`
	Payload       JSON            `gorm:"type:text"`
	ResumeNodeID  *string
	ExpiresAt     time.Time `gorm:"not null"`
	ConsumedAt    *time.Time
	CreatedAt     time.Time
}

func (AuthSessionAction) TableName() string { return "auth_session_actions" }

func (a *AuthSessionAction) BeforeCreate(_ *gorm.DB) error {
	if a.ID == googleUuid.Nil {
		a.ID = googleUuid.Must(googleUuid.NewV7())
	}
	return nil
}

func (a *AuthSessionAction) IsExpired() bool  { return time.Now().UTC().After(a.ExpiresAt) }
func (a *AuthSessionAction) IsConsumed() bool { return a.ConsumedAt != nil }

// LoginAttempt is the per-(realm, username) lockout counter (spec §3
// LoginAttempt).
type LoginAttempt struct {
	RealmID      googleUuid.UUID `gorm:"type:text;primaryKey"`
	Username     string          `gorm:"primaryKey"`
	FailureCount int             `gorm:"not null;default:0"`
	LockedUntil  *time.Time
}

func (LoginAttempt) TableName() string { return "login_attempts" }

func (l *LoginAttempt) IsLocked() bool {
	return l.LockedUntil != nil && time.Now().UTC().Before(*l.LockedUntil)
}

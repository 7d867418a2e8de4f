// Copyright (c) 2025 Justin Cranford

package repository

import (
	"context"
	"errors"
	"time"

	reauthApperr "github.com/reauth/reauth/internal/apperr"
	reauthDomain "github.com/reauth/reauth/internal/domain"

	googleUuid "github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionRepository persists AuthenticationSession, AuthSessionAction
// and LoginAttempt rows (spec §3).
type SessionRepository struct{ db *gorm.DB }

func (r *SessionRepository) CreateSession(ctx context.Context, session *reauthDomain.AuthenticationSession) error {
	if err := dbFromContext(ctx, r.db).Create(session).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *SessionRepository) SaveSession(ctx context.Context, session *reauthDomain.AuthenticationSession) error {
	if err := dbFromContext(ctx, r.db).Save(session).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *SessionRepository) GetSession(ctx context.Context, id googleUuid.UUID) (*reauthDomain.AuthenticationSession, error) {
	var session reauthDomain.AuthenticationSession
	err := dbFromContext(ctx, r.db).First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reauthApperr.InvalidLoginSession("session not found")
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &session, nil
}

func (r *SessionRepository) CreateAction(ctx context.Context, action *reauthDomain.AuthSessionAction) error {
	if err := dbFromContext(ctx, r.db).Create(action).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

// GetActionByTokenHash looks up a pending action by the SHA-256 hash of
// the presented token; only the hash is ever persisted (spec §4.1
// "Resume-token design").
func (r *SessionRepository) GetActionByTokenHash(ctx context.Context, tokenHash string) (*reauthDomain.AuthSessionAction, error) {
	var action reauthDomain.AuthSessionAction
	err := dbFromContext(ctx, r.db).First(&action, "token_hash = ?", tokenHash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reauthApperr.InvalidActionToken("unknown action token")
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &action, nil
}

func (r *SessionRepository) ConsumeAction(ctx context.Context, id googleUuid.UUID) error {
	now := time.Now().UTC()
	err := dbFromContext(ctx, r.db).Model(&reauthDomain.AuthSessionAction{}).
		Where("id = ?", id).Update("consumed_at", now).Error
	if err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

// --- Login attempts ---

// GetOrCreateLoginAttempt loads the (realm,username) lockout counter,
// creating a zeroed row if absent.
func (r *SessionRepository) GetOrCreateLoginAttempt(ctx context.Context, realmID googleUuid.UUID, username string) (*reauthDomain.LoginAttempt, error) {
	db := dbFromContext(ctx, r.db)
	var attempt reauthDomain.LoginAttempt
	err := db.First(&attempt, "realm_id = ? AND username = ?", realmID, username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		attempt = reauthDomain.LoginAttempt{RealmID: realmID, Username: username}
		if err := db.Create(&attempt).Error; err != nil {
			return nil, reauthApperr.Unexpected(err)
		}
		return &attempt, nil
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &attempt, nil
}

func (r *SessionRepository) SaveLoginAttempt(ctx context.Context, attempt *reauthDomain.LoginAttempt) error {
	if err := dbFromContext(ctx, r.db).Save(attempt).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

// --- Cleanup ---

// DeleteExpiredSessions removes sessions past their expires_at, but only
// once they've left Active (a still-active session past its own
// expires_at is healed to Expired by the executor on next access, not
// deleted out from under it).
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	result := dbFromContext(ctx, r.db).
		Where("status != ? AND expires_at < ?", reauthDomain.SessionActive, before).
		Delete(&reauthDomain.AuthenticationSession{})
	if result.Error != nil {
		return 0, reauthApperr.Unexpected(result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteExpiredActions removes consumed or expired async resume tokens.
func (r *SessionRepository) DeleteExpiredActions(ctx context.Context, before time.Time) (int64, error) {
	result := dbFromContext(ctx, r.db).
		Where("consumed_at IS NOT NULL OR expires_at < ?", before).
		Delete(&reauthDomain.AuthSessionAction{})
	if result.Error != nil {
		return 0, reauthApperr.Unexpected(result.Error)
	}
	return result.RowsAffected, nil
}

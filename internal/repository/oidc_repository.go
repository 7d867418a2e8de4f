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

// OidcRepository persists OidcClient, AuthorizationCode and RefreshToken
// rows (spec §3 OidcClient/AuthorizationCode/RefreshToken, §4.2/§4.3).
type OidcRepository struct{ db *gorm.DB }

// --- Clients ---

func (r *OidcRepository) CreateClient(ctx context.Context, client *reauthDomain.OidcClient) error {
	if err := dbFromContext(ctx, r.db).Create(client).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *OidcRepository) FindClient(ctx context.Context, realmID googleUuid.UUID, clientID string) (*reauthDomain.OidcClient, error) {
	var client reauthDomain.OidcClient
	err := dbFromContext(ctx, r.db).First(&client, "realm_id = ? AND client_id = ?", realmID, clientID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reauthApperr.OidcClientNotFound("unknown client")
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &client, nil
}

// --- Authorization codes ---

func (r *OidcRepository) CreateCode(ctx context.Context, code *reauthDomain.AuthorizationCode) error {
	if err := dbFromContext(ctx, r.db).Create(code).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

// ConsumeCode loads and deletes the code row atomically; spec §3
// AuthorizationCode is "single-use; deleted on redemption" and spec §8
// scenario 3 requires the row gone even on PKCE mismatch, so the
// deletion happens unconditionally on lookup, before the caller
// verifies PKCE.
func (r *OidcRepository) ConsumeCode(ctx context.Context, code string) (*reauthDomain.AuthorizationCode, error) {
	var row reauthDomain.AuthorizationCode
	err := dbFromContext(ctx, r.db).First(&row, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reauthApperr.OidcInvalidCode("unknown authorization code")
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	if err := dbFromContext(ctx, r.db).Delete(&reauthDomain.AuthorizationCode{}, "code = ?", code).Error; err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &row, nil
}

// --- Refresh tokens ---

func (r *OidcRepository) CreateRefreshToken(ctx context.Context, token *reauthDomain.RefreshToken) error {
	if err := dbFromContext(ctx, r.db).Create(token).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *OidcRepository) GetRefreshToken(ctx context.Context, id googleUuid.UUID) (*reauthDomain.RefreshToken, error) {
	var token reauthDomain.RefreshToken
	err := dbFromContext(ctx, r.db).First(&token, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reauthApperr.InvalidRefreshToken("unknown refresh token")
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &token, nil
}

func (r *OidcRepository) SaveRefreshToken(ctx context.Context, token *reauthDomain.RefreshToken) error {
	if err := dbFromContext(ctx, r.db).Save(token).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

// ListFamily returns every row sharing familyID (spec §3 RefreshToken
// rotation semantics). Revoking a family is done by RevokeFamily, not
// through this list.
func (r *OidcRepository) ListFamily(ctx context.Context, familyID googleUuid.UUID) ([]reauthDomain.RefreshToken, error) {
	var tokens []reauthDomain.RefreshToken
	if err := dbFromContext(ctx, r.db).Where("family_id = ?", familyID).Find(&tokens).Error; err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return tokens, nil
}

// RevokeFamily marks every live row in familyID revoked; used on replay
// detection (spec §4.3) and on logout.
func (r *OidcRepository) RevokeFamily(ctx context.Context, familyID googleUuid.UUID) error {
	now := time.Now().UTC()
	err := dbFromContext(ctx, r.db).Model(&reauthDomain.RefreshToken{}).
		Where("family_id = ? AND revoked_at IS NULL", familyID).
		Update("revoked_at", now).Error
	if err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

// --- Cleanup ---

// DeleteExpiredCodes removes authorization codes past their (<=60s) TTL
// that a client never redeemed.
func (r *OidcRepository) DeleteExpiredCodes(ctx context.Context, before time.Time) (int64, error) {
	result := dbFromContext(ctx, r.db).Where("expires_at < ?", before).Delete(&reauthDomain.AuthorizationCode{})
	if result.Error != nil {
		return 0, reauthApperr.Unexpected(result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteExpiredRefreshTokens removes revoked or expired refresh tokens;
// a live, unexpired token is kept even past its family's revocation of
// a sibling, since rotation history is only as old as the tokens it
// touches.
func (r *OidcRepository) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	result := dbFromContext(ctx, r.db).
		Where("expires_at < ? OR revoked_at IS NOT NULL", before).
		Delete(&reauthDomain.RefreshToken{})
	if result.Error != nil {
		return 0, reauthApperr.Unexpected(result.Error)
	}
	return result.RowsAffected, nil
}

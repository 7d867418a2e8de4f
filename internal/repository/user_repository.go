// Copyright (c) 2025 Justin Cranford

package repository

import (
	"context"
	"errors"

	reauthApperr "github.com/reauth/reauth/internal/apperr"
	reauthDomain "github.com/reauth/reauth/internal/domain"

	googleUuid "github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository persists User rows, unique by (realm_id, username)
// (spec §3 User).
type UserRepository struct{ db *gorm.DB }

func (r *UserRepository) Create(ctx context.Context, user *reauthDomain.User) error {
	if err := dbFromContext(ctx, r.db).Create(user).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *UserRepository) Update(ctx context.Context, user *reauthDomain.User) error {
	if err := dbFromContext(ctx, r.db).Save(user).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id googleUuid.UUID) (*reauthDomain.User, error) {
	var user reauthDomain.User
	err := dbFromContext(ctx, r.db).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reauthApperr.NotFound("user not found", nil)
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &user, nil
}

// GetByUsername looks up a user by (realm_id, username); deliberately
// returns the same NotFound shape on a missing username that the caller
// is expected to fold into InvalidCredentials, never leaking which half
// of the pair was wrong (spec §7 "also returned on unknown user to avoid
// enumeration").
func (r *UserRepository) GetByUsername(ctx context.Context, realmID googleUuid.UUID, username string) (*reauthDomain.User, error) {
	var user reauthDomain.User
	err := dbFromContext(ctx, r.db).First(&user, "realm_id = ? AND username = ?", realmID, username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reauthApperr.NotFound("user not found", nil)
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &user, nil
}

func (r *UserRepository) List(ctx context.Context, realmID googleUuid.UUID, req PageRequest) (PageResponse[reauthDomain.User], error) {
	req = req.Normalize()
	db := dbFromContext(ctx, r.db).Model(&reauthDomain.User{}).Where("realm_id = ?", realmID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return PageResponse[reauthDomain.User]{}, reauthApperr.Unexpected(err)
	}

	var users []reauthDomain.User
	if err := db.Order("username").Offset(req.offset()).Limit(req.limit()).Find(&users).Error; err != nil {
		return PageResponse[reauthDomain.User]{}, reauthApperr.Unexpected(err)
	}
	return NewPageResponse(users, total, req), nil
}

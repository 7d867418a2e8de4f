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

// RealmRepository persists Realm rows (spec §3 Realm).
type RealmRepository struct{ db *gorm.DB }

func (r *RealmRepository) Create(ctx context.Context, realm *reauthDomain.Realm) error {
	if err := dbFromContext(ctx, r.db).Create(realm).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *RealmRepository) Update(ctx context.Context, realm *reauthDomain.Realm) error {
	if err := dbFromContext(ctx, r.db).Save(realm).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *RealmRepository) GetByID(ctx context.Context, id googleUuid.UUID) (*reauthDomain.Realm, error) {
	var realm reauthDomain.Realm
	err := dbFromContext(ctx, r.db).First(&realm, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reauthApperr.NotFound("realm not found", nil)
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &realm, nil
}

// GetByName looks up a realm by its unique name; the entry point for
// every HTTP route keyed on {realm} (spec §6 routing table).
func (r *RealmRepository) GetByName(ctx context.Context, name string) (*reauthDomain.Realm, error) {
	var realm reauthDomain.Realm
	err := dbFromContext(ctx, r.db).First(&realm, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reauthApperr.NotFound("realm not found", nil)
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &realm, nil
}

func (r *RealmRepository) List(ctx context.Context) ([]reauthDomain.Realm, error) {
	var realms []reauthDomain.Realm
	if err := dbFromContext(ctx, r.db).Order("name").Find(&realms).Error; err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return realms, nil
}

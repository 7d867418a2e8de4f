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

// FlowRepository persists FlowDraft/FlowVersion/FlowDeployment rows
// (spec §3, grounded on original_source/src/ports/flow_store.rs).
type FlowRepository struct{ db *gorm.DB }

// --- Drafts ---

func (r *FlowRepository) CreateDraft(ctx context.Context, draft *reauthDomain.FlowDraft) error {
	if err := dbFromContext(ctx, r.db).Create(draft).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *FlowRepository) UpdateDraft(ctx context.Context, draft *reauthDomain.FlowDraft) error {
	if err := dbFromContext(ctx, r.db).Save(draft).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *FlowRepository) GetDraftByID(ctx context.Context, id googleUuid.UUID) (*reauthDomain.FlowDraft, error) {
	var draft reauthDomain.FlowDraft
	err := dbFromContext(ctx, r.db).First(&draft, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reauthApperr.NotFound("flow draft not found", nil)
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &draft, nil
}

func (r *FlowRepository) ListDrafts(ctx context.Context, realmID googleUuid.UUID, req PageRequest) (PageResponse[reauthDomain.FlowDraft], error) {
	req = req.Normalize()
	db := dbFromContext(ctx, r.db).Model(&reauthDomain.FlowDraft{}).Where("realm_id = ?", realmID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return PageResponse[reauthDomain.FlowDraft]{}, reauthApperr.Unexpected(err)
	}
	var drafts []reauthDomain.FlowDraft
	if err := db.Order("name").Offset(req.offset()).Limit(req.limit()).Find(&drafts).Error; err != nil {
		return PageResponse[reauthDomain.FlowDraft]{}, reauthApperr.Unexpected(err)
	}
	return NewPageResponse(drafts, total, req), nil
}

func (r *FlowRepository) DeleteDraft(ctx context.Context, id googleUuid.UUID) error {
	if err := dbFromContext(ctx, r.db).Delete(&reauthDomain.FlowDraft{}, "id = ?", id).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

// --- Versions ---

func (r *FlowRepository) CreateVersion(ctx context.Context, version *reauthDomain.FlowVersion) error {
	if err := dbFromContext(ctx, r.db).Create(version).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *FlowRepository) GetVersion(ctx context.Context, id googleUuid.UUID) (*reauthDomain.FlowVersion, error) {
	var version reauthDomain.FlowVersion
	err := dbFromContext(ctx, r.db).First(&version, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reauthApperr.NotFound("flow version not found", nil)
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &version, nil
}

func (r *FlowRepository) GetLatestVersionNumber(ctx context.Context, flowID googleUuid.UUID) (int, error) {
	var version reauthDomain.FlowVersion
	err := dbFromContext(ctx, r.db).Where("flow_id = ?", flowID).Order("version_number DESC").First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, reauthApperr.Unexpected(err)
	}
	return version.VersionNumber, nil
}

func (r *FlowRepository) ListVersions(ctx context.Context, flowID googleUuid.UUID, req PageRequest) (PageResponse[reauthDomain.FlowVersion], error) {
	req = req.Normalize()
	db := dbFromContext(ctx, r.db).Model(&reauthDomain.FlowVersion{}).Where("flow_id = ?", flowID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return PageResponse[reauthDomain.FlowVersion]{}, reauthApperr.Unexpected(err)
	}
	var versions []reauthDomain.FlowVersion
	if err := db.Order("version_number DESC").Offset(req.offset()).Limit(req.limit()).Find(&versions).Error; err != nil {
		return PageResponse[reauthDomain.FlowVersion]{}, reauthApperr.Unexpected(err)
	}
	return NewPageResponse(versions, total, req), nil
}

// --- Deployments ---

func (r *FlowRepository) SetDeployment(ctx context.Context, deployment *reauthDomain.FlowDeployment) error {
	err := dbFromContext(ctx, r.db).
		Where("realm_id = ? AND flow_type = ?", deployment.RealmID, deployment.FlowType).
		Assign(reauthDomain.FlowDeployment{FlowID: deployment.FlowID, ActiveVersionID: deployment.ActiveVersionID}).
		FirstOrCreate(deployment).Error
	if err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *FlowRepository) GetDeployment(ctx context.Context, realmID googleUuid.UUID, flowType string) (*reauthDomain.FlowDeployment, error) {
	var deployment reauthDomain.FlowDeployment
	err := dbFromContext(ctx, r.db).First(&deployment, "realm_id = ? AND flow_type = ?", realmID, flowType).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reauthApperr.NotFound("flow deployment not found", nil)
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &deployment, nil
}

// GetActiveVersion resolves the ExecutionPlan-carrying version currently
// deployed for (realmID, flowType); the executor's and /authorize's
// single entry point into flow resolution.
func (r *FlowRepository) GetActiveVersion(ctx context.Context, realmID googleUuid.UUID, flowType string) (*reauthDomain.FlowVersion, error) {
	deployment, err := r.GetDeployment(ctx, realmID, flowType)
	if err != nil {
		return nil, err
	}
	return r.GetVersion(ctx, deployment.ActiveVersionID)
}

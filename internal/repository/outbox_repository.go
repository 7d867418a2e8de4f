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

// OutboxRepository persists EventOutbox rows and claims them for the
// background dispatcher (spec §4.5).
type OutboxRepository struct{ db *gorm.DB }

func (r *OutboxRepository) Create(ctx context.Context, row *reauthDomain.EventOutbox) error {
	if err := dbFromContext(ctx, r.db).Create(row).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

// ClaimBatch selects up to limit rows eligible for delivery and
// CAS-claims them as `processing` under workerID in one statement per
// row, so at most one worker ever holds a row (spec §4.5 dispatcher loop
// steps 1-2, §5 "Outbox row claiming uses atomic CAS on status").
// staleBefore is the locked_at cutoff past which a row is considered
// abandoned by a crashed worker and eligible to be stolen.
func (r *OutboxRepository) ClaimBatch(ctx context.Context, workerID string, nowMillis, staleBefore int64, limit int) ([]reauthDomain.EventOutbox, error) {
	db := dbFromContext(ctx, r.db)

	var candidates []reauthDomain.EventOutbox
	err := db.Where(
		"status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?) AND (locked_at IS NULL OR locked_at < ?)",
		[]reauthDomain.OutboxStatus{reauthDomain.OutboxPending, reauthDomain.OutboxRetry}, nowMillis, staleBefore,
	).Order("occurred_at").Limit(limit).Find(&candidates).Error
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}

	claimed := make([]reauthDomain.EventOutbox, 0, len(candidates))
	for _, candidate := range candidates {
		result := db.Model(&reauthDomain.EventOutbox{}).
			Where("id = ? AND status = ?", candidate.ID, candidate.Status).
			Updates(map[string]any{
				"status":    reauthDomain.OutboxProcessing,
				"locked_at": nowMillis,
				"locked_by": workerID,
			})
		if result.Error != nil {
			return nil, reauthApperr.Unexpected(result.Error)
		}
		if result.RowsAffected == 1 {
			candidate.Status = reauthDomain.OutboxProcessing
			claimed = append(claimed, candidate)
		}
	}
	return claimed, nil
}

func (r *OutboxRepository) Save(ctx context.Context, row *reauthDomain.EventOutbox) error {
	if err := dbFromContext(ctx, r.db).Save(row).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *OutboxRepository) GetByID(ctx context.Context, id googleUuid.UUID) (*reauthDomain.EventOutbox, error) {
	var row reauthDomain.EventOutbox
	err := dbFromContext(ctx, r.db).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reauthApperr.NotFound("outbox row not found", nil)
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &row, nil
}

// --- Webhooks ---

// WebhookRepository persists WebhookEndpoint, WebhookSubscription and
// DeliveryLog rows (spec §3 WebhookEndpoint/Subscription/DeliveryLog).
type WebhookRepository struct{ db *gorm.DB }

func (r *WebhookRepository) CreateEndpoint(ctx context.Context, endpoint *reauthDomain.WebhookEndpoint) error {
	if err := dbFromContext(ctx, r.db).Create(endpoint).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *WebhookRepository) SaveEndpoint(ctx context.Context, endpoint *reauthDomain.WebhookEndpoint) error {
	if err := dbFromContext(ctx, r.db).Save(endpoint).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *WebhookRepository) GetEndpoint(ctx context.Context, id googleUuid.UUID) (*reauthDomain.WebhookEndpoint, error) {
	var endpoint reauthDomain.WebhookEndpoint
	err := dbFromContext(ctx, r.db).First(&endpoint, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reauthApperr.NotFound("webhook endpoint not found", nil)
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &endpoint, nil
}

func (r *WebhookRepository) ListEndpoints(ctx context.Context, realmID googleUuid.UUID, req PageRequest) (PageResponse[reauthDomain.WebhookEndpoint], error) {
	req = req.Normalize()
	db := dbFromContext(ctx, r.db).Model(&reauthDomain.WebhookEndpoint{}).Where("realm_id = ?", realmID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return PageResponse[reauthDomain.WebhookEndpoint]{}, reauthApperr.Unexpected(err)
	}
	var endpoints []reauthDomain.WebhookEndpoint
	if err := db.Order("name").Offset(req.offset()).Limit(req.limit()).Find(&endpoints).Error; err != nil {
		return PageResponse[reauthDomain.WebhookEndpoint]{}, reauthApperr.Unexpected(err)
	}
	return NewPageResponse(endpoints, total, req), nil
}

// TargetsFor resolves active, enabled endpoints subscribed to eventType
// within realmID (spec §4.5 step 3: "join on webhook_subscriptions by
// event_type + realm_id, and filter endpoints with status='active' and
// enabled=1").
func (r *WebhookRepository) TargetsFor(ctx context.Context, realmID googleUuid.UUID, eventType string) ([]reauthDomain.WebhookEndpoint, error) {
	var endpointIDs []googleUuid.UUID
	err := dbFromContext(ctx, r.db).Model(&reauthDomain.WebhookSubscription{}).
		Where("event_type = ? AND enabled = ?", eventType, reauthDomain.IntBool(true)).
		Pluck("endpoint_id", &endpointIDs).Error
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	if len(endpointIDs) == 0 {
		return nil, nil
	}

	var endpoints []reauthDomain.WebhookEndpoint
	err = dbFromContext(ctx, r.db).
		Where("id IN ? AND realm_id = ? AND status = ?", endpointIDs, realmID, reauthDomain.WebhookActive).
		Find(&endpoints).Error
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return endpoints, nil
}

func (r *WebhookRepository) Subscribe(ctx context.Context, endpointID googleUuid.UUID, eventType string) error {
	sub := reauthDomain.WebhookSubscription{EndpointID: endpointID, EventType: eventType, Enabled: true}
	if err := dbFromContext(ctx, r.db).Create(&sub).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *WebhookRepository) CreateDeliveryLog(ctx context.Context, log *reauthDomain.DeliveryLog) error {
	if err := dbFromContext(ctx, r.db).Create(log).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

// LatestDeliveryLog returns the most recent attempt against a target
// for a given outbox row, the basis replay_delivery repeats (spec §4.5
// Replay).
func (r *WebhookRepository) LatestDeliveryLog(ctx context.Context, outboxID, endpointID googleUuid.UUID) (*reauthDomain.DeliveryLog, error) {
	var log reauthDomain.DeliveryLog
	err := dbFromContext(ctx, r.db).
		Where("outbox_id = ? AND endpoint_id = ?", outboxID, endpointID).
		Order("attempt_number DESC").First(&log).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reauthApperr.NotFound("delivery log not found", nil)
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &log, nil
}

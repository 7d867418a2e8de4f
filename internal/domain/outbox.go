// Copyright (c) 2025 Justin Cranford

package domain

import (
	"time"

	googleUuid "github.com/google/uuid"
	"gorm.io/gorm"
)

// OutboxStatus is the lifecycle state of an EventOutbox row (spec §3
// EventOutbox, §4.5 dispatch loop).
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxRetry      OutboxStatus = "retry"
	OutboxDelivered  OutboxStatus = "delivered"
	OutboxDead       OutboxStatus = "dead"
	OutboxSkipped    OutboxStatus = "skipped"
)

// EventOutbox is the single source of truth for fan-out; it is written in
// the same transaction as the business change that produced it (spec §3
// EventOutbox, §4.5 Publish). NextAttemptAt/LockedAt are epoch-millis to
// avoid the SQLite text-datetime drift the source's comparison logic was
// exposed to.
type EventOutbox struct {
	ID            googleUuid.UUID `gorm:"type:text;primaryKey"`
	RealmID       NullableUUID    `gorm:"type:text;index"`
	EventType     string          `gorm:"not null;index"`
	EventVersion  string          `gorm:"not null;default:'v1'"`
	Payload       JSON            `gorm:"type:text"`
	AttemptCount  int             `gorm:"not null;default:0"`
	Status        OutboxStatus    `gorm:"not null;index"`
	NextAttemptAt *int64
	LockedAt      *int64
	LockedBy      *string
	LastError     *string
	OccurredAt    time.Time `gorm:"not null"`
	CreatedAt     time.Time
}

func (EventOutbox) TableName() string { return "event_outbox" }

func (e *EventOutbox) BeforeCreate(_ *gorm.DB) error {
	if e.ID == googleUuid.Nil {
		e.ID = googleUuid.Must(googleUuid.NewV7())
	}
	if e.Status == "" {
		e.Status = OutboxPending
	}
	return nil
}

// Envelope is the canonical wire shape an EventOutbox.Payload encodes
// (spec §4.5 Publish: "{event_id, event_type, event_version, occurred_at,
// realm_id?, actor?, data}").
type Envelope struct {
	EventID      googleUuid.UUID `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion string          `json:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at"`
	RealmID      *googleUuid.UUID `json:"realm_id,omitempty"`
	Actor        *string          `json:"actor,omitempty"`
	Data         map[string]any   `json:"data"`
}

// WebhookStatus enumerates an endpoint's delivery eligibility (spec §3
// WebhookEndpoint).
type WebhookStatus string

const (
	WebhookActive         WebhookStatus = "active"
	WebhookDisabledSystem WebhookStatus = "disabled_system"
	WebhookDisabledUser   WebhookStatus = "disabled_user"
)

// WebhookHTTPMethod restricts delivery to the two methods spec §3 allows.
type WebhookHTTPMethod string

const (
	WebhookMethodPOST WebhookHTTPMethod = "POST"
	WebhookMethodPUT  WebhookHTTPMethod = "PUT"
)

// WebhookEndpoint is a realm-scoped delivery target; consecutive delivery
// failures past a threshold auto-disable it (spec §3 WebhookEndpoint,
// §4.5 step 7 / disable semantics).
type WebhookEndpoint struct {
	ID                  googleUuid.UUID `gorm:"type:text;primaryKey"`
	RealmID             googleUuid.UUID `gorm:"type:text;not null;index"`
	Name                string          `gorm:"not null"`
	URL                 string          `gorm:"not null"`
	HTTPMethod          WebhookHTTPMethod `gorm:"not null;default:'POST'"`
	Status              WebhookStatus     `gorm:"not null;default:'active'"`
	SigningSecret       string            `gorm:"not null"`
	CustomHeaders       JSON              `gorm:"type:text"`
	ConsecutiveFailures int               `gorm:"not null;default:0"`
	DisabledAt          *time.Time
	DisabledReason      *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (WebhookEndpoint) TableName() string { return "webhook_endpoints" }

func (w *WebhookEndpoint) BeforeCreate(_ *gorm.DB) error {
	if w.ID == googleUuid.Nil {
		w.ID = googleUuid.Must(googleUuid.NewV7())
	}
	if w.Status == "" {
		w.Status = WebhookActive
	}
	if w.HTTPMethod == "" {
		w.HTTPMethod = WebhookMethodPOST
	}
	return nil
}

func (w *WebhookEndpoint) IsDeliverable() bool { return w.Status == WebhookActive }

// WebhookSubscription is the many-to-many join between an endpoint and the
// event types it receives (spec §3 Subscription).
type WebhookSubscription struct {
	EndpointID googleUuid.UUID `gorm:"type:text;primaryKey"`
	EventType  string          `gorm:"primaryKey"`
	Enabled    IntBool         `gorm:"not null;default:1"`
}

func (WebhookSubscription) TableName() string { return "webhook_subscriptions" }

// DeliveryStatus is the outcome of one webhook delivery attempt.
type DeliveryStatus string

const (
	DeliverySucceeded DeliveryStatus = "succeeded"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DeliveryLog is the audit row per delivery attempt (spec §3 DeliveryLog,
// §4.5 step 5). replay_delivery appends a new row with AttemptNumber
// incremented; it never mutates the originating EventOutbox row.
type DeliveryLog struct {
	ID             googleUuid.UUID `gorm:"type:text;primaryKey"`
	OutboxID       googleUuid.UUID `gorm:"type:text;not null;index"`
	EndpointID     googleUuid.UUID `gorm:"type:text;not null;index"`
	AttemptNumber  int             `gorm:"not null"`
	Status         DeliveryStatus  `gorm:"not null"`
	RequestBody    string
	ResponseStatus *int
	ResponseBody   string
	LatencyMillis  int64
	ErrorChain     *string
	CreatedAt      time.Time
}

func (DeliveryLog) TableName() string { return "delivery_logs" }

func (d *DeliveryLog) BeforeCreate(_ *gorm.DB) error {
	if d.ID == googleUuid.Nil {
		d.ID = googleUuid.Must(googleUuid.NewV7())
	}
	return nil
}

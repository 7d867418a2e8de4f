// Copyright (c) 2025 Justin Cranford
//
// Package eventbus implements the transactional outbox and webhook
// dispatcher from spec §4.5: publish writes a durable outbox row in the
// same transaction as the business change, and a background dispatcher
// fans it out to subscribed webhook endpoints with retries and signing.
package eventbus

import (
	"context"
	"encoding/json"
	"time"

	reauthApperr "github.com/reauth/reauth/internal/apperr"
	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthRepository "github.com/reauth/reauth/internal/repository"

	googleUuid "github.com/google/uuid"
)

// Publisher writes outbox rows. Callers invoke Publish from inside an
// active RepositoryFactory.Transaction so the event commits atomically
// with the state change that produced it (spec §4.5 Publish: "no
// in-memory queue survives a crash").
type Publisher struct {
	repo *reauthRepository.OutboxRepository
}

func NewPublisher(repo *reauthRepository.OutboxRepository) *Publisher {
	return &Publisher{repo: repo}
}

// Publish builds the canonical envelope and persists it as a pending
// outbox row.
func (p *Publisher) Publish(ctx context.Context, eventType string, realmID *googleUuid.UUID, actor *string, data map[string]any) error {
	eventID := googleUuid.Must(googleUuid.NewV7())
	envelope := reauthDomain.Envelope{
		EventID:      eventID,
		EventType:    eventType,
		EventVersion: "v1",
		OccurredAt:   time.Now().UTC(),
		RealmID:      realmID,
		Actor:        actor,
		Data:         data,
	}

	payload, err := toPayload(envelope)
	if err != nil {
		return reauthApperr.Unexpected(err)
	}

	row := &reauthDomain.EventOutbox{
		ID:           eventID,
		EventType:    eventType,
		EventVersion: "v1",
		Payload:      payload,
		OccurredAt:   envelope.OccurredAt,
	}
	if realmID != nil {
		row.RealmID = reauthDomain.NewNullableUUID(realmID)
	}

	return p.repo.Create(ctx, row)
}

// toPayload round-trips envelope through JSON so EventOutbox.Payload
// stores exactly the wire shape a subscriber receives (spec §4.5 step 4
// "canonical JSON envelope").
func toPayload(envelope reauthDomain.Envelope) (reauthDomain.JSON, error) {
	raw, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return reauthDomain.JSON(m), nil
}

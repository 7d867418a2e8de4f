// Copyright (c) 2025 Justin Cranford

package eventbus

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	reauthApperr "github.com/reauth/reauth/internal/apperr"
	reauthDomain "github.com/reauth/reauth/internal/domain"

	googleUuid "github.com/google/uuid"
)

// Replay repeats the last delivery attempt for one (outbox, endpoint)
// pair on demand, writing a new DeliveryLog with an incremented attempt
// number; the outbox row's status and attempt_count are left untouched
// (spec §4.5 Replay).
func (d *Dispatcher) Replay(ctx context.Context, outboxID, endpointID googleUuid.UUID) (*reauthDomain.DeliveryLog, error) {
	row, err := d.outbox.GetByID(ctx, outboxID)
	if err != nil {
		return nil, err
	}
	endpoint, err := d.webhooks.GetEndpoint(ctx, endpointID)
	if err != nil {
		return nil, err
	}
	previous, err := d.webhooks.LatestDeliveryLog(ctx, outboxID, endpointID)
	if err != nil {
		if !reauthApperr.Is(err, reauthApperr.KindNotFound) {
			return nil, err
		}
		return nil, errNoPriorDelivery
	}

	body, err := json.Marshal(map[string]any(row.Payload))
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}

	start := time.Now()
	result, deliveryErr := d.breakerFor(endpoint).Execute(func() (any, error) {
		return d.send(ctx, endpoint, body)
	})
	latency := time.Since(start)

	log := &reauthDomain.DeliveryLog{
		OutboxID:      outboxID,
		EndpointID:    endpointID,
		AttemptNumber: previous.AttemptNumber + 1,
		RequestBody:   string(body),
		LatencyMillis: latency.Milliseconds(),
	}

	if deliveryErr != nil {
		errMsg := deliveryErr.Error()
		log.Status = reauthDomain.DeliveryFailed
		log.ErrorChain = &errMsg
	} else {
		resp := result.(*http.Response)
		defer resp.Body.Close()
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		status := resp.StatusCode
		log.ResponseStatus = &status
		log.ResponseBody = string(responseBody)
		if status >= 200 && status < 300 {
			log.Status = reauthDomain.DeliverySucceeded
		} else {
			log.Status = reauthDomain.DeliveryFailed
		}
	}

	if err := d.webhooks.CreateDeliveryLog(ctx, log); err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return log, nil
}

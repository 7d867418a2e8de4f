// Copyright (c) 2025 Justin Cranford

package eventbus

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthRepository "github.com/reauth/reauth/internal/repository"

	googleUuid "github.com/google/uuid"
	"github.com/sony/gobreaker"
)

const (
	batchSize           = 50
	staleLockWindow     = 5 * time.Minute
	deliveryTimeout     = 5 * time.Second
	disableAfterFailure = 10
)

// backoffSchedule is spec §4.5's five-step retry ladder; an outbox row
// that exhausts it goes to `dead`.
var backoffSchedule = []time.Duration{
	60 * time.Second,
	300 * time.Second,
	1800 * time.Second,
	7200 * time.Second,
	43200 * time.Second,
}

// backoffFor returns the delay before re-attempting attemptCount (1-based)
// with +/-20% uniform jitter, and whether a slot remains at all.
func backoffFor(attemptCount int) (time.Duration, bool) {
	if attemptCount < 1 || attemptCount > len(backoffSchedule) {
		return 0, false
	}
	base := backoffSchedule[attemptCount-1]
	jitter := 0.8 + rand.Float64()*0.4 // [0.8, 1.2)
	return time.Duration(float64(base) * jitter), true
}

// Dispatcher is the single background worker per process described in
// spec §4.5 "Dispatcher loop". It claims eligible outbox rows, resolves
// subscribed webhook endpoints, signs and delivers the envelope, and
// updates outbox/endpoint state from the outcome.
type Dispatcher struct {
	outbox     *reauthRepository.OutboxRepository
	webhooks   *reauthRepository.WebhookRepository
	httpClient *http.Client
	workerID   string
	logger     *slog.Logger

	mu       sync.Mutex
	breakers map[googleUuid.UUID]*gobreaker.CircuitBreaker
}

func NewDispatcher(outbox *reauthRepository.OutboxRepository, webhooks *reauthRepository.WebhookRepository, workerID string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		outbox:     outbox,
		webhooks:   webhooks,
		httpClient: &http.Client{Timeout: deliveryTimeout},
		workerID:   workerID,
		logger:     logger,
		breakers:   make(map[googleUuid.UUID]*gobreaker.CircuitBreaker),
	}
}

// Run polls every pollInterval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, pollInterval time.Duration) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.ProcessBatch(ctx); err != nil {
				d.logger.Error("outbox dispatch batch failed", "error", err, "worker_id", d.workerID)
			}
		}
	}
}

// ProcessBatch claims and delivers up to batchSize rows in one pass
// (spec §4.5 steps 1-7); it is exported so tests can drive a single
// pass synchronously.
func (d *Dispatcher) ProcessBatch(ctx context.Context) (int, error) {
	now := time.Now().UTC().UnixMilli()
	staleBefore := now - staleLockWindow.Milliseconds()

	rows, err := d.outbox.ClaimBatch(ctx, d.workerID, now, staleBefore, batchSize)
	if err != nil {
		return 0, err
	}

	for i := range rows {
		d.deliverRow(ctx, &rows[i])
	}
	return len(rows), nil
}

func (d *Dispatcher) deliverRow(ctx context.Context, row *reauthDomain.EventOutbox) {
	var targets []reauthDomain.WebhookEndpoint
	if row.RealmID.Valid {
		resolved, err := d.webhooks.TargetsFor(ctx, row.RealmID.UUID, row.EventType)
		if err != nil {
			d.logger.Error("resolving webhook targets", "error", err, "event_id", row.ID)
		} else {
			targets = resolved
		}
	}

	if len(targets) == 0 {
		row.Status = reauthDomain.OutboxSkipped
		row.LockedAt, row.LockedBy = nil, nil
		if err := d.outbox.Save(ctx, row); err != nil {
			d.logger.Error("saving skipped outbox row", "error", err, "event_id", row.ID)
		}
		return
	}

	body, err := json.Marshal(map[string]any(row.Payload))
	if err != nil {
		d.logger.Error("marshaling outbox payload", "error", err, "event_id", row.ID)
		return
	}

	row.AttemptCount++
	allSucceeded := true
	for _, target := range targets {
		if !d.deliverToTarget(ctx, row, &target, body) {
			allSucceeded = false
		}
	}

	switch {
	case allSucceeded:
		row.Status = reauthDomain.OutboxDelivered
		row.NextAttemptAt = nil
	default:
		if delay, hasSlot := backoffFor(row.AttemptCount); hasSlot {
			next := time.Now().UTC().Add(delay).UnixMilli()
			row.NextAttemptAt = &next
			row.Status = reauthDomain.OutboxRetry
		} else {
			row.Status = reauthDomain.OutboxDead
		}
	}
	row.LockedAt, row.LockedBy = nil, nil

	if err := d.outbox.Save(ctx, row); err != nil {
		d.logger.Error("saving dispatched outbox row", "error", err, "event_id", row.ID)
	}
}

// deliverToTarget signs and POSTs/PUTs body to one endpoint, records a
// DeliveryLog row, and updates the endpoint's consecutive-failure
// health (spec §4.5 steps 4-6). It returns whether the attempt
// succeeded.
func (d *Dispatcher) deliverToTarget(ctx context.Context, row *reauthDomain.EventOutbox, target *reauthDomain.WebhookEndpoint, body []byte) bool {
	start := time.Now()
	result, deliveryErr := d.breakerFor(target).Execute(func() (any, error) {
		return d.send(ctx, target, body)
	})
	latency := time.Since(start)

	var resp *http.Response
	if deliveryErr == nil {
		resp = result.(*http.Response)
	}

	log := &reauthDomain.DeliveryLog{
		OutboxID:      row.ID,
		EndpointID:    target.ID,
		AttemptNumber: row.AttemptCount,
		RequestBody:   string(body),
		LatencyMillis: latency.Milliseconds(),
	}

	succeeded := false
	if deliveryErr != nil {
		errMsg := deliveryErr.Error()
		log.Status = reauthDomain.DeliveryFailed
		log.ErrorChain = &errMsg
	} else {
		defer resp.Body.Close()
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		status := resp.StatusCode
		log.ResponseStatus = &status
		log.ResponseBody = string(responseBody)
		if status >= 200 && status < 300 {
			log.Status = reauthDomain.DeliverySucceeded
			succeeded = true
		} else {
			log.Status = reauthDomain.DeliveryFailed
			errMsg := fmt.Sprintf("endpoint responded %d", status)
			log.ErrorChain = &errMsg
		}
	}

	if err := d.webhooks.CreateDeliveryLog(ctx, log); err != nil {
		d.logger.Error("recording delivery log", "error", err, "endpoint_id", target.ID)
	}

	d.updateEndpointHealth(ctx, target, succeeded)
	return succeeded
}

func (d *Dispatcher) send(ctx context.Context, target *reauthDomain.WebhookEndpoint, body []byte) (*http.Response, error) {
	signature := sign(target.SigningSecret, body)

	reqCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, string(target.HTTPMethod), target.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	eventID, eventType, eventVersion := idHeader(body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Reauth-Event-Id", eventID)
	req.Header.Set("Reauth-Event-Type", eventType)
	req.Header.Set("Reauth-Event-Version", eventVersion)
	req.Header.Set("Reauth-Signature", signature)
	for key, value := range target.CustomHeaders {
		if s, ok := value.(string); ok {
			req.Header.Set(key, s)
		}
	}
	return d.httpClient.Do(req)
}

// idHeader extracts event_id/event_type/event_version straight from the
// already-marshaled envelope so the headers always agree with the body.
func idHeader(body []byte) (eventID, eventType, eventVersion string) {
	var envelope struct {
		EventID      string `json:"event_id"`
		EventType    string `json:"event_type"`
		EventVersion string `json:"event_version"`
	}
	_ = json.Unmarshal(body, &envelope)
	return envelope.EventID, envelope.EventType, envelope.EventVersion
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// updateEndpointHealth zeroes or increments ConsecutiveFailures and
// auto-disables the endpoint once it reaches disableAfterFailure (spec
// §4.5 step 6).
func (d *Dispatcher) updateEndpointHealth(ctx context.Context, target *reauthDomain.WebhookEndpoint, succeeded bool) {
	if succeeded {
		target.ConsecutiveFailures = 0
	} else {
		target.ConsecutiveFailures++
		if target.ConsecutiveFailures >= disableAfterFailure {
			now := time.Now().UTC()
			reason := "disabled after consecutive delivery failures"
			target.Status = reauthDomain.WebhookDisabledSystem
			target.DisabledAt = &now
			target.DisabledReason = &reason
		}
	}
	if err := d.webhooks.SaveEndpoint(ctx, target); err != nil {
		d.logger.Error("saving endpoint health", "error", err, "endpoint_id", target.ID)
	}
}

// breakerFor lazily creates a per-endpoint circuit breaker layered over
// the persisted consecutive-failure counter: it fails fast without a
// network round trip once an endpoint is already flapping, independent
// of the slower disable-at-10 threshold.
func (d *Dispatcher) breakerFor(target *reauthDomain.WebhookEndpoint) *gobreaker.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	if breaker, ok := d.breakers[target.ID]; ok {
		return breaker
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        target.ID.String(),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	d.breakers[target.ID] = breaker
	return breaker
}

// errNoPriorDelivery is returned by Replay when the target endpoint has never
// been attempted for the given outbox row.
var errNoPriorDelivery = errors.New("no prior delivery to replay")

// Test sends a synthetic envelope straight at endpoint, bypassing the
// outbox and subscription matching entirely, and records the attempt as
// a DeliveryLog with a zero OutboxID. It is the basis of the webhook
// "send test event" admin action: an operator wiring up a new endpoint
// wants an immediate yes/no, not a wait for the next real event.
func (d *Dispatcher) Test(ctx context.Context, endpoint *reauthDomain.WebhookEndpoint) (*reauthDomain.DeliveryLog, error) {
	body, err := json.Marshal(map[string]any{
		"event_id":   googleUuid.Must(googleUuid.NewV7()).String(),
		"event_type": "webhook.test",
		"test":       true,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, deliveryErr := d.send(ctx, endpoint, body)
	latency := time.Since(start)

	log := &reauthDomain.DeliveryLog{
		EndpointID:    endpoint.ID,
		AttemptNumber: 0,
		RequestBody:   string(body),
		LatencyMillis: latency.Milliseconds(),
	}
	if deliveryErr != nil {
		errMsg := deliveryErr.Error()
		log.Status = reauthDomain.DeliveryFailed
		log.ErrorChain = &errMsg
	} else {
		defer resp.Body.Close()
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		status := resp.StatusCode
		log.ResponseStatus = &status
		log.ResponseBody = string(responseBody)
		if status >= 200 && status < 300 {
			log.Status = reauthDomain.DeliverySucceeded
		} else {
			log.Status = reauthDomain.DeliveryFailed
			errMsg := fmt.Sprintf("endpoint responded %d", status)
			log.ErrorChain = &errMsg
		}
	}

	if err := d.webhooks.CreateDeliveryLog(ctx, log); err != nil {
		return nil, err
	}
	return log, nil
}

// Copyright (c) 2025 Justin Cranford

package httpapi

import (
	"net/http"

	reauthApperr "github.com/reauth/reauth/internal/apperr"
	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthRepository "github.com/reauth/reauth/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	googleUuid "github.com/google/uuid"
)

var validate = validator.New()

// webhookRequest is the wire shape for creating or updating an endpoint
// (spec §3 WebhookEndpoint, §6 webhook CRUD).
type webhookRequest struct {
	Name          string                         `json:"name" validate:"required"`
	URL           string                         `json:"url" validate:"required,url"`
	HTTPMethod    reauthDomain.WebhookHTTPMethod `json:"http_method" validate:"omitempty,oneof=POST PUT"`
	SigningSecret string                         `json:"signing_secret" validate:"required,min=16"`
	CustomHeaders map[string]any                 `json:"custom_headers"`
	EventTypes    []string                       `json:"event_types" validate:"required,min=1,dive,required"`
}

type webhookResponse struct {
	ID                  googleUuid.UUID                `json:"id"`
	Name                string                         `json:"name"`
	URL                 string                         `json:"url"`
	HTTPMethod          reauthDomain.WebhookHTTPMethod `json:"http_method"`
	Status              reauthDomain.WebhookStatus     `json:"status"`
	ConsecutiveFailures int                            `json:"consecutive_failures"`
}

func toWebhookResponse(e *reauthDomain.WebhookEndpoint) webhookResponse {
	return webhookResponse{
		ID:                  e.ID,
		Name:                e.Name,
		URL:                 e.URL,
		HTTPMethod:          e.HTTPMethod,
		Status:              e.Status,
		ConsecutiveFailures: e.ConsecutiveFailures,
	}
}

// listWebhooks implements spec §6 "/webhooks (GET): List endpoints".
func (rt *Router) listWebhooks(w http.ResponseWriter, r *http.Request) {
	realm := realmFromRequest(r)
	ctx, cancel := requestDeadline(r)
	defer cancel()

	req := reauthRepository.PageRequest{
		Page:    queryInt64(r, "page", 1),
		PerPage: queryInt64(r, "per_page", 20),
		SortBy:  r.URL.Query().Get("sort_by"),
	}
	page, err := rt.webhooks.ListEndpoints(ctx, realm.ID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]webhookResponse, len(page.Items))
	for i := range page.Items {
		items[i] = toWebhookResponse(&page.Items[i])
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"items": items, "meta": page.Meta})
}

// createWebhook implements spec §6 "/webhooks (POST): Register endpoint".
func (rt *Router) createWebhook(w http.ResponseWriter, r *http.Request) {
	realm := realmFromRequest(r)
	ctx, cancel := requestDeadline(r)
	defer cancel()

	var req webhookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, reauthApperr.Validation("malformed JSON body", err))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, r, reauthApperr.Validation("invalid webhook endpoint", err))
		return
	}

	endpoint := &reauthDomain.WebhookEndpoint{
		RealmID:       realm.ID,
		Name:          req.Name,
		URL:           req.URL,
		HTTPMethod:    req.HTTPMethod,
		SigningSecret: req.SigningSecret,
		CustomHeaders: reauthDomain.JSON(req.CustomHeaders),
	}
	if err := rt.webhooks.CreateEndpoint(ctx, endpoint); err != nil {
		writeError(w, r, err)
		return
	}
	for _, eventType := range req.EventTypes {
		if err := rt.webhooks.Subscribe(ctx, endpoint.ID, eventType); err != nil {
			writeError(w, r, err)
			return
		}
	}

	writeJSON(w, r, http.StatusCreated, toWebhookResponse(endpoint))
}

// getWebhook implements spec §6 "/webhooks/{id} (GET): Fetch endpoint".
func (rt *Router) getWebhook(w http.ResponseWriter, r *http.Request) {
	realm := realmFromRequest(r)
	ctx, cancel := requestDeadline(r)
	defer cancel()

	id, err := googleUuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, reauthApperr.Validation("malformed endpoint id", err))
		return
	}
	endpoint, err := rt.webhooks.GetEndpoint(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if endpoint.RealmID != realm.ID {
		writeError(w, r, reauthApperr.NotFound("webhook endpoint not found", nil))
		return
	}
	writeJSON(w, r, http.StatusOK, toWebhookResponse(endpoint))
}

// updateWebhook implements spec §6 "/webhooks/{id} (PUT): Update endpoint".
func (rt *Router) updateWebhook(w http.ResponseWriter, r *http.Request) {
	realm := realmFromRequest(r)
	ctx, cancel := requestDeadline(r)
	defer cancel()

	id, err := googleUuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, reauthApperr.Validation("malformed endpoint id", err))
		return
	}
	endpoint, err := rt.webhooks.GetEndpoint(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if endpoint.RealmID != realm.ID {
		writeError(w, r, reauthApperr.NotFound("webhook endpoint not found", nil))
		return
	}

	var req webhookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, reauthApperr.Validation("malformed JSON body", err))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, r, reauthApperr.Validation("invalid webhook endpoint", err))
		return
	}

	endpoint.Name = req.Name
	endpoint.URL = req.URL
	endpoint.SigningSecret = req.SigningSecret
	endpoint.CustomHeaders = reauthDomain.JSON(req.CustomHeaders)
	if req.HTTPMethod != "" {
		endpoint.HTTPMethod = req.HTTPMethod
	}
	if err := rt.webhooks.SaveEndpoint(ctx, endpoint); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toWebhookResponse(endpoint))
}

// testWebhook implements spec §6 "/webhooks/{id}/test (POST): Send a
// synthetic test event and report delivery outcome", delivering
// synchronously so the admin screen can show a pass/fail immediately
// rather than polling delivery logs.
func (rt *Router) testWebhook(w http.ResponseWriter, r *http.Request) {
	realm := realmFromRequest(r)
	ctx, cancel := requestDeadline(r)
	defer cancel()

	id, err := googleUuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, reauthApperr.Validation("malformed endpoint id", err))
		return
	}
	endpoint, err := rt.webhooks.GetEndpoint(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if endpoint.RealmID != realm.ID {
		writeError(w, r, reauthApperr.NotFound("webhook endpoint not found", nil))
		return
	}

	log, err := rt.dispatcher.Test(ctx, endpoint)
	if err != nil {
		writeError(w, r, reauthApperr.System("test delivery failed to send", err))
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":          log.Status,
		"response_status": log.ResponseStatus,
		"latency_millis":  log.LatencyMillis,
		"error":           log.ErrorChain,
	})
}

func queryInt64(r *http.Request, key string, def int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	var n int64
	for _, c := range v {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int64(c-'0')
	}
	return n
}

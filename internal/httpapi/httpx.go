// Copyright (c) 2025 Justin Cranford
//
// Package httpapi mounts the chi router spec §6's "HTTP surface (path
// prefix /api)" table names onto the oidcsvc/authsvc/realmsvc/flow
// components built by cmd/reauth, and translates apperr.Error into the
// {error, request_id} envelope spec §7 requires.
package httpapi

import (
	"encoding/json"
	"net/http"

	reauthApperr "github.com/reauth/reauth/internal/apperr"

	"github.com/go-chi/chi/v5/middleware"
)

// errorBody is spec §7's wire envelope: "{error, request_id} JSON on
// 4xx/5xx under 64KiB, request-id injected if missing".
type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders err as spec §7's envelope, mapping *apperr.Error via
// HTTPStatus and falling back to 500 for anything else.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	summary := "internal error"
	if ae, ok := err.(*reauthApperr.Error); ok {
		status = ae.HTTPStatus()
		summary = ae.Summary
	}
	writeJSON(w, r, status, errorBody{Error: summary, RequestID: middleware.GetReqID(r.Context())})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024))
	return dec.Decode(out)
}

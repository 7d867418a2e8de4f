// Copyright (c) 2025 Justin Cranford
//
// Package apperr defines the stable, wire-visible error taxonomy shared by
// every service in reauth. It follows the shape of cryptoutil's
// internal/shared/apperr package: a single Error struct carrying a
// correlation ID, a UTC timestamp, and the underlying cause, rendered
// through Error() for logs and mapped to an HTTP status for the API layer.
package apperr

import (
	"fmt"
	"net/http"
	"time"

	googleUuid "github.com/google/uuid"
)

// Kind is one of the stable error kinds from spec §7.
type Kind string

const (
	KindValidation          Kind = "VALIDATION"
	KindNotFound            Kind = "NOT_FOUND"
	KindInvalidCredentials  Kind = "INVALID_CREDENTIALS"
	KindInvalidRefreshToken Kind = "INVALID_REFRESH_TOKEN"
	KindInvalidActionToken  Kind = "INVALID_ACTION_TOKEN"
	KindInvalidLoginSession Kind = "INVALID_LOGIN_SESSION"
	KindSessionRevoked      Kind = "SESSION_REVOKED"
	KindOidcInvalidRequest  Kind = "OIDC_INVALID_REQUEST"
	KindOidcClientNotFound  Kind = "OIDC_CLIENT_NOT_FOUND"
	KindOidcInvalidRedirect Kind = "OIDC_INVALID_REDIRECT"
	KindOidcInvalidCode     Kind = "OIDC_INVALID_CODE"
	KindAccountLocked       Kind = "ACCOUNT_LOCKED"
	KindSecurityViolation   Kind = "SECURITY_VIOLATION"
	KindSystem              Kind = "SYSTEM"
	KindUnexpected          Kind = "UNEXPECTED"
)

// httpStatus maps every Kind to the status code spec §7 names.
var httpStatus = map[Kind]int{
	KindValidation:          http.StatusUnprocessableEntity,
	KindNotFound:            http.StatusNotFound,
	KindInvalidCredentials:  http.StatusUnauthorized,
	KindInvalidRefreshToken: http.StatusUnauthorized,
	KindInvalidActionToken:  http.StatusUnauthorized,
	KindInvalidLoginSession: http.StatusUnauthorized,
	KindSessionRevoked:      http.StatusUnauthorized,
	KindOidcInvalidRequest:  http.StatusBadRequest,
	KindOidcClientNotFound:  http.StatusNotFound,
	KindOidcInvalidRedirect: http.StatusBadRequest,
	KindOidcInvalidCode:     http.StatusUnauthorized,
	KindAccountLocked:       http.StatusOK, // surfaced as a challenge screen, not an HTTP error
	KindSecurityViolation:   http.StatusForbidden,
	KindSystem:              http.StatusInternalServerError,
	KindUnexpected:          http.StatusInternalServerError,
}

// Error is the single error type every reauth service returns.
type Error struct {
	ID        googleUuid.UUID
	Timestamp time.Time
	Kind      Kind
	Summary   string
	Err       error
}

func New(kind Kind, summary string, cause error) *Error {
	return &Error{
		ID:        googleUuid.Must(googleUuid.NewV7()),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Summary:   summary,
		Err:       cause,
	}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (id=%s): %s", e.Kind, e.Summary, e.ID, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s (id=%s)", e.Kind, e.Summary, e.ID)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the status code spec §7 assigns to this error's Kind.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Convenience constructors, one per Kind, mirroring spec §7's taxonomy.
func Validation(summary string, cause error) *Error { return New(KindValidation, summary, cause) }
func NotFound(summary string, cause error) *Error   { return New(KindNotFound, summary, cause) }
func InvalidCredentials(summary string) *Error      { return New(KindInvalidCredentials, summary, nil) }
func InvalidRefreshToken(summary string) *Error     { return New(KindInvalidRefreshToken, summary, nil) }
func InvalidActionToken(summary string) *Error      { return New(KindInvalidActionToken, summary, nil) }
func InvalidLoginSession(summary string) *Error     { return New(KindInvalidLoginSession, summary, nil) }
func SessionRevoked(summary string) *Error          { return New(KindSessionRevoked, summary, nil) }
func OidcInvalidRequest(summary string) *Error      { return New(KindOidcInvalidRequest, summary, nil) }
func OidcClientNotFound(summary string) *Error      { return New(KindOidcClientNotFound, summary, nil) }
func OidcInvalidRedirect(summary string) *Error     { return New(KindOidcInvalidRedirect, summary, nil) }
func OidcInvalidCode(summary string) *Error         { return New(KindOidcInvalidCode, summary, nil) }
func AccountLocked(summary string) *Error           { return New(KindAccountLocked, summary, nil) }
func SecurityViolation(summary string) *Error       { return New(KindSecurityViolation, summary, nil) }
func System(summary string, cause error) *Error     { return New(KindSystem, summary, cause) }
func Unexpected(cause error) *Error                 { return New(KindUnexpected, "unexpected error", cause) }

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	ae, ok := err.(*Error)
	if !ok {
		return false
	}
	return ae.Kind == kind
}

// Copyright (c) 2025 Justin Cranford

package apperr_test

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reauth/reauth/internal/apperr"
)

func TestConstructors_StatusAndShape(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")

	tests := []struct {
		name       string
		err        *apperr.Error
		wantKind   apperr.Kind
		wantStatus int
	}{
		{"validation", apperr.Validation("bad input", cause), apperr.KindValidation, http.StatusUnprocessableEntity},
		{"not_found", apperr.NotFound("realm missing", nil), apperr.KindNotFound, http.StatusNotFound},
		{"invalid_credentials", apperr.InvalidCredentials("bad password"), apperr.KindInvalidCredentials, http.StatusUnauthorized},
		{"invalid_refresh_token", apperr.InvalidRefreshToken("expired"), apperr.KindInvalidRefreshToken, http.StatusUnauthorized},
		{"session_revoked", apperr.SessionRevoked("sid dead"), apperr.KindSessionRevoked, http.StatusUnauthorized},
		{"security_violation", apperr.SecurityViolation("cross realm"), apperr.KindSecurityViolation, http.StatusForbidden},
		{"system", apperr.System("corrupt plan", cause), apperr.KindSystem, http.StatusInternalServerError},
		{"unexpected", apperr.Unexpected(cause), apperr.KindUnexpected, http.StatusInternalServerError},
		{"account_locked", apperr.AccountLocked("try later"), apperr.KindAccountLocked, http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.wantKind, tc.err.Kind)
			require.Equal(t, tc.wantStatus, tc.err.HTTPStatus())
			require.NotEqual(t, "", tc.err.ID.String())
			require.WithinDuration(t, time.Now().UTC(), tc.err.Timestamp, time.Second)
			require.Contains(t, tc.err.Error(), string(tc.wantKind))
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("db down")
	err := apperr.Unexpected(cause)
	require.ErrorIs(t, err, cause)
}

func TestIs(t *testing.T) {
	t.Parallel()

	err := apperr.NotFound("x", nil)
	require.True(t, apperr.Is(err, apperr.KindNotFound))
	require.False(t, apperr.Is(err, apperr.KindSystem))
	require.False(t, apperr.Is(errors.New("plain"), apperr.KindNotFound))
}

// Copyright (c) 2025 Justin Cranford

package httpapi

import (
	"net/http"
	"time"

	googleUuid "github.com/google/uuid"
)

// Cookie names from spec §6 "Cookies": both HttpOnly, SameSite=Lax,
// path=/, expiry = session/token respectively.
const (
	cookieLoginSession = "login_session"
	cookieRefreshToken = "refresh_token"
)

func setCookie(w http.ResponseWriter, name, value string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// cookieUUID reads name from r and parses it as a UUID, returning
// ok=false for an absent or malformed cookie rather than an error; every
// caller treats that the same as "no session presented".
func cookieUUID(r *http.Request, name string) (googleUuid.UUID, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return googleUuid.Nil, false
	}
	id, err := googleUuid.Parse(c.Value)
	if err != nil {
		return googleUuid.Nil, false
	}
	return id, true
}

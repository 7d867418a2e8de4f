// Copyright (c) 2025 Justin Cranford

package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	reauthApperr "github.com/reauth/reauth/internal/apperr"
	reauthOidcsvc "github.com/reauth/reauth/internal/oidcsvc"
)

// authorize implements spec §6 "/authorize (GET): Start OIDC code flow;
// sets login_session cookie; 302 to UI". A login_session cookie from a
// different realm is never trusted to resume a session (spec §8
// scenario 2): only a cookie whose session.RealmID matches this realm is
// passed through as ExistingSessionID.
func (rt *Router) authorize(w http.ResponseWriter, r *http.Request) {
	realm := realmFromRequest(r)
	ctx, cancel := requestDeadline(r)
	defer cancel()

	q := r.URL.Query()
	req := reauthOidcsvc.AuthorizeRequest{
		RealmName:           realm.Name,
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseType:        q.Get("response_type"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		Nonce:               q.Get("nonce"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		PromptLogin:         q.Get("prompt") == "login",
	}
	if id, ok := cookieUUID(r, cookieLoginSession); ok {
		if session, err := rt.sessions.GetSession(ctx, id); err == nil && session.RealmID == realm.ID {
			req.ExistingSessionID = &id
		}
	}

	result, err := rt.oidc.Authorize(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	setCookie(w, cookieLoginSession, result.Session.ID.String(), result.Session.ExpiresAt)
	http.Redirect(w, r, "/api/realms/"+realm.Name+"/auth/login", http.StatusFound)
}

// token implements spec §6 "/token (POST, form-encoded)".
func (rt *Router) token(w http.ResponseWriter, r *http.Request) {
	realm := realmFromRequest(r)
	ctx, cancel := requestDeadline(r)
	defer cancel()

	if err := r.ParseForm(); err != nil {
		writeError(w, r, reauthApperr.OidcInvalidRequest("malformed form body"))
		return
	}
	ip, ua := clientIPAndUA(r)
	req := reauthOidcsvc.TokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		ClientID:     r.PostForm.Get("client_id"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
		IPAddress:    ip,
		UserAgent:    ua,
	}

	result, err := rt.oidc.Token(ctx, realm.Name, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	setCookie(w, cookieRefreshToken, result.RefreshToken.ID.String(), result.RefreshToken.ExpiresAt)
	writeJSON(w, r, http.StatusOK, map[string]any{
		"access_token": result.AccessToken,
		"id_token":     result.IDToken,
		"token_type":   "Bearer",
		"expires_in":   result.ExpiresIn,
	})
}

// jwks implements spec §6 "Publish signing keys".
func (rt *Router) jwks(w http.ResponseWriter, r *http.Request) {
	set := rt.keys.JWKS()
	buf, err := json.Marshal(set)
	if err != nil {
		writeError(w, r, reauthApperr.Unexpected(err))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(buf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf)
}

// discovery implements spec §6 "Discovery document".
func (rt *Router) discovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, rt.oidc.Discovery())
}

// userinfo implements spec §6 "OIDC userinfo for bearer access token".
func (rt *Router) userinfo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestDeadline(r)
	defer cancel()

	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		writeError(w, r, reauthApperr.InvalidCredentials("missing bearer token"))
		return
	}

	claims, err := rt.oidc.UserInfo(ctx, token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, claims)
}

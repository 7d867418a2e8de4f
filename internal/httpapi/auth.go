// Copyright (c) 2025 Justin Cranford

package httpapi

import (
	"context"
	"net/http"
	"time"

	reauthApperr "github.com/reauth/reauth/internal/apperr"
	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthFlow "github.com/reauth/reauth/internal/flow"

	googleUuid "github.com/google/uuid"
)

const plainLoginSessionTTL = 15 * time.Minute

// sessionForRealm loads id and enforces it belongs to realm; a session
// anchored to a different realm is reported exactly like "no session"
// to the caller and never mutated (spec §8 scenario 2, cross-realm
// cookie reuse 404s without touching the other realm's row).
func (rt *Router) sessionForRealm(ctx context.Context, realmID googleUuid.UUID, id googleUuid.UUID) (*reauthDomain.AuthenticationSession, bool) {
	session, err := rt.sessions.GetSession(ctx, id)
	if err != nil || session.RealmID != realmID {
		return nil, false
	}
	return session, true
}

// newPlainSession anchors a fresh session to realm's browser flow with
// no OIDC context, for a visitor arriving at /auth/login directly
// rather than via /oidc/authorize.
func (rt *Router) newPlainSession(ctx context.Context, realm *reauthDomain.Realm) (*reauthDomain.AuthenticationSession, error) {
	flowID := realm.FlowIDFor(reauthDomain.FlowTypeBrowser)
	if flowID == nil {
		return nil, reauthApperr.Validation("no browser flow configured for this realm", nil)
	}
	version, err := rt.flows.GetActiveVersion(ctx, realm.ID, string(reauthDomain.FlowTypeBrowser))
	if err != nil {
		return nil, err
	}
	plan, err := reauthDomain.ParseExecutionPlan(version.ExecutionArtifact)
	if err != nil {
		return nil, reauthApperr.System("stored execution plan is corrupt", err)
	}

	session := &reauthDomain.AuthenticationSession{
		RealmID:       realm.ID,
		FlowVersionID: version.ID,
		CurrentNodeID: plan.StartNodeID,
		Status:        reauthDomain.SessionActive,
		ExpiresAt:     time.Now().UTC().Add(plainLoginSessionTTL),
	}
	if err := rt.sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// showLogin implements spec §6 "/auth/login (GET): Start/resume UI login
// session; returns challenge JSON". It resumes the session named by the
// login_session cookie when one anchored to this realm exists, and
// anchors a fresh one otherwise.
func (rt *Router) showLogin(w http.ResponseWriter, r *http.Request) {
	realm := realmFromRequest(r)
	ctx, cancel := requestDeadline(r)
	defer cancel()

	var session *reauthDomain.AuthenticationSession
	if id, ok := cookieUUID(r, cookieLoginSession); ok {
		if existing, ok := rt.sessionForRealm(ctx, realm.ID, id); ok {
			session = existing
		} else if _, err := rt.sessions.GetSession(ctx, id); err == nil {
			// the cookie resolves, just not in this realm: refuse rather
			// than silently starting a new session under a stolen cookie.
			writeError(w, r, reauthApperr.NotFound("no login session for this realm", nil))
			return
		}
	}
	if session == nil {
		fresh, err := rt.newPlainSession(ctx, realm)
		if err != nil {
			writeError(w, r, err)
			return
		}
		session = fresh
		setCookie(w, cookieLoginSession, session.ID.String(), session.ExpiresAt)
	}

	result, err := rt.executor.Execute(ctx, session.ID, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.renderOutcome(w, r, ctx, realm, result)
}

// executeLogin implements spec §6 "/auth/login/execute (POST): Submit
// step input".
func (rt *Router) executeLogin(w http.ResponseWriter, r *http.Request) {
	realm := realmFromRequest(r)
	ctx, cancel := requestDeadline(r)
	defer cancel()

	id, ok := cookieUUID(r, cookieLoginSession)
	if !ok {
		writeError(w, r, reauthApperr.InvalidLoginSession("no login session cookie presented"))
		return
	}
	if _, ok := rt.sessionForRealm(ctx, realm.ID, id); !ok {
		if _, err := rt.sessions.GetSession(ctx, id); err == nil {
			// the cookie names another realm's session: 404 without
			// touching that session.
			writeError(w, r, reauthApperr.NotFound("no login session for this realm", nil))
			return
		}
		writeError(w, r, reauthApperr.InvalidLoginSession("no login session for this realm"))
		return
	}

	var input map[string]any
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, r, reauthApperr.Validation("malformed JSON body", err))
		return
	}

	result, err := rt.executor.Execute(ctx, id, input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.renderOutcome(w, r, ctx, realm, result)
}

// renderOutcome maps every NodeOutcome kind the executor can return to
// the HTTP response spec §6/§7 expects: suspensions become challenge
// JSON, FlowSuccess mints tokens (OIDC redirect or direct token bundle
// depending on whether the session carries an oidc context), and
// FlowFailure clears the cookie and reports InvalidCredentials-shaped
// failure.
func (rt *Router) renderOutcome(w http.ResponseWriter, r *http.Request, ctx context.Context, realm *reauthDomain.Realm, result *reauthFlow.Result) {
	switch result.Outcome.Kind {
	case reauthFlow.OutcomeSuspendForUI, reauthFlow.OutcomeSuspendAsync:
		writeJSON(w, r, http.StatusOK, map[string]any{
			"status":  "awaiting_input",
			"screen":  result.Outcome.Screen,
			"context": result.Outcome.Context,
		})

	case reauthFlow.OutcomeReject:
		writeJSON(w, r, http.StatusOK, map[string]any{
			"status": "rejected",
			"error":  result.Outcome.Error,
		})

	case reauthFlow.OutcomeFlowFailure:
		clearCookie(w, cookieLoginSession)
		writeError(w, r, reauthApperr.InvalidCredentials(result.Outcome.Reason))

	case reauthFlow.OutcomeFlowSuccess:
		rt.completeLogin(w, r, ctx, realm, result.Session)

	default:
		writeError(w, r, reauthApperr.System("executor returned an unhandled outcome", nil))
	}
}

// completeLogin runs spec §4.2's auth-code issuance when the session
// carries an oidc context, or spec §4.3 create_session otherwise.
func (rt *Router) completeLogin(w http.ResponseWriter, r *http.Request, ctx context.Context, realm *reauthDomain.Realm, session *reauthDomain.AuthenticationSession) {
	if _, hasOIDC := session.Context.Get(reauthDomain.CtxOIDC); hasOIDC {
		redirectURL, err := rt.oidc.CompleteAuthorization(ctx, session)
		if err != nil {
			writeError(w, r, err)
			return
		}
		clearCookie(w, cookieLoginSession)
		writeJSON(w, r, http.StatusOK, map[string]any{"redirect_url": redirectURL})
		return
	}

	userID := session.UserID.Ptr()
	if userID == nil {
		writeError(w, r, reauthApperr.System("session completed without a resolved user", nil))
		return
	}
	user, err := rt.users.GetByID(ctx, *userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ip, ua := clientIPAndUA(r)
	resp, refresh, err := rt.auth.CreateSession(ctx, user, nil, ip, ua)
	if err != nil {
		writeError(w, r, err)
		return
	}

	clearCookie(w, cookieLoginSession)
	setCookie(w, cookieRefreshToken, refresh.ID.String(), refresh.ExpiresAt)
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":       "authenticated",
		"access_token": resp.AccessToken,
		"id_token":     resp.IDToken,
		"token_type":   resp.TokenType,
		"expires_in":   resp.ExpiresIn,
	})
}

// refresh implements spec §6 "/auth/refresh (POST): Rotate refresh
// token".
func (rt *Router) refresh(w http.ResponseWriter, r *http.Request) {
	realm := realmFromRequest(r)
	ctx, cancel := requestDeadline(r)
	defer cancel()

	id, ok := cookieUUID(r, cookieRefreshToken)
	if !ok {
		writeError(w, r, reauthApperr.InvalidRefreshToken("no refresh token cookie presented"))
		return
	}

	// Reject a cross-realm refresh attempt before RefreshSession ever
	// rotates or revokes anything for it.
	if tokenRealm, err := rt.auth.RefreshTokenRealm(ctx, id); err != nil || tokenRealm != realm.ID {
		writeError(w, r, reauthApperr.NotFound("no refresh token for this realm", nil))
		return
	}

	resp, newToken, err := rt.auth.RefreshSession(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	setCookie(w, cookieRefreshToken, newToken.ID.String(), newToken.ExpiresAt)
	writeJSON(w, r, http.StatusOK, map[string]any{
		"access_token": resp.AccessToken,
		"id_token":     resp.IDToken,
		"token_type":   resp.TokenType,
		"expires_in":   resp.ExpiresIn,
	})
}

// logout implements spec §6 "/auth/logout (POST): Revoke refresh
// family; clear cookies".
func (rt *Router) logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestDeadline(r)
	defer cancel()

	if id, ok := cookieUUID(r, cookieRefreshToken); ok {
		if err := rt.auth.Logout(ctx, id); err != nil && !reauthApperr.Is(err, reauthApperr.KindInvalidRefreshToken) {
			writeError(w, r, err)
			return
		}
	}

	clearCookie(w, cookieLoginSession)
	clearCookie(w, cookieRefreshToken)
	w.WriteHeader(http.StatusNoContent)
}

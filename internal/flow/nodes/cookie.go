// Copyright (c) 2025 Justin Cranford

package nodes

import (
	"context"
	"time"

	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthFlow "github.com/reauth/reauth/internal/flow"
	reauthRepository "github.com/reauth/reauth/internal/repository"

	googleUuid "github.com/google/uuid"
)

// CookieSSONode silently re-authenticates a user carrying a still-valid
// SSO cookie from a prior completed session in the same realm, instead
// of re-prompting for credentials (spec §4.7's illustrative node set,
// SUPPLEMENT "browser SSO" feature carried over from
// original_source/.../sso_cookie_node.rs).
//
// The node reads the prior session's id from
// session.context[sso_token_id]; the HTTP handlers in internal/httpapi
// do not read an SSO cookie or set that key.
type CookieSSONode struct {
	sessions *reauthRepository.SessionRepository
}

func NewCookieSSONode(sessions *reauthRepository.SessionRepository) *CookieSSONode {
	return &CookieSSONode{sessions: sessions}
}

func (n *CookieSSONode) OnEnter(_ context.Context, _ *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode) error {
	return nil
}

func (n *CookieSSONode) Execute(ctx context.Context, session *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode) (reauthFlow.NodeOutcome, error) {
	raw, ok := session.Context.Get(reauthDomain.CtxSSOTokenID)
	if !ok {
		return reauthFlow.Continue("skip"), nil
	}
	tokenStr, ok := raw.(string)
	if !ok {
		return reauthFlow.Continue("skip"), nil
	}
	priorID, err := googleUuid.Parse(tokenStr)
	if err != nil {
		return reauthFlow.Continue("skip"), nil
	}

	prior, err := n.sessions.GetSession(ctx, priorID)
	if err != nil {
		return reauthFlow.Continue("skip"), nil
	}
	if prior.RealmID != session.RealmID || prior.Status != reauthDomain.SessionCompleted {
		return reauthFlow.Continue("skip"), nil
	}
	if time.Now().UTC().After(prior.ExpiresAt) {
		return reauthFlow.Continue("skip"), nil
	}
	userID := prior.UserID.Ptr()
	if userID == nil {
		return reauthFlow.Continue("skip"), nil
	}

	session.UserID = reauthDomain.NewNullableUUID(userID)
	return reauthFlow.Continue("success"), nil
}

// HandleInput is unreachable: Execute never suspends, so the executor
// never calls it for this node.
func (n *CookieSSONode) HandleInput(_ context.Context, _ *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode, _ map[string]any) (reauthFlow.NodeOutcome, error) {
	return reauthFlow.Continue("skip"), nil
}

func (n *CookieSSONode) OnExit(_ context.Context, _ *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode) error {
	return nil
}

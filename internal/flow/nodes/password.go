// Copyright (c) 2025 Justin Cranford
//
// Package nodes implements the illustrative built-in LifecycleNode
// workers a flow graph can reference by auth_type (spec §4.7 "a worked
// password-authenticator example").
package nodes

import (
	"context"
	"sync"
	"time"

	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthFlow "github.com/reauth/reauth/internal/flow"
	reauthRepository "github.com/reauth/reauth/internal/repository"
	"github.com/reauth/reauth/internal/security"

	googleUuid "github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	loginAttemptRate  = 1 // per second, sustained
	loginAttemptBurst = 5
)

// PasswordNode authenticates username+password against the realm's
// user table, enforcing the realm's lockout policy and a per-(realm,
// username) rate limit ahead of the Argon2id comparison so a flood of
// guesses never reaches the expensive hash (spec §4.7 steps 1-6).
type PasswordNode struct {
	users    *reauthRepository.UserRepository
	sessions *reauthRepository.SessionRepository
	realms   *reauthRepository.RealmRepository

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

func NewPasswordNode(users *reauthRepository.UserRepository, sessions *reauthRepository.SessionRepository, realms *reauthRepository.RealmRepository) *PasswordNode {
	return &PasswordNode{
		users:    users,
		sessions: sessions,
		realms:   realms,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (n *PasswordNode) OnEnter(_ context.Context, _ *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode) error {
	return nil
}

// Execute presents the login form; the node does nothing until
// HandleInput delivers credentials. Any error left in context by a
// prior Reject (e.g. a lockout) rides along so the re-rendered screen
// can show it.
func (n *PasswordNode) Execute(_ context.Context, session *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode) (reauthFlow.NodeOutcome, error) {
	screenCtx := map[string]any{}
	if errMsg, ok := session.Context.Get(reauthDomain.CtxError); ok {
		screenCtx["error"] = errMsg
	}
	return reauthFlow.SuspendForUI("login_password", screenCtx), nil
}

func (n *PasswordNode) HandleInput(ctx context.Context, session *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode, input map[string]any) (reauthFlow.NodeOutcome, error) {
	username, _ := input["username"].(string)
	password, _ := input["password"].(string)
	if username == "" || password == "" {
		return reauthFlow.SuspendForUI("login_password", map[string]any{"error": "username and password are required"}), nil
	}

	if !n.limiterFor(session.RealmID, username).Allow() {
		return reauthFlow.SuspendForUI("login_password", map[string]any{"error": "too many attempts, slow down"}), nil
	}

	realm, err := n.realms.GetByID(ctx, session.RealmID)
	if err != nil {
		return reauthFlow.NodeOutcome{}, err
	}

	attempt, err := n.sessions.GetOrCreateLoginAttempt(ctx, session.RealmID, username)
	if err != nil {
		return reauthFlow.NodeOutcome{}, err
	}
	if attempt.IsLocked() {
		session.UpdateContext(reauthDomain.CtxUsername, username)
		return reauthFlow.Reject("account is locked, try again later"), nil
	}

	user, err := n.users.GetByUsername(ctx, session.RealmID, username)
	if err != nil {
		if incErr := n.recordFailure(ctx, realm, attempt); incErr != nil {
			return reauthFlow.NodeOutcome{}, incErr
		}
		return reauthFlow.SuspendForUI("login_password", map[string]any{"error": "invalid username or password"}), nil
	}

	valid, err := security.VerifyPassword(user.HashedPassword, password)
	if err != nil {
		return reauthFlow.NodeOutcome{}, err
	}
	if !valid {
		if incErr := n.recordFailure(ctx, realm, attempt); incErr != nil {
			return reauthFlow.NodeOutcome{}, incErr
		}
		return reauthFlow.SuspendForUI("login_password", map[string]any{"error": "invalid username or password"}), nil
	}

	attempt.FailureCount = 0
	attempt.LockedUntil = nil
	if err := n.sessions.SaveLoginAttempt(ctx, attempt); err != nil {
		return reauthFlow.NodeOutcome{}, err
	}

	session.UserID = reauthDomain.NewNullableUUID(&user.ID)
	return reauthFlow.Continue("success"), nil
}

// OnExit wipes the raw password out of context; HandleInput never
// writes it there today, but any future node that stashes it ahead of
// a multi-step check must not let it survive past this node.
func (n *PasswordNode) OnExit(_ context.Context, session *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode) error {
	if session.Context != nil {
		session.Context.Delete("password")
	}
	return nil
}

func (n *PasswordNode) recordFailure(ctx context.Context, realm *reauthDomain.Realm, attempt *reauthDomain.LoginAttempt) error {
	attempt.FailureCount++
	if attempt.FailureCount >= realm.LockoutThreshold {
		until := time.Now().UTC().Add(time.Duration(realm.LockoutDurationSecs) * time.Second)
		attempt.LockedUntil = &until
	}
	return n.sessions.SaveLoginAttempt(ctx, attempt)
}

func (n *PasswordNode) limiterFor(realmID googleUuid.UUID, username string) *rate.Limiter {
	key := realmID.String() + ":" + username

	n.limiterMu.Lock()
	defer n.limiterMu.Unlock()
	limiter, ok := n.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(loginAttemptRate), loginAttemptBurst)
		n.limiters[key] = limiter
	}
	return limiter
}

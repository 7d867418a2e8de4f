// Copyright (c) 2025 Justin Cranford
//
// TOTP enrollment and verification nodes (SUPPLEMENT §4 "second factor",
// grounded on original_source/.../otp_node.rs).
package nodes

import (
	"context"

	reauthApperr "github.com/reauth/reauth/internal/apperr"
	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthFlow "github.com/reauth/reauth/internal/flow"
	reauthRepository "github.com/reauth/reauth/internal/repository"

	"github.com/pquerna/otp/totp"
)

// OTPIssueNode enrolls a user who has not yet set up a TOTP secret,
// issuing a provisioning URI for the user's authenticator app, then
// confirms enrollment once the user proves possession with a valid
// code. A user who already has a secret is passed straight through.
type OTPIssueNode struct {
	users  *reauthRepository.UserRepository
	issuer string
}

func NewOTPIssueNode(users *reauthRepository.UserRepository, issuer string) *OTPIssueNode {
	return &OTPIssueNode{users: users, issuer: issuer}
}

func (n *OTPIssueNode) OnEnter(_ context.Context, _ *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode) error {
	return nil
}

func (n *OTPIssueNode) Execute(ctx context.Context, session *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode) (reauthFlow.NodeOutcome, error) {
	userID := session.UserID.Ptr()
	if userID == nil {
		return reauthFlow.NodeOutcome{}, reauthApperr.System("otp issue node reached with no resolved user", nil)
	}
	user, err := n.users.GetByID(ctx, *userID)
	if err != nil {
		return reauthFlow.NodeOutcome{}, err
	}
	if user.OTPSecret != nil {
		return reauthFlow.Continue("already_enrolled"), nil
	}

	key, err := totp.Generate(totp.GenerateOpts{Issuer: n.issuer, AccountName: user.Username})
	if err != nil {
		return reauthFlow.NodeOutcome{}, reauthApperr.Unexpected(err)
	}

	session.UpdateContext("pending_otp_secret", key.Secret())
	return reauthFlow.SuspendForUI("otp_enroll", map[string]any{
		"provisioning_uri": key.URL(),
		"secret":           key.Secret(),
	}), nil
}

func (n *OTPIssueNode) HandleInput(ctx context.Context, session *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode, input map[string]any) (reauthFlow.NodeOutcome, error) {
	code, _ := input["code"].(string)
	secretRaw, _ := session.Context.Get("pending_otp_secret")
	secret, _ := secretRaw.(string)
	if secret == "" {
		return reauthFlow.NodeOutcome{}, reauthApperr.InvalidLoginSession("no pending otp enrollment on this session")
	}
	if !totp.Validate(code, secret) {
		return reauthFlow.SuspendForUI("otp_enroll", map[string]any{"error": "invalid code"}), nil
	}

	userID := session.UserID.Ptr()
	if userID == nil {
		return reauthFlow.NodeOutcome{}, reauthApperr.System("otp issue node reached with no resolved user", nil)
	}
	user, err := n.users.GetByID(ctx, *userID)
	if err != nil {
		return reauthFlow.NodeOutcome{}, err
	}
	user.OTPSecret = &secret
	if err := n.users.Update(ctx, user); err != nil {
		return reauthFlow.NodeOutcome{}, err
	}
	session.Context.Delete("pending_otp_secret")

	return reauthFlow.Continue("success"), nil
}

func (n *OTPIssueNode) OnExit(_ context.Context, _ *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode) error {
	return nil
}

// OTPVerifyNode challenges an already-enrolled user for a fresh TOTP
// code.
type OTPVerifyNode struct {
	users *reauthRepository.UserRepository
}

func NewOTPVerifyNode(users *reauthRepository.UserRepository) *OTPVerifyNode {
	return &OTPVerifyNode{users: users}
}

func (n *OTPVerifyNode) OnEnter(_ context.Context, _ *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode) error {
	return nil
}

func (n *OTPVerifyNode) Execute(_ context.Context, _ *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode) (reauthFlow.NodeOutcome, error) {
	return reauthFlow.SuspendForUI("otp_verify", map[string]any{}), nil
}

func (n *OTPVerifyNode) HandleInput(ctx context.Context, session *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode, input map[string]any) (reauthFlow.NodeOutcome, error) {
	userID := session.UserID.Ptr()
	if userID == nil {
		return reauthFlow.NodeOutcome{}, reauthApperr.System("otp verify node reached with no resolved user", nil)
	}
	user, err := n.users.GetByID(ctx, *userID)
	if err != nil {
		return reauthFlow.NodeOutcome{}, err
	}
	if user.OTPSecret == nil {
		return reauthFlow.Continue("not_enrolled"), nil
	}

	code, _ := input["code"].(string)
	if !totp.Validate(code, *user.OTPSecret) {
		return reauthFlow.SuspendForUI("otp_verify", map[string]any{"error": "invalid code"}), nil
	}
	return reauthFlow.Continue("success"), nil
}

func (n *OTPVerifyNode) OnExit(_ context.Context, _ *reauthDomain.AuthenticationSession, _ reauthDomain.ExecutionNode) error {
	return nil
}

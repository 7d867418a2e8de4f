// Copyright (c) 2025 Justin Cranford

package flow

import (
	"context"
	"sync"

	reauthDomain "github.com/reauth/reauth/internal/domain"
)

// Node type strings used by the authoring graph and the compiled plan's
// config.auth_type (spec §4.6 "each authenticator carries its auth_type
// key"). The illustrative password node (spec §4.7) and its siblings
// from the SUPPLEMENT node set.
const (
	NodeTypeStart        = "core.start"
	NodeTypeTerminal     = "core.terminal"
	NodeTypePassword     = "core.auth.password"
	NodeTypeCookieSSO    = "core.auth.cookie"
	NodeTypeOTPIssue     = "core.auth.otp.issue"
	NodeTypeOTPVerify    = "core.auth.otp.verify"
)

// LifecycleNode is the four-operation capability set every flow node
// exposes (spec §4.1 "Node lifecycle"). The registry binds node-type
// strings to a LifecycleNode; start/terminal/logic nodes have no
// worker, the executor handles them inline (spec §4.1 step 5 "Logic
// nodes pick the first available next value; Terminal nodes read
// config.is_failure").
type LifecycleNode interface {
	OnEnter(ctx context.Context, session *reauthDomain.AuthenticationSession, node reauthDomain.ExecutionNode) error
	Execute(ctx context.Context, session *reauthDomain.AuthenticationSession, node reauthDomain.ExecutionNode) (NodeOutcome, error)
	HandleInput(ctx context.Context, session *reauthDomain.AuthenticationSession, node reauthDomain.ExecutionNode, input map[string]any) (NodeOutcome, error)
	OnExit(ctx context.Context, session *reauthDomain.AuthenticationSession, node reauthDomain.ExecutionNode) error
}

type registration struct {
	stepType reauthDomain.StepType
	worker   LifecycleNode
}

// Registry maps node-type strings to (worker, step-type), the runtime
// half of spec C5/§4.6. It is a process-wide singleton built once at
// boot (spec §5 "Global state").
type Registry struct {
	mu  sync.RWMutex
	reg map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{reg: make(map[string]registration)}
}

// Register binds nodeType to a step classification and, for
// Authenticator nodes, a worker. Logic/Terminal nodes pass a nil
// worker; the executor never calls Worker for them.
func (r *Registry) Register(nodeType string, stepType reauthDomain.StepType, worker LifecycleNode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reg[nodeType] = registration{stepType: stepType, worker: worker}
}

// StepType reports the step classification a compiler uses to validate
// and emit ExecutionNode.StepType.
func (r *Registry) StepType(nodeType string) (reauthDomain.StepType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.reg[nodeType]
	return reg.stepType, ok
}

// Worker resolves the LifecycleNode for an authenticator's auth_type
// (spec §4.1 step 5 "resolve its worker via registry keyed by
// config.auth_type").
func (r *Registry) Worker(authType string) (LifecycleNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.reg[authType]
	if !ok || reg.worker == nil {
		return nil, false
	}
	return reg.worker, true
}

// RegisterDefaults wires the built-in node set spec §4.6/§4.7 and the
// SUPPLEMENT node roster describe. Callers needing a custom node
// (custom OTP policy, a bespoke SSO integration) call Register directly
// instead.
func RegisterDefaults(r *Registry, password, cookieSSO, otpIssue, otpVerify LifecycleNode) {
	r.Register(NodeTypeStart, reauthDomain.StepLogic, nil)
	r.Register(NodeTypeTerminal, reauthDomain.StepTerminal, nil)
	r.Register(NodeTypePassword, reauthDomain.StepAuthenticator, password)
	r.Register(NodeTypeCookieSSO, reauthDomain.StepAuthenticator, cookieSSO)
	r.Register(NodeTypeOTPIssue, reauthDomain.StepAuthenticator, otpIssue)
	r.Register(NodeTypeOTPVerify, reauthDomain.StepAuthenticator, otpVerify)
}

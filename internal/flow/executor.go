// Copyright (c) 2025 Justin Cranford

package flow

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	reauthApperr "github.com/reauth/reauth/internal/apperr"
	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthRepository "github.com/reauth/reauth/internal/repository"

	googleUuid "github.com/google/uuid"
)

// Result is what Execute/ResumeAction hand back to the HTTP layer: the
// outcome that ended the run, and the screen to render when it
// suspended (spec §4.1 "The executor's return value is always the
// outcome that ended the run").
type Result struct {
	Outcome NodeOutcome
	Session *reauthDomain.AuthenticationSession
}

// Executor drives an AuthenticationSession through its ExecutionPlan
// (spec §4.1 Flow Executor).
type Executor struct {
	sessions *reauthRepository.SessionRepository
	flows    *reauthRepository.FlowRepository
	registry *Registry
}

func NewExecutor(sessions *reauthRepository.SessionRepository, flows *reauthRepository.FlowRepository, registry *Registry) *Executor {
	return &Executor{sessions: sessions, flows: flows, registry: registry}
}

// Execute advances session from its current node, feeding userInput (nil
// on the first call into a node that suspended for UI) to HandleInput,
// until the plan reaches a suspend or terminal outcome (spec §4.1 main
// loop).
func (e *Executor) Execute(ctx context.Context, sessionID googleUuid.UUID, userInput map[string]any) (*Result, error) {
	session, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	plan, healed, err := e.healSession(ctx, session)
	if err != nil {
		return nil, err
	}
	if healed {
		// The caller's input was addressed to whatever node the session
		// was stuck on before recovery; it has no meaning for the plan's
		// start node.
		userInput = nil
	}

	if session.Status != reauthDomain.SessionActive {
		return nil, reauthApperr.InvalidLoginSession("session is not active")
	}
	if session.IsExpired() {
		session.Status = reauthDomain.SessionExpired
		_ = e.sessions.SaveSession(ctx, session)
		return nil, reauthApperr.InvalidLoginSession("session expired")
	}

	// A pending async action already exists for this session: re-serve
	// the cached last_ui rather than re-entering the node, so a client
	// that double-submits a suspend-for-UI response doesn't race a
	// background action resolver (spec §4.1 "pending-action stampede
	// guard"). The cached render is always classified AwaitingAction,
	// never Challenge, since only SuspendForAsync populates last_ui
	// alongside a pending_action_id.
	if session.HasPendingAction() {
		if screenID, uiCtx, ok := session.LastUI(); ok {
			return &Result{Outcome: NodeOutcome{Kind: OutcomeSuspendAsync, Screen: screenID, Context: uiCtx}, Session: session}, nil
		}
	}

	return e.run(ctx, session, plan, userInput)
}

// ResumeAction consumes a resume token previously issued via
// SuspendForAsync, feeding its payload into the resume node's
// HandleInput, then continues the main loop from there (spec §4.1
// "Resume-token design").
func (e *Executor) ResumeAction(ctx context.Context, realmID googleUuid.UUID, token string) (*Result, error) {
	hash := hashToken(token)
	action, err := e.sessions.GetActionByTokenHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if action.RealmID != realmID {
		return nil, reauthApperr.InvalidActionToken("action token does not belong to this realm")
	}
	if action.IsConsumed() {
		return nil, reauthApperr.InvalidActionToken("action token already consumed")
	}
	if action.IsExpired() {
		return nil, reauthApperr.InvalidActionToken("action token expired")
	}

	session, err := e.sessions.GetSession(ctx, action.SessionID)
	if err != nil {
		return nil, err
	}
	plan, _, err := e.healSession(ctx, session)
	if err != nil {
		return nil, err
	}
	if session.Status != reauthDomain.SessionActive {
		return nil, reauthApperr.InvalidLoginSession("session is not active")
	}

	if err := e.sessions.ConsumeAction(ctx, action.ID); err != nil {
		return nil, err
	}
	session.ClearPendingAction()

	if action.ResumeNodeID != nil {
		session.CurrentNodeID = *action.ResumeNodeID
	}

	payload := map[string]any(action.Payload)
	payload[reauthDomain.CtxActionResult] = true

	return e.run(ctx, session, plan, payload)
}

// healSession loads the plan the session's flow_version_id points to;
// if the realm's active deployment has since moved on, the session
// keeps running the version it started with (spec §4.1 "a session
// always finishes the plan it started on, even mid-publish").
//
// A session found in a terminal status (Completed or Failed) is
// recovered rather than rejected: current_node_id resets to the plan's
// start node, user_id and any pending-action bookkeeping are cleared,
// and status returns to Active (spec §4.1 step 1, §8 "a session left
// in a terminal status by a crashed worker heals back to Active on the
// next execute call"). The reported bool tells the caller whether
// healing happened, since a healed session's current call carries no
// meaningful user_input for the node it used to be on.
func (e *Executor) healSession(ctx context.Context, session *reauthDomain.AuthenticationSession) (*reauthDomain.ExecutionPlan, bool, error) {
	version, err := e.flows.GetVersion(ctx, session.FlowVersionID)
	if err != nil {
		return nil, false, err
	}
	plan, err := reauthDomain.ParseExecutionPlan(version.ExecutionArtifact)
	if err != nil {
		return nil, false, err
	}

	if session.Status != reauthDomain.SessionCompleted && session.Status != reauthDomain.SessionFailed {
		return plan, false, nil
	}

	session.CurrentNodeID = plan.StartNodeID
	session.UserID = reauthDomain.NewNullableUUID(nil)
	session.ClearPendingAction()
	if session.Context != nil {
		session.Context.Delete(reauthDomain.CtxError)
	}
	session.Status = reauthDomain.SessionActive
	if err := e.sessions.SaveSession(ctx, session); err != nil {
		return nil, false, err
	}
	return plan, true, nil
}

// run is the bounded main loop: each iteration executes exactly one
// node and dispatches on its NodeOutcome. The plan-size*10 bound
// (spec §4.1 "bounded loop") catches a compiled plan with a logic
// cycle that slipped past the compiler's reachability check.
func (e *Executor) run(ctx context.Context, session *reauthDomain.AuthenticationSession, plan *reauthDomain.ExecutionPlan, input map[string]any) (*Result, error) {
	maxIterations := len(plan.Nodes) * 10
	if maxIterations == 0 {
		maxIterations = 10
	}

	for iteration := 0; iteration < maxIterations; iteration++ {
		node, ok := plan.Nodes[session.CurrentNodeID]
		if !ok {
			return nil, reauthApperr.System(fmt.Sprintf("execution plan missing node %q", session.CurrentNodeID), nil)
		}

		outcome, err := e.executeNode(ctx, session, node, input)
		input = nil // only the first iteration of a run consumes external input
		if err != nil {
			return nil, err
		}

		switch outcome.Kind {
		case OutcomeContinue:
			if err := e.runOnExit(ctx, session, node); err != nil {
				return nil, err
			}
			nextID, ok := node.Next[outcome.Output]
			if !ok {
				return nil, reauthApperr.System(fmt.Sprintf("node %q has no edge for output %q", node.ID, outcome.Output), nil)
			}
			session.CurrentNodeID = nextID
			if err := e.sessions.SaveSession(ctx, session); err != nil {
				return nil, err
			}
			continue

		case OutcomeSuspendForUI:
			session.UpdateContext(reauthDomain.CtxLastUI, map[string]any{
				"screen_id": outcome.Screen,
				"context":   outcome.Context,
			})
			if err := e.sessions.SaveSession(ctx, session); err != nil {
				return nil, err
			}
			return &Result{Outcome: outcome, Session: session}, nil

		case OutcomeSuspendAsync:
			action := &reauthDomain.AuthSessionAction{
				SessionID:    session.ID,
				RealmID:      session.RealmID,
				ActionType:   outcome.ActionType,
				TokenHash:    hashToken(outcome.Token),
				Payload:      reauthDomain.JSON(outcome.Payload),
				ResumeNodeID: &outcome.ResumeNodeID,
				ExpiresAt:    outcome.ActionExpiresAt,
			}
			if err := e.sessions.CreateAction(ctx, action); err != nil {
				return nil, err
			}
			session.UpdateContext(reauthDomain.CtxPendingActionID, action.ID.String())
			session.UpdateContext(reauthDomain.CtxLastUI, map[string]any{
				"screen_id": outcome.Screen,
				"context":   outcome.Context,
			})
			if err := e.sessions.SaveSession(ctx, session); err != nil {
				return nil, err
			}
			return &Result{Outcome: outcome, Session: session}, nil

		case OutcomeReject:
			// A Reject never ends the run by itself: persist the error
			// into context, then re-execute the same node so it renders
			// the challenge screen that carries the error (spec §4.1
			// ordering guarantee iii, "reject re-renders, it never
			// returns directly to the caller").
			session.UpdateContext(reauthDomain.CtxError, outcome.Error)
			rerendered, err := e.executeNode(ctx, session, node, nil)
			if err != nil {
				return nil, err
			}
			if rerendered.Kind != OutcomeSuspendForUI {
				return nil, reauthApperr.System(fmt.Sprintf("node %q rejected but its re-render produced outcome %q instead of a UI challenge", node.ID, rerendered.Kind), nil)
			}
			session.UpdateContext(reauthDomain.CtxLastUI, map[string]any{
				"screen_id": rerendered.Screen,
				"context":   rerendered.Context,
			})
			if err := e.sessions.SaveSession(ctx, session); err != nil {
				return nil, err
			}
			return &Result{Outcome: rerendered, Session: session}, nil

		case OutcomeFlowSuccess:
			session.Status = reauthDomain.SessionCompleted
			session.UserID = reauthDomain.NewNullableUUID(&outcome.UserID)
			if err := e.sessions.SaveSession(ctx, session); err != nil {
				return nil, err
			}
			return &Result{Outcome: outcome, Session: session}, nil

		case OutcomeFlowFailure:
			session.Status = reauthDomain.SessionFailed
			session.UpdateContext(reauthDomain.CtxError, outcome.Reason)
			if err := e.sessions.SaveSession(ctx, session); err != nil {
				return nil, err
			}
			return &Result{Outcome: outcome, Session: session}, nil

		default:
			return nil, reauthApperr.System(fmt.Sprintf("unknown outcome kind %q", outcome.Kind), nil)
		}
	}

	return nil, reauthApperr.System("execution plan exceeded iteration bound, likely a logic cycle", nil)
}

// executeNode resolves the node's classification and runs the right
// lifecycle method: Logic nodes pick their first available Next value,
// Terminal nodes read config.is_failure, Authenticator nodes resolve a
// worker from the registry keyed by config.auth_type and call
// HandleInput when input is non-nil, Execute otherwise (spec §4.1
// step 5).
func (e *Executor) executeNode(ctx context.Context, session *reauthDomain.AuthenticationSession, node reauthDomain.ExecutionNode, input map[string]any) (NodeOutcome, error) {
	switch node.StepType {
	case reauthDomain.StepLogic:
		for output := range node.Next {
			return Continue(output), nil
		}
		return NodeOutcome{}, reauthApperr.System(fmt.Sprintf("logic node %q has no outgoing edges", node.ID), nil)

	case reauthDomain.StepTerminal:
		isFailure, _ := node.Config["is_failure"].(bool)
		if isFailure {
			reason, _ := session.Context.Get(reauthDomain.CtxError)
			return FlowFailure(fmt.Sprintf("%v", reason)), nil
		}
		userID := session.UserID.Ptr()
		if userID == nil {
			return NodeOutcome{}, reauthApperr.System(fmt.Sprintf("terminal node %q reached without a resolved user", node.ID), nil)
		}
		return FlowSuccess(*userID), nil

	case reauthDomain.StepAuthenticator:
		authType, _ := node.Config["auth_type"].(string)
		worker, ok := e.registry.Worker(authType)
		if !ok {
			return NodeOutcome{}, reauthApperr.System(fmt.Sprintf("no worker registered for auth_type %q", authType), nil)
		}
		if input != nil {
			return worker.HandleInput(ctx, session, node, input)
		}
		if err := worker.OnEnter(ctx, session, node); err != nil {
			return NodeOutcome{}, err
		}
		return worker.Execute(ctx, session, node)

	default:
		return NodeOutcome{}, reauthApperr.System(fmt.Sprintf("unknown step type %q on node %q", node.StepType, node.ID), nil)
	}
}

// runOnExit notifies the node the run is leaving via Continue. Only
// Authenticator nodes carry a lifecycle worker; Logic and Terminal
// nodes have nothing to notify (spec §4.1 ordering guarantee iv,
// "on_exit runs only on Continue").
func (e *Executor) runOnExit(ctx context.Context, session *reauthDomain.AuthenticationSession, node reauthDomain.ExecutionNode) error {
	if node.StepType != reauthDomain.StepAuthenticator {
		return nil
	}
	authType, _ := node.Config["auth_type"].(string)
	worker, ok := e.registry.Worker(authType)
	if !ok {
		return nil
	}
	return worker.OnExit(ctx, session, node)
}

// hashToken SHA-256-hashes an opaque resume token; only the hash is
// ever persisted (spec §4.1 "Resume-token design").
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Copyright (c) 2025 Justin Cranford
//
// Package flow drives an AuthenticationSession through a frozen
// ExecutionPlan, dispatching to LifecycleNode workers resolved from a
// Registry (spec §4.1 Flow Executor, §4.6 Flow Compiler and Runtime
// Registry).
package flow

import (
	"time"

	googleUuid "github.com/google/uuid"
)

// OutcomeKind is the tag of the NodeOutcome closed sum type (spec §4.1
// "NodeOutcome is a closed sum type").
type OutcomeKind string

const (
	OutcomeContinue      OutcomeKind = "continue"
	OutcomeSuspendForUI  OutcomeKind = "suspend_for_ui"
	OutcomeSuspendAsync  OutcomeKind = "suspend_for_async"
	OutcomeReject        OutcomeKind = "reject"
	OutcomeFlowSuccess   OutcomeKind = "flow_success"
	OutcomeFlowFailure   OutcomeKind = "flow_failure"
)

// NodeOutcome is what execute/handle_input return; exactly the
// fields relevant to Kind are populated. A struct-with-tag rather than
// six separate types keeps node implementations free of type switches
// on the caller side while the Kind still makes it a closed set.
type NodeOutcome struct {
	Kind OutcomeKind

	// Continue
	Output string

	// SuspendForUI / also cached into session.context.last_ui
	Screen  string
	Context map[string]any

	// SuspendForAsync
	ActionType   string
	Token        string
	ActionExpiresAt time.Time
	ResumeNodeID string
	Payload      map[string]any

	// Reject
	Error string

	// FlowSuccess
	UserID googleUuid.UUID

	// FlowFailure
	Reason string
}

func Continue(output string) NodeOutcome { return NodeOutcome{Kind: OutcomeContinue, Output: output} }

func SuspendForUI(screen string, ctx map[string]any) NodeOutcome {
	return NodeOutcome{Kind: OutcomeSuspendForUI, Screen: screen, Context: ctx}
}

func SuspendForAsync(actionType, token string, expiresAt time.Time, resumeNodeID, screen string, payload, ctx map[string]any) NodeOutcome {
	return NodeOutcome{
		Kind:            OutcomeSuspendAsync,
		ActionType:      actionType,
		Token:           token,
		ActionExpiresAt: expiresAt,
		ResumeNodeID:    resumeNodeID,
		Screen:          screen,
		Payload:         payload,
		Context:         ctx,
	}
}

func Reject(errMsg string) NodeOutcome { return NodeOutcome{Kind: OutcomeReject, Error: errMsg} }

func FlowSuccess(userID googleUuid.UUID) NodeOutcome {
	return NodeOutcome{Kind: OutcomeFlowSuccess, UserID: userID}
}

func FlowFailure(reason string) NodeOutcome {
	return NodeOutcome{Kind: OutcomeFlowFailure, Reason: reason}
}

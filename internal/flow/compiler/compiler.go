// Copyright (c) 2025 Justin Cranford
//
// Package compiler turns an authoring-time AuthoringGraph into a frozen
// ExecutionPlan, rejecting anything the runtime could not safely
// interpret (spec §4.6 Flow Compiler).
package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	reauthApperr "github.com/reauth/reauth/internal/apperr"
	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthFlow "github.com/reauth/reauth/internal/flow"
)

// Compiler validates an AuthoringGraph against a node Registry and
// emits an ExecutionPlan plus a content checksum (spec §3 FlowVersion
// "checksum").
type Compiler struct {
	registry *reauthFlow.Registry
}

func New(registry *reauthFlow.Registry) *Compiler {
	return &Compiler{registry: registry}
}

// Result bundles the compiled artifact with the checksum FlowVersion
// persists alongside it.
type Result struct {
	Plan     *reauthDomain.ExecutionPlan
	Artifact string
	Checksum string
}

// Compile validates graph and, on success, returns the frozen plan.
// Validation order: node types known, exactly one start node, edges
// resolvable, then the safety-patch-removal regression that makes a
// password node without a "success" edge impossible to publish, and
// finally reachability over the built plan.
func (c *Compiler) Compile(graph reauthDomain.AuthoringGraph) (*Result, error) {
	if err := c.validateNodeTypes(graph); err != nil {
		return nil, err
	}

	startID, err := singleStartNode(graph)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]reauthDomain.AuthoringNode, len(graph.Nodes))
	for _, n := range graph.Nodes {
		byID[n.ID] = n
	}

	if err := validateEdges(graph, byID); err != nil {
		return nil, err
	}

	if err := validatePasswordSuccessEdge(graph, byID); err != nil {
		return nil, err
	}

	plan, err := c.buildPlan(graph, byID, startID)
	if err != nil {
		return nil, err
	}

	if err := validateReachability(plan); err != nil {
		return nil, err
	}

	artifact, err := plan.Marshal()
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}

	sum := sha256.Sum256([]byte(artifact))

	return &Result{
		Plan:     plan,
		Artifact: artifact,
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}

func (c *Compiler) validateNodeTypes(graph reauthDomain.AuthoringGraph) error {
	for _, n := range graph.Nodes {
		if _, ok := c.registry.StepType(n.Type); !ok {
			return reauthApperr.Validation(fmt.Sprintf("unknown node type %q on node %q", n.Type, n.ID), nil)
		}
	}
	return nil
}

func singleStartNode(graph reauthDomain.AuthoringGraph) (string, error) {
	var startID string
	count := 0
	for _, n := range graph.Nodes {
		if n.Type == reauthFlow.NodeTypeStart {
			count++
			startID = n.ID
		}
	}
	if count != 1 {
		return "", reauthApperr.Validation(fmt.Sprintf("graph must have exactly one %s node, found %d", reauthFlow.NodeTypeStart, count), nil)
	}
	return startID, nil
}

func validateEdges(graph reauthDomain.AuthoringGraph, byID map[string]reauthDomain.AuthoringNode) error {
	for _, e := range graph.Edges {
		if _, ok := byID[e.From]; !ok {
			return reauthApperr.Validation(fmt.Sprintf("edge references unknown source node %q", e.From), nil)
		}
		if _, ok := byID[e.To]; !ok {
			return reauthApperr.Validation(fmt.Sprintf("edge references unknown target node %q", e.To), nil)
		}
	}
	return nil
}

// validatePasswordSuccessEdge is the safety-patch-removal regression:
// a core.auth.password node whose "success" output has no outgoing
// edge used to require a runtime patch that special-cased a dangling
// success branch as an implicit FlowSuccess. That patch is gone; a
// graph shaped that way now fails compilation outright.
func validatePasswordSuccessEdge(graph reauthDomain.AuthoringGraph, byID map[string]reauthDomain.AuthoringNode) error {
	hasSuccessEdge := make(map[string]bool)
	for _, e := range graph.Edges {
		if e.Output == "success" {
			hasSuccessEdge[e.From] = true
		}
	}
	for _, n := range byID {
		if n.Type != reauthFlow.NodeTypePassword {
			continue
		}
		if !hasSuccessEdge[n.ID] {
			return reauthApperr.Validation(fmt.Sprintf("node %q (%s) has no edge for output \"success\"", n.ID, reauthFlow.NodeTypePassword), nil)
		}
	}
	return nil
}

func (c *Compiler) buildPlan(graph reauthDomain.AuthoringGraph, byID map[string]reauthDomain.AuthoringNode, startID string) (*reauthDomain.ExecutionPlan, error) {
	nextByNode := make(map[string]map[string]string, len(graph.Nodes))
	for _, n := range graph.Nodes {
		nextByNode[n.ID] = make(map[string]string)
	}
	for _, e := range graph.Edges {
		nextByNode[e.From][e.Output] = e.To
	}

	plan := &reauthDomain.ExecutionPlan{
		StartNodeID: startID,
		Nodes:       make(map[string]reauthDomain.ExecutionNode, len(graph.Nodes)),
	}

	for _, n := range graph.Nodes {
		stepType, _ := c.registry.StepType(n.Type)
		config := make(map[string]any, len(n.Config)+1)
		for k, v := range n.Config {
			config[k] = v
		}
		config["auth_type"] = n.Type

		plan.Nodes[n.ID] = reauthDomain.ExecutionNode{
			ID:       n.ID,
			StepType: stepType,
			Next:     nextByNode[n.ID],
			Config:   config,
		}
	}

	return plan, nil
}

// validateReachability walks forward from the start node and rejects
// a plan containing a terminal node that cannot be reached, or any
// node reachable from start that is not a terminal and has no
// outgoing edges at all (a dead end that can never produce a
// NodeOutcome other than getting stuck).
func validateReachability(plan *reauthDomain.ExecutionPlan) error {
	visited := make(map[string]bool)
	queue := []string{plan.StartNodeID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		node, ok := plan.Nodes[id]
		if !ok {
			return reauthApperr.Validation(fmt.Sprintf("dangling reference to node %q", id), nil)
		}
		if node.StepType != reauthDomain.StepTerminal && len(node.Next) == 0 {
			return reauthApperr.Validation(fmt.Sprintf("node %q has no outgoing edges and is not a terminal", id), nil)
		}
		for _, to := range node.Next {
			queue = append(queue, to)
		}
	}

	terminals := 0
	for id, node := range plan.Nodes {
		if node.StepType != reauthDomain.StepTerminal {
			continue
		}
		terminals++
		if !visited[id] {
			return reauthApperr.Validation(fmt.Sprintf("terminal node %q is unreachable from start", id), nil)
		}
	}
	if terminals == 0 {
		return reauthApperr.Validation("graph has no terminal node", nil)
	}

	return nil
}

// Copyright (c) 2025 Justin Cranford

package compiler_test

import (
	"testing"

	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthFlow "github.com/reauth/reauth/internal/flow"
	"github.com/reauth/reauth/internal/flow/compiler"

	"github.com/stretchr/testify/require"
)

func newRegistry() *reauthFlow.Registry {
	r := reauthFlow.NewRegistry()
	r.Register(reauthFlow.NodeTypeStart, reauthDomain.StepLogic, nil)
	r.Register(reauthFlow.NodeTypeTerminal, reauthDomain.StepTerminal, nil)
	r.Register(reauthFlow.NodeTypePassword, reauthDomain.StepAuthenticator, nil)
	r.Register(reauthFlow.NodeTypeCookieSSO, reauthDomain.StepAuthenticator, nil)
	return r
}

func validGraph() reauthDomain.AuthoringGraph {
	return reauthDomain.AuthoringGraph{
		Nodes: []reauthDomain.AuthoringNode{
			{ID: "start", Type: reauthFlow.NodeTypeStart},
			{ID: "pwd", Type: reauthFlow.NodeTypePassword},
			{ID: "success", Type: reauthFlow.NodeTypeTerminal, Config: map[string]any{"is_failure": false}},
			{ID: "failure", Type: reauthFlow.NodeTypeTerminal, Config: map[string]any{"is_failure": true}},
		},
		Edges: []reauthDomain.AuthoringEdge{
			{From: "start", To: "pwd", Output: "default"},
			{From: "pwd", To: "success", Output: "success"},
			{From: "pwd", To: "failure", Output: "failure"},
		},
	}
}

func TestCompiler_Compile_ValidGraph(t *testing.T) {
	t.Parallel()

	c := compiler.New(newRegistry())
	result, err := c.Compile(validGraph())
	require.NoError(t, err)
	require.Equal(t, "start", result.Plan.StartNodeID)
	require.NotEmpty(t, result.Checksum)
	require.Equal(t, "pwd", result.Plan.Nodes["start"].Next["default"])
}

func TestCompiler_Compile_RejectsMissingPasswordSuccessEdge(t *testing.T) {
	t.Parallel()

	graph := reauthDomain.AuthoringGraph{
		Nodes: []reauthDomain.AuthoringNode{
			{ID: "start", Type: reauthFlow.NodeTypeStart},
			{ID: "pwd", Type: reauthFlow.NodeTypePassword},
			{ID: "failure", Type: reauthFlow.NodeTypeTerminal, Config: map[string]any{"is_failure": true}},
		},
		Edges: []reauthDomain.AuthoringEdge{
			{From: "start", To: "pwd", Output: "default"},
			{From: "pwd", To: "failure", Output: "failure"},
		},
	}

	c := compiler.New(newRegistry())
	_, err := c.Compile(graph)
	require.Error(t, err)
	require.Contains(t, err.Error(), "success")
}

func TestCompiler_Compile_RejectsMultipleStartNodes(t *testing.T) {
	t.Parallel()

	graph := validGraph()
	graph.Nodes = append(graph.Nodes, reauthDomain.AuthoringNode{ID: "start2", Type: reauthFlow.NodeTypeStart})

	c := compiler.New(newRegistry())
	_, err := c.Compile(graph)
	require.Error(t, err)
}

func TestCompiler_Compile_RejectsUnreachableTerminal(t *testing.T) {
	t.Parallel()

	graph := validGraph()
	graph.Nodes = append(graph.Nodes, reauthDomain.AuthoringNode{ID: "orphan", Type: reauthFlow.NodeTypeTerminal})

	c := compiler.New(newRegistry())
	_, err := c.Compile(graph)
	require.Error(t, err)
}

func TestCompiler_Compile_RejectsUnknownNodeType(t *testing.T) {
	t.Parallel()

	graph := validGraph()
	graph.Nodes[1].Type = "core.auth.nonexistent"

	c := compiler.New(newRegistry())
	_, err := c.Compile(graph)
	require.Error(t, err)
}

func TestCompiler_Compile_RejectsDanglingEdge(t *testing.T) {
	t.Parallel()

	graph := validGraph()
	graph.Edges = append(graph.Edges, reauthDomain.AuthoringEdge{From: "pwd", To: "nope", Output: "other"})

	c := compiler.New(newRegistry())
	_, err := c.Compile(graph)
	require.Error(t, err)
}

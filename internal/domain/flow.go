// Copyright (c) 2025 Justin Cranford

package domain

import (
	"encoding/json"
	"time"

	googleUuid "github.com/google/uuid"
	"gorm.io/gorm"
)

// FlowDraft is mutable authoring state; publish compiles it into an
// immutable FlowVersion (spec §3 FlowDraft/FlowVersion/FlowDeployment).
type FlowDraft struct {
	ID          googleUuid.UUID `gorm:"type:text;primaryKey"`
	RealmID     googleUuid.UUID `gorm:"type:text;not null;index"`
	Name        string          `gorm:"not null"`
	Description *string
	FlowType    string `gorm:"not null"`
	GraphJSON   string `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (FlowDraft) TableName() string { return "flow_drafts" }

func (d *FlowDraft) BeforeCreate(_ *gorm.DB) error {
	if d.ID == googleUuid.Nil {
		d.ID = googleUuid.Must(googleUuid.NewV7())
	}
	return nil
}

// FlowVersion is an immutable, monotonically-numbered snapshot of a
// draft's graph plus its compiled ExecutionPlan artifact.
type FlowVersion struct {
	ID                 googleUuid.UUID `gorm:"type:text;primaryKey"`
	FlowID             googleUuid.UUID `gorm:"type:text;not null;index"`
	VersionNumber      int             `gorm:"not null"`
	GraphJSON          string          `gorm:"not null"`
	ExecutionArtifact  string          `gorm:"not null"`
	Checksum           string          `gorm:"not null"`
	CreatedAt          time.Time
}

func (FlowVersion) TableName() string { return "flow_versions" }

func (v *FlowVersion) BeforeCreate(_ *gorm.DB) error {
	if v.ID == googleUuid.Nil {
		v.ID = googleUuid.Must(googleUuid.NewV7())
	}
	return nil
}

// FlowDeployment points a (realm, flow_type) pair at the version id that
// is currently served.
type FlowDeployment struct {
	ID              googleUuid.UUID `gorm:"type:text;primaryKey"`
	RealmID         googleUuid.UUID `gorm:"type:text;not null;uniqueIndex:idx_deploy_realm_type"`
	FlowType        string          `gorm:"not null;uniqueIndex:idx_deploy_realm_type"`
	FlowID          googleUuid.UUID `gorm:"type:text;not null"`
	ActiveVersionID googleUuid.UUID `gorm:"type:text;not null"`
	UpdatedAt       time.Time
}

func (FlowDeployment) TableName() string { return "flow_deployments" }

func (d *FlowDeployment) BeforeCreate(_ *gorm.DB) error {
	if d.ID == googleUuid.Nil {
		d.ID = googleUuid.Must(googleUuid.NewV7())
	}
	return nil
}

// StepType classifies an ExecutionNode (spec §3 ExecutionPlan).
type StepType string

const (
	StepAuthenticator StepType = "Authenticator"
	StepLogic         StepType = "Logic"
	StepTerminal      StepType = "Terminal"
)

// ExecutionNode is one vertex of a frozen ExecutionPlan.
type ExecutionNode struct {
	ID       string            `json:"id"`
	StepType StepType          `json:"step_type"`
	Next     map[string]string `json:"next"`
	Config   map[string]any    `json:"config"`
}

// ExecutionPlan is the frozen artifact the flow executor interprets
// (spec §3 ExecutionPlan, §6 "execution_artifact").
type ExecutionPlan struct {
	StartNodeID string                   `json:"start_node_id"`
	Nodes       map[string]ExecutionNode `json:"nodes"`
}

func ParseExecutionPlan(artifact string) (*ExecutionPlan, error) {
	var plan ExecutionPlan
	if err := json.Unmarshal([]byte(artifact), &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (p *ExecutionPlan) Marshal() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// AuthoringGraph is the authoring-time JSON shape (spec §6 "graph_json")
// the flow compiler validates and compiles into an ExecutionPlan.
type AuthoringGraph struct {
	Nodes []AuthoringNode `json:"nodes"`
	Edges []AuthoringEdge `json:"edges"`
}

type AuthoringNode struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

type AuthoringEdge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Output string `json:"output"`
}

// Copyright (c) 2025 Justin Cranford
//
// Package realmsvc manages the realm/flow authoring lifecycle: drafts
// are mutable, publish compiles a draft into an immutable version and
// repoints the realm+flow_type deployment at it (spec §3 "FlowDraft /
// FlowVersion / FlowDeployment").
package realmsvc

import (
	"context"
	"encoding/json"

	reauthApperr "github.com/reauth/reauth/internal/apperr"
	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthCompiler "github.com/reauth/reauth/internal/flow/compiler"
	reauthRepository "github.com/reauth/reauth/internal/repository"

	googleUuid "github.com/google/uuid"
)

func unmarshalGraph(raw string, out *reauthDomain.AuthoringGraph) error {
	return json.Unmarshal([]byte(raw), out)
}

// Service implements realm bootstrap and the flow-authoring pipeline.
type Service struct {
	realms   *reauthRepository.RealmRepository
	flows    *reauthRepository.FlowRepository
	compiler *reauthCompiler.Compiler
}

func NewService(realms *reauthRepository.RealmRepository, flows *reauthRepository.FlowRepository, compiler *reauthCompiler.Compiler) *Service {
	return &Service{realms: realms, flows: flows, compiler: compiler}
}

// DefaultRealmPolicy is the lockout/token-TTL policy a new realm is
// seeded with, supplied by the caller (the `realm create` command's
// flags) (spec §3 Realm "Created with default lockout policy").
type DefaultRealmPolicy struct {
	AccessTokenTTLSecs        int
	RefreshTokenTTLSecs       int
	PKCERequiredPublicClients bool
	LockoutThreshold          int
	LockoutDurationSecs       int
}

// CreateRealm creates realm rows with name and the given default
// policy. Flow slots are left unbound until the first Publish of a draft
// of that flow type binds them (see bindRealmFlowSlot).
func (s *Service) CreateRealm(ctx context.Context, name string, policy DefaultRealmPolicy) (*reauthDomain.Realm, error) {
	realm := &reauthDomain.Realm{
		Name:                      name,
		AccessTokenTTLSecs:        policy.AccessTokenTTLSecs,
		RefreshTokenTTLSecs:       policy.RefreshTokenTTLSecs,
		PKCERequiredPublicClients: reauthDomain.IntBool(policy.PKCERequiredPublicClients),
		LockoutThreshold:          policy.LockoutThreshold,
		LockoutDurationSecs:       policy.LockoutDurationSecs,
	}
	if err := s.realms.Create(ctx, realm); err != nil {
		return nil, err
	}
	return realm, nil
}

// CreateDraft creates a new mutable FlowDraft for realmID.
func (s *Service) CreateDraft(ctx context.Context, realmID googleUuid.UUID, name string, flowType reauthDomain.FlowType, graphJSON string) (*reauthDomain.FlowDraft, error) {
	draft := &reauthDomain.FlowDraft{
		RealmID:   realmID,
		Name:      name,
		FlowType:  string(flowType),
		GraphJSON: graphJSON,
	}
	if err := s.flows.CreateDraft(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// UpdateDraft overwrites draft's graph_json.
func (s *Service) UpdateDraft(ctx context.Context, draftID googleUuid.UUID, graphJSON string) (*reauthDomain.FlowDraft, error) {
	draft, err := s.flows.GetDraftByID(ctx, draftID)
	if err != nil {
		return nil, err
	}
	draft.GraphJSON = graphJSON
	if err := s.flows.UpdateDraft(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// Publish compiles draft's current graph_json, persists the result as
// the next monotonically-numbered FlowVersion, and repoints the
// realm+flow_type deployment at it (spec §3 "publish compiles it and
// creates an immutable version... then repoints the deployment").
func (s *Service) Publish(ctx context.Context, draftID googleUuid.UUID) (*reauthDomain.FlowVersion, error) {
	draft, err := s.flows.GetDraftByID(ctx, draftID)
	if err != nil {
		return nil, err
	}

	var graph reauthDomain.AuthoringGraph
	if err := unmarshalGraph(draft.GraphJSON, &graph); err != nil {
		return nil, reauthApperr.Validation("draft graph_json is not valid JSON", err)
	}

	result, err := s.compiler.Compile(graph)
	if err != nil {
		return nil, err
	}

	nextNumber, err := s.flows.GetLatestVersionNumber(ctx, draft.ID)
	if err != nil {
		return nil, err
	}
	nextNumber++

	version := &reauthDomain.FlowVersion{
		FlowID:            draft.ID,
		VersionNumber:     nextNumber,
		GraphJSON:         draft.GraphJSON,
		ExecutionArtifact: result.Artifact,
		Checksum:          result.Checksum,
	}
	if err := s.flows.CreateVersion(ctx, version); err != nil {
		return nil, err
	}

	deployment := &reauthDomain.FlowDeployment{
		RealmID:         draft.RealmID,
		FlowType:        draft.FlowType,
		FlowID:          draft.ID,
		ActiveVersionID: version.ID,
	}
	if err := s.flows.SetDeployment(ctx, deployment); err != nil {
		return nil, err
	}

	if err := s.bindRealmFlowSlot(ctx, draft.RealmID, reauthDomain.FlowType(draft.FlowType), draft.ID); err != nil {
		return nil, err
	}

	return version, nil
}

// Rollback repoints realmID's flow_type deployment at a previously
// published version, without creating a new one. The target version
// must belong to the same flow the deployment currently serves.
func (s *Service) Rollback(ctx context.Context, realmID googleUuid.UUID, flowType reauthDomain.FlowType, targetVersionID googleUuid.UUID) error {
	deployment, err := s.flows.GetDeployment(ctx, realmID, string(flowType))
	if err != nil {
		return err
	}
	target, err := s.flows.GetVersion(ctx, targetVersionID)
	if err != nil {
		return err
	}
	if target.FlowID != deployment.FlowID {
		return reauthApperr.Validation("target version does not belong to the deployed flow", nil)
	}

	deployment.ActiveVersionID = target.ID
	return s.flows.SetDeployment(ctx, deployment)
}

// bindRealmFlowSlot points realmID's flow-type slot at flowID the first
// time that slot is published to, auto-binding a realm's default flow
// set (spec §3 Realm "each slot stores the id of an AuthFlow").
func (s *Service) bindRealmFlowSlot(ctx context.Context, realmID googleUuid.UUID, flowType reauthDomain.FlowType, flowID googleUuid.UUID) error {
	realm, err := s.realms.GetByID(ctx, realmID)
	if err != nil {
		return err
	}
	if realm.FlowIDFor(flowType) != nil {
		return nil
	}

	switch flowType {
	case reauthDomain.FlowTypeBrowser:
		realm.BrowserFlowID = reauthDomain.NewNullableUUID(&flowID)
	case reauthDomain.FlowTypeRegistration:
		realm.RegistrationFlowID = reauthDomain.NewNullableUUID(&flowID)
	case reauthDomain.FlowTypeDirectGrant:
		realm.DirectGrantFlowID = reauthDomain.NewNullableUUID(&flowID)
	case reauthDomain.FlowTypeResetCredentials:
		realm.ResetCredentialsFlowID = reauthDomain.NewNullableUUID(&flowID)
	}
	return s.realms.Update(ctx, realm)
}

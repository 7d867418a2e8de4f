// Copyright (c) 2025 Justin Cranford

package main

import (
	reauthConfig "github.com/reauth/reauth/internal/config"
	reauthFlow "github.com/reauth/reauth/internal/flow"
	reauthNodes "github.com/reauth/reauth/internal/flow/nodes"
	reauthRepository "github.com/reauth/reauth/internal/repository"
)

// buildNodeRegistry wires the built-in login-flow nodes against repos,
// shared by the running server (for live execution) and the realm CLI
// (so `reauth realm publish` validates a draft's node types against the
// exact same registry the executor will run it with).
func buildNodeRegistry(repos *reauthRepository.RepositoryFactory, cfg *reauthConfig.Config) *reauthFlow.Registry {
	registry := reauthFlow.NewRegistry()
	reauthFlow.RegisterDefaults(registry,
		reauthNodes.NewPasswordNode(repos.UserRepository(), repos.SessionRepository(), repos.RealmRepository()),
		reauthNodes.NewCookieSSONode(repos.SessionRepository()),
		reauthNodes.NewOTPIssueNode(repos.UserRepository(), cfg.Auth.Issuer),
		reauthNodes.NewOTPVerifyNode(repos.UserRepository()),
	)
	return registry
}

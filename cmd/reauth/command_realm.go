// Copyright (c) 2025 Justin Cranford

package main

import (
	"fmt"
	"os"

	reauthConfig "github.com/reauth/reauth/internal/config"
	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthCompiler "github.com/reauth/reauth/internal/flow/compiler"
	reauthRealmsvc "github.com/reauth/reauth/internal/realmsvc"
	reauthRepository "github.com/reauth/reauth/internal/repository"

	"github.com/spf13/cobra"
	googleUuid "github.com/google/uuid"
)

// newRealmCommand groups the realm/flow authoring pipeline (spec §3
// FlowDraft/FlowVersion/FlowDeployment) behind the CLI rather than an
// HTTP surface: the external interface table names no admin endpoints
// for it, so an operator drives authoring out-of-band from requests a
// tenant's own users ever send.
func newRealmCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realm",
		Short: "Manage realms and their authentication flows",
	}
	cmd.AddCommand(newRealmCreateCommand())
	cmd.AddCommand(newFlowDraftCommand())
	cmd.AddCommand(newFlowPublishCommand())
	cmd.AddCommand(newFlowRollbackCommand())
	return cmd
}

func openRealmService(cmd *cobra.Command) (*reauthRealmsvc.Service, *reauthRepository.RepositoryFactory, error) {
	cfg, err := reauthConfig.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	repos, err := reauthRepository.NewRepositoryFactory(cmd.Context(), cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	compiler := reauthCompiler.New(buildNodeRegistry(repos, cfg))
	return reauthRealmsvc.NewService(repos.RealmRepository(), repos.FlowRepository(), compiler), repos, nil
}

func newRealmCreateCommand() *cobra.Command {
	var name string
	var accessTTL, refreshTTL, lockoutThreshold, lockoutDuration int
	var pkceRequired bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a realm with a default token and lockout policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, repos, err := openRealmService(cmd)
			if err != nil {
				return err
			}
			defer repos.Close()

			realm, err := svc.CreateRealm(cmd.Context(), name, reauthRealmsvc.DefaultRealmPolicy{
				AccessTokenTTLSecs:        accessTTL,
				RefreshTokenTTLSecs:       refreshTTL,
				PKCERequiredPublicClients: pkceRequired,
				LockoutThreshold:          lockoutThreshold,
				LockoutDurationSecs:       lockoutDuration,
			})
			if err != nil {
				return err
			}
			fmt.Printf("created realm %s (%s)\n", realm.Name, realm.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "realm name")
	cmd.Flags().IntVar(&accessTTL, "access-token-ttl-secs", 300, "access token TTL in seconds")
	cmd.Flags().IntVar(&refreshTTL, "refresh-token-ttl-secs", 2592000, "refresh token TTL in seconds")
	cmd.Flags().BoolVar(&pkceRequired, "pkce-required", true, "require PKCE for public clients")
	cmd.Flags().IntVar(&lockoutThreshold, "lockout-threshold", 5, "failed logins before lockout")
	cmd.Flags().IntVar(&lockoutDuration, "lockout-duration-secs", 900, "lockout duration in seconds")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newFlowDraftCommand() *cobra.Command {
	var realmID, flowType, name, graphFile string

	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Create a draft authoring graph for a realm's flow slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := googleUuid.Parse(realmID)
			if err != nil {
				return fmt.Errorf("parsing --realm: %w", err)
			}
			graph, err := os.ReadFile(graphFile)
			if err != nil {
				return fmt.Errorf("reading --graph file: %w", err)
			}

			svc, repos, err := openRealmService(cmd)
			if err != nil {
				return err
			}
			defer repos.Close()

			draft, err := svc.CreateDraft(cmd.Context(), id, name, reauthDomain.FlowType(flowType), string(graph))
			if err != nil {
				return err
			}
			fmt.Printf("created draft %s\n", draft.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&realmID, "realm", "", "realm id")
	cmd.Flags().StringVar(&flowType, "flow-type", string(reauthDomain.FlowTypeBrowser), "browser|registration|direct_grant|reset_credentials")
	cmd.Flags().StringVar(&name, "name", "", "draft name")
	cmd.Flags().StringVar(&graphFile, "graph", "", "path to the authoring graph JSON file")
	_ = cmd.MarkFlagRequired("realm")
	_ = cmd.MarkFlagRequired("graph")
	return cmd
}

func newFlowPublishCommand() *cobra.Command {
	var draftID string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Compile a draft and deploy it as the active version",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := googleUuid.Parse(draftID)
			if err != nil {
				return fmt.Errorf("parsing --draft: %w", err)
			}
			svc, repos, err := openRealmService(cmd)
			if err != nil {
				return err
			}
			defer repos.Close()

			version, err := svc.Publish(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("published version %s (number %d)\n", version.ID, version.VersionNumber)
			return nil
		},
	}
	cmd.Flags().StringVar(&draftID, "draft", "", "draft id")
	_ = cmd.MarkFlagRequired("draft")
	return cmd
}

func newFlowRollbackCommand() *cobra.Command {
	var realmID, flowType, versionID string

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Repoint a realm's flow-type deployment at a previously published version",
		RunE: func(cmd *cobra.Command, args []string) error {
			rID, err := googleUuid.Parse(realmID)
			if err != nil {
				return fmt.Errorf("parsing --realm: %w", err)
			}
			vID, err := googleUuid.Parse(versionID)
			if err != nil {
				return fmt.Errorf("parsing --version: %w", err)
			}
			svc, repos, err := openRealmService(cmd)
			if err != nil {
				return err
			}
			defer repos.Close()

			if err := svc.Rollback(cmd.Context(), rID, reauthDomain.FlowType(flowType), vID); err != nil {
				return err
			}
			fmt.Println("rolled back")
			return nil
		},
	}
	cmd.Flags().StringVar(&realmID, "realm", "", "realm id")
	cmd.Flags().StringVar(&flowType, "flow-type", string(reauthDomain.FlowTypeBrowser), "browser|registration|direct_grant|reset_credentials")
	cmd.Flags().StringVar(&versionID, "version", "", "target flow version id")
	_ = cmd.MarkFlagRequired("realm")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

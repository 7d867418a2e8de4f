// Copyright (c) 2025 Justin Cranford

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	reauthAuthsvc "github.com/reauth/reauth/internal/authsvc"
	reauthConfig "github.com/reauth/reauth/internal/config"
	reauthEventbus "github.com/reauth/reauth/internal/eventbus"
	reauthFlow "github.com/reauth/reauth/internal/flow"
	reauthHttpapi "github.com/reauth/reauth/internal/httpapi"
	reauthJobs "github.com/reauth/reauth/internal/jobs"
	reauthOidcsvc "github.com/reauth/reauth/internal/oidcsvc"
	reauthRbac "github.com/reauth/reauth/internal/rbac"
	reauthRepository "github.com/reauth/reauth/internal/repository"
	reauthTelemetry "github.com/reauth/reauth/internal/telemetry"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const rbacCacheSize = 4096

func newStartCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the reauth server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), verbose)
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug-level logging")
	return cmd
}

func runStart(parentCtx context.Context, verbose bool) error {
	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := reauthConfig.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	telemetry, err := reauthTelemetry.New(ctx, "reauth", verbose)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer telemetry.Shutdown(context.Background())

	repos, err := reauthRepository.NewRepositoryFactory(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer repos.Close()

	if err := repos.AutoMigrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	rbacResolver, err := reauthRbac.NewResolver(repos.RbacRepository(), rbacCacheSize)
	if err != nil {
		return fmt.Errorf("building rbac resolver: %w", err)
	}

	keys, err := reauthOidcsvc.NewKeyManager()
	if err != nil {
		return fmt.Errorf("generating signing keys: %w", err)
	}

	registry := buildNodeRegistry(repos, cfg)
	executor := reauthFlow.NewExecutor(repos.SessionRepository(), repos.FlowRepository(), registry)

	oidcService := reauthOidcsvc.NewService(
		repos.RealmRepository(), repos.OidcRepository(), repos.UserRepository(),
		repos.FlowRepository(), repos.SessionRepository(), rbacResolver, executor, keys, cfg.Auth.Issuer,
	)
	authService := reauthAuthsvc.NewService(
		repos.OidcRepository(), repos.RealmRepository(), repos.UserRepository(), rbacResolver, keys, cfg.Auth.Issuer,
	)
	publisher := reauthEventbus.NewPublisher(repos.OutboxRepository())
	dispatcher := reauthEventbus.NewDispatcher(repos.OutboxRepository(), repos.WebhookRepository(), cfg.Outbox.WorkerID, telemetry.Slogger)

	router := reauthHttpapi.New(
		repos.RealmRepository(), repos.UserRepository(), repos.SessionRepository(), repos.FlowRepository(), repos.WebhookRepository(),
		oidcService, authService, executor, keys, publisher, dispatcher, telemetry.Slogger,
	)
	server := reauthHttpapi.NewServer(cfg.Server.BindAddr, router, cfg.Server.AllowedOrigins, telemetry.Slogger)

	cleanup := reauthJobs.NewCleanupJob(repos, telemetry.Slogger, "")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return server.Run(groupCtx) })
	group.Go(func() error { return dispatcher.Run(groupCtx, cfg.Outbox.PollInterval) })
	group.Go(func() error { cleanup.Start(groupCtx); return nil })

	if err := group.Wait(); err != nil && groupCtx.Err() == nil {
		return err
	}
	return nil
}

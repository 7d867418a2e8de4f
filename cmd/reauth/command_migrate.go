// Copyright (c) 2025 Justin Cranford

package main

import (
	"fmt"

	reauthConfig "github.com/reauth/reauth/internal/config"
	reauthRepository "github.com/reauth/reauth/internal/repository"

	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := reauthConfig.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			repos, err := reauthRepository.NewRepositoryFactory(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer repos.Close()

			if err := repos.AutoMigrate(cmd.Context()); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

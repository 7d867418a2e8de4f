// Copyright (c) 2025 Justin Cranford

// Package main is the reauth server entry point: load config, wire the
// repository/service/executor layers, and serve the HTTP surface until
// interrupted.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reauth",
		Short: "ReAuth identity provider",
		Long: `ReAuth - multi-realm OIDC identity provider.

Serves the authorization code + PKCE flow, a resumable login flow
executor, RBAC-scoped tokens, and a transactional webhook outbox out of
a single process backed by SQLite.

API Endpoints:
  /api/realms/{realm}/oidc/authorize                    - Start OIDC code flow
  /api/realms/{realm}/oidc/token                         - Exchange authorization code for tokens
  /api/realms/{realm}/oidc/.well-known/jwks.json         - Signing keys
  /api/realms/{realm}/oidc/.well-known/openid-configuration - Discovery document
  /api/realms/{realm}/oidc/userinfo                      - Bearer-token claims
  /api/realms/{realm}/auth/login                         - Start/resume login session
  /api/realms/{realm}/auth/login/execute                 - Submit step input
  /api/realms/{realm}/auth/refresh                       - Rotate refresh token
  /api/realms/{realm}/auth/logout                        - Revoke refresh family
  /api/realms/{realm}/webhooks                           - Webhook endpoint list/create/get/update/test (no delete)`,
	}

	rootCmd.AddCommand(newStartCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newRealmCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

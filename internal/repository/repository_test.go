// Copyright (c) 2025 Justin Cranford

package repository_test

import (
	"context"
	"testing"

	reauthRepository "github.com/reauth/reauth/internal/repository"

	googleUuid "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func setupTestFactory(t *testing.T) *reauthRepository.RepositoryFactory {
	t.Helper()

	ctx := context.Background()
	dsn := "file:" + googleUuid.Must(googleUuid.NewV7()).String() + "?mode=memory&cache=shared"

	factory, err := reauthRepository.NewRepositoryFactory(ctx, dsn)
	require.NoError(t, err)

	require.NoError(t, factory.AutoMigrate(ctx))

	t.Cleanup(func() { _ = factory.Close() })
	return factory
}

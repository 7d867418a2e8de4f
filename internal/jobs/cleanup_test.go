// Copyright (c) 2025 Justin Cranford

package jobs

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthRepository "github.com/reauth/reauth/internal/repository"

	googleUuid "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func setupFactory(t *testing.T) *reauthRepository.RepositoryFactory {
	t.Helper()
	ctx := context.Background()
	dsn := "file:" + googleUuid.Must(googleUuid.NewV7()).String() + "?mode=memory&cache=shared"
	factory, err := reauthRepository.NewRepositoryFactory(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, factory.AutoMigrate(ctx))
	t.Cleanup(func() { _ = factory.Close() })
	return factory
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewCleanupJob_EmptyScheduleUsesDefault(t *testing.T) {
	t.Parallel()

	job := NewCleanupJob(setupFactory(t), testLogger(), "")
	require.Equal(t, defaultCleanupSchedule, job.schedule)
	require.NotNil(t, job.stopChan)
}

func TestCleanupJob_StartAndStop(t *testing.T) {
	t.Parallel()

	job := NewCleanupJob(setupFactory(t), testLogger(), "@every 50ms")

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	time.Sleep(200 * time.Millisecond)
	job.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup job did not stop within timeout")
	}
}

func TestCleanupJob_CleanupDeletesExpiredRows(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	ctx := context.Background()

	realm := &reauthDomain.Realm{Name: "acme"}
	require.NoError(t, factory.RealmRepository().Create(ctx, realm))
	user := &reauthDomain.User{RealmID: realm.ID, Username: "alice", HashedPassword: "n/a"}
	require.NoError(t, factory.UserRepository().Create(ctx, user))

	expiredCode := &reauthDomain.AuthorizationCode{
		Code: "expired-code", UserID: user.ID, ClientID: "app", RealmID: realm.ID,
		RedirectURI: "https://app.example/cb", ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, factory.OidcRepository().CreateCode(ctx, expiredCode))

	expiredRefresh := reauthDomain.NewRefreshToken(user.ID, realm.ID, nil, -time.Hour)
	require.NoError(t, factory.OidcRepository().CreateRefreshToken(ctx, expiredRefresh))

	expiredSession := &reauthDomain.AuthenticationSession{
		RealmID: realm.ID, FlowVersionID: googleUuid.Must(googleUuid.NewV7()), CurrentNodeID: "start",
		Status: reauthDomain.SessionFailed, ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, factory.SessionRepository().CreateSession(ctx, expiredSession))

	job := NewCleanupJob(factory, testLogger(), "@every 1h")
	job.cleanup(ctx)

	_, err := factory.OidcRepository().ConsumeCode(ctx, "expired-code")
	require.Error(t, err)

	_, err = factory.OidcRepository().GetRefreshToken(ctx, expiredRefresh.ID)
	require.Error(t, err)

	_, err = factory.SessionRepository().GetSession(ctx, expiredSession.ID)
	require.Error(t, err)
}

// Copyright (c) 2025 Justin Cranford

package eventbus_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthEventbus "github.com/reauth/reauth/internal/eventbus"

	"github.com/stretchr/testify/require"
)

func TestDispatcher_ProcessBatch_DeliversAndMarksDelivered(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	ctx := context.Background()

	realm := &reauthDomain.Realm{Name: "r1"}
	require.NoError(t, factory.RealmRepository().Create(ctx, realm))

	var receivedSignature, receivedBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		receivedBody = string(body)
		receivedSignature = r.Header.Get("Reauth-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	endpoint := &reauthDomain.WebhookEndpoint{
		RealmID:       realm.ID,
		Name:          "audit",
		URL:           server.URL,
		SigningSecret: "s3cr3t",
	}
	require.NoError(t, factory.WebhookRepository().CreateEndpoint(ctx, endpoint))
	require.NoError(t, factory.WebhookRepository().Subscribe(ctx, endpoint.ID, "role.deleted"))

	publisher := reauthEventbus.NewPublisher(factory.OutboxRepository())
	require.NoError(t, publisher.Publish(ctx, "role.deleted", &realm.ID, nil, map[string]any{"role_id": "abc"}))

	dispatcher := reauthEventbus.NewDispatcher(factory.OutboxRepository(), factory.WebhookRepository(), "worker-0", slog.Default())
	processed, err := dispatcher.ProcessBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	require.NotEmpty(t, receivedBody)
	expectedMac := hmac.New(sha256.New, []byte("s3cr3t"))
	expectedMac.Write([]byte(receivedBody))
	require.Equal(t, hex.EncodeToString(expectedMac.Sum(nil)), receivedSignature)

	reloadedEndpoint, err := factory.WebhookRepository().GetEndpoint(ctx, endpoint.ID)
	require.NoError(t, err)
	require.Equal(t, 0, reloadedEndpoint.ConsecutiveFailures)
	require.True(t, reloadedEndpoint.IsDeliverable())
}

func TestDispatcher_ProcessBatch_SkipsEventWithNoTargets(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	ctx := context.Background()

	realm := &reauthDomain.Realm{Name: "r1"}
	require.NoError(t, factory.RealmRepository().Create(ctx, realm))

	publisher := reauthEventbus.NewPublisher(factory.OutboxRepository())
	require.NoError(t, publisher.Publish(ctx, "user.created", &realm.ID, nil, map[string]any{}))

	dispatcher := reauthEventbus.NewDispatcher(factory.OutboxRepository(), factory.WebhookRepository(), "worker-0", slog.Default())
	processed, err := dispatcher.ProcessBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, processed)
}

func TestDispatcher_ProcessBatch_DisablesEndpointAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	factory := setupFactory(t)
	ctx := context.Background()

	realm := &reauthDomain.Realm{Name: "r1"}
	require.NoError(t, factory.RealmRepository().Create(ctx, realm))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	endpoint := &reauthDomain.WebhookEndpoint{
		RealmID:             realm.ID,
		Name:                "flaky",
		URL:                 server.URL,
		SigningSecret:       "s3cr3t",
		ConsecutiveFailures: 9,
	}
	require.NoError(t, factory.WebhookRepository().CreateEndpoint(ctx, endpoint))
	require.NoError(t, factory.WebhookRepository().Subscribe(ctx, endpoint.ID, "user.created"))

	publisher := reauthEventbus.NewPublisher(factory.OutboxRepository())
	require.NoError(t, publisher.Publish(ctx, "user.created", &realm.ID, nil, map[string]any{}))

	dispatcher := reauthEventbus.NewDispatcher(factory.OutboxRepository(), factory.WebhookRepository(), "worker-0", slog.Default())
	_, err := dispatcher.ProcessBatch(ctx)
	require.NoError(t, err)

	reloaded, err := factory.WebhookRepository().GetEndpoint(ctx, endpoint.ID)
	require.NoError(t, err)
	require.Equal(t, reauthDomain.WebhookDisabledSystem, reloaded.Status)
	require.NotNil(t, reloaded.DisabledAt)
}

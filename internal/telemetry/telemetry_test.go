// Copyright (c) 2025 Justin Cranford

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_NilContext(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "reauth-test", false) //nolint:staticcheck
	require.Error(t, err)
	require.Contains(t, err.Error(), "context must be non-nil")
}

func TestNew_EmptyServiceName(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "", false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "service name must be non-empty")
}

func TestNew_Success(t *testing.T) {
	t.Parallel()

	svc, err := New(context.Background(), "reauth-test", true)
	require.NoError(t, err)
	require.NotNil(t, svc.Slogger)
	require.NotNil(t, svc.Tracer)
	require.False(t, svc.StartTime.IsZero())

	svc.Shutdown(context.Background())
}

func TestStartSpan(t *testing.T) {
	t.Parallel()

	svc, err := New(context.Background(), "reauth-test", false)
	require.NoError(t, err)

	ctx, span := svc.StartSpan(context.Background(), "flow.node.execute", "node_id", "n1")
	require.NotNil(t, ctx)
	span.End()
}

func TestOnShutdown_RunsHooks(t *testing.T) {
	t.Parallel()

	svc, err := New(context.Background(), "reauth-test", false)
	require.NoError(t, err)

	ran := false
	svc.OnShutdown(func(context.Context) error {
		ran = true
		return nil
	})
	svc.Shutdown(context.Background())
	require.True(t, ran)
}

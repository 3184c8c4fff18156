package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inlethq/inlet/internal/runtime"
	"github.com/inlethq/inlet/pkg/agent"
	"github.com/inlethq/inlet/pkg/config"
	"github.com/inlethq/inlet/pkg/errors"
	"github.com/inlethq/inlet/pkg/storage/memory"
	"github.com/inlethq/inlet/pkg/testutil"

	_ "github.com/inlethq/inlet/pkg/parser/ndjson"
)

func newTestConfig() *config.Config {
	cfg := config.New()
	cfg.Endpoint.Address = "127.0.0.1:0"
	cfg.Parser = "ndjson"
	cfg.Storage.Driver = "memory"
	cfg.Storage.DB = "test"
	cfg.Storage.CollectionName = "docs"
	cfg.Limits.ShutdownGrace = 2 * time.Second
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := newTestConfig()
	cfg.Endpoint.Address = ""

	_, err := runtime.New(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestNewRejectsUnknownParser(t *testing.T) {
	cfg := newTestConfig()
	cfg.Parser = "carrier-pigeon"

	_, err := runtime.New(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestRunIngestsAndShutsDown(t *testing.T) {
	cfg := newTestConfig()
	cfg.Observability.MetricsAddr = "127.0.0.1:0"
	cfg.Observability.HeartbeatInterval = 50 * time.Millisecond

	rt, err := runtime.New(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	testutil.AssertEventually(t, func() bool {
		return rt.Agent().State() == agent.StateRunning
	}, 2*time.Second, "agent did not reach running state")

	testutil.SendPayload(t, "tcp", rt.Agent().Addr().String(),
		[]byte(`{"sensor":"alpha"}`+"\n"))

	store := rt.Store().(*memory.Store)
	testutil.AssertEventually(t, func() bool { return store.Len() == 1 },
		2*time.Second, "record not persisted")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("runtime did not stop after cancel")
	}

	assert.Equal(t, agent.StateTerminated, rt.Agent().State())
}

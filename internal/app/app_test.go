package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syncnexus/internal/infra/config"
	"syncnexus/internal/infra/fault"
)

func TestNewWiresComponents(t *testing.T) {
	cfg := config.Default()
	cfg.StorePath = t.TempDir()
	cfg.LogLevel = "ERROR"

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Shutdown()

	stats, err := a.Nexus.Stats()
	require.NoError(t, err)
	assert.Equal(t, 75, stats.Threshold)
	assert.Zero(t, stats.Contacts)
}

func TestUnconfiguredGatewayFailsBeforeNetwork(t *testing.T) {
	cfg := config.Default()
	cfg.StorePath = t.TempDir()
	cfg.LogLevel = "ERROR"

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Shutdown()

	_, err = a.Nexus.SyncGroups(context.Background(), 0)
	require.Error(t, err)
	assert.Equal(t, fault.KindConfig, fault.KindOf(err))
}

func TestUnknownProviderRejected(t *testing.T) {
	cfg := config.Default()
	cfg.StorePath = t.TempDir()
	cfg.AI.Provider = "mystery"

	_, err := New(cfg)
	assert.Error(t, err)
}

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huntred/circle/internal/config"
	"github.com/huntred/circle/internal/lock"
	"github.com/huntred/circle/internal/store"
)

// withConfig installs a default config for the test and restores the
// previous one afterwards.
func withConfig(t *testing.T, mutate func(c *config.Config)) {
	t.Helper()
	prev := cfg
	c := config.Defaults()
	c.Store.Driver = "memory"
	c.Scrape.TargetsFile = filepath.Join(t.TempDir(), "targets.yaml")
	if mutate != nil {
		mutate(c)
	}
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestInitStore_Memory(t *testing.T) {
	withConfig(t, nil)

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	assert.IsType(t, &store.MemoryStore{}, st)
	assert.NoError(t, st.Ping(context.Background()))
}

func TestInitStore_SQLite(t *testing.T) {
	withConfig(t, func(c *config.Config) {
		c.Store.Driver = "sqlite"
		c.Store.DatabaseURL = filepath.Join(t.TempDir(), "circle.db")
	})

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	assert.NoError(t, st.Ping(context.Background()))
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	withConfig(t, func(c *config.Config) { c.Store.Driver = "mongo" })

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitLocker(t *testing.T) {
	withConfig(t, nil)

	l, closeFn, err := initLocker()
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &lock.MemoryLocker{}, l)

	cfg.Lock.Driver = "redis"
	cfg.Lock.RedisAddr = "127.0.0.1:0"
	cfg.Lock.TTLMinutes = 5
	l, closeFn, err = initLocker()
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &lock.RedisLocker{}, l)

	cfg.Lock.Driver = "etcd"
	_, _, err = initLocker()
	assert.Error(t, err)
}

func TestInitCircle_DryRun(t *testing.T) {
	withConfig(t, func(c *config.Config) {
		c.Jina.Key = "jina_test"
		c.ML.UseLLM = false
	})

	env, err := initCircle(context.Background(), envOptions{
		Mode:       "run",
		DryRun:     true,
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Orchestrator)
	assert.NotNil(t, env.Metrics)
	assert.Equal(t, "simulated", cfg.Conversion.Source)

	status, err := env.Orchestrator.Status(context.Background(), "", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Cycles)
}

func TestInitCircle_ValidationFails(t *testing.T) {
	withConfig(t, nil)

	_, err := initCircle(context.Background(), envOptions{Mode: "run"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jina.key is required")
	assert.Contains(t, err.Error(), "salesforce.client_id is required")
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearPoolEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"MCP_RUNTIME_POOL_MIN",
		"MCP_RUNTIME_POOL_MAX",
		"MCP_RUNTIME_POOL_CONNECT_TIMEOUT_MS",
		"MCP_RUNTIME_REGISTRY_INITIAL_CAPACITY",
	}
	for _, v := range vars {
		t.Setenv(v, "")
	}
}

func TestLoadEnvDefaults(t *testing.T) {
	clearPoolEnvVars(t)

	cfg, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Pool.Min)
	assert.Equal(t, 4, cfg.Pool.Max)
	assert.Equal(t, 5000, cfg.Pool.ConnectTimeoutMs)
	assert.Equal(t, 64, cfg.Registry.InitialCapacity)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearPoolEnvVars(t)
	t.Setenv("MCP_RUNTIME_POOL_MIN", "2")
	t.Setenv("MCP_RUNTIME_POOL_MAX", "16")
	t.Setenv("MCP_RUNTIME_REGISTRY_INITIAL_CAPACITY", "256")

	cfg, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Pool.Min)
	assert.Equal(t, 16, cfg.Pool.Max)
	assert.Equal(t, 256, cfg.Registry.InitialCapacity)
}

func TestValidateEnvRejectsNonPositiveMax(t *testing.T) {
	cfg := EnvConfig{Pool: PoolEnvConfig{Max: 0}, Registry: RegistryEnvConfig{InitialCapacity: 1}}
	assert.Error(t, cfg.ValidateEnv())
}

func TestValidateEnvRejectsMinAboveMax(t *testing.T) {
	cfg := EnvConfig{Pool: PoolEnvConfig{Min: 10, Max: 4}, Registry: RegistryEnvConfig{InitialCapacity: 1}}
	assert.Error(t, cfg.ValidateEnv())
}

func TestValidateEnvRejectsNonPositiveRegistryCapacity(t *testing.T) {
	cfg := EnvConfig{Pool: PoolEnvConfig{Max: 4}, Registry: RegistryEnvConfig{InitialCapacity: 0}}
	assert.Error(t, cfg.ValidateEnv())
}

func TestValidateEnvAcceptsDefaults(t *testing.T) {
	cfg := EnvConfig{Pool: PoolEnvConfig{Min: 0, Max: 4, ConnectTimeoutMs: 5000}, Registry: RegistryEnvConfig{InitialCapacity: 64}}
	assert.NoError(t, cfg.ValidateEnv())
}

package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvConfig holds the process-boundary settings read directly from the
// environment rather than through the koanf file/override layering in
// loader.go — the pool and pending-request registry sizing a process is
// started with, which operationally belongs next to the container/unit
// definition rather than a mounted config file.
type EnvConfig struct {
	Pool     PoolEnvConfig     `envPrefix:"MCP_RUNTIME_POOL_"`
	Registry RegistryEnvConfig `envPrefix:"MCP_RUNTIME_REGISTRY_"`
}

// PoolEnvConfig holds the default connection-pool sizing applied to any
// backend or transport record that leaves its own pool fields unset.
type PoolEnvConfig struct {
	Min            int `env:"MIN" envDefault:"0"`
	Max            int `env:"MAX" envDefault:"4"`
	ConnectTimeoutMs int `env:"CONNECT_TIMEOUT_MS" envDefault:"5000"`
}

// RegistryEnvConfig holds the pending-request registry's initial
// capacity, the one piece of its sizing a deployment might want to tune
// without editing the mounted config file.
type RegistryEnvConfig struct {
	InitialCapacity int `env:"INITIAL_CAPACITY" envDefault:"64"`
}

// LoadEnv parses environment variables into EnvConfig.
func LoadEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return EnvConfig{}, fmt.Errorf("parsing env config: %w", err)
	}
	return cfg, nil
}

// ValidateEnv checks that the configuration values are valid.
func (c *EnvConfig) ValidateEnv() error {
	if c.Pool.Max <= 0 {
		return fmt.Errorf("pool max must be positive, got %d", c.Pool.Max)
	}
	if c.Pool.Min < 0 {
		return fmt.Errorf("pool min cannot be negative, got %d", c.Pool.Min)
	}
	if c.Pool.Min > c.Pool.Max {
		return fmt.Errorf("pool min (%d) cannot exceed pool max (%d)", c.Pool.Min, c.Pool.Max)
	}
	if c.Registry.InitialCapacity <= 0 {
		return fmt.Errorf("registry initial capacity must be positive, got %d", c.Registry.InitialCapacity)
	}
	return nil
}

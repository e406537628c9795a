package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, expands, verifies, and validates configuration from a file.
// `${VAR}` references are replaced from the environment before parsing. If a
// .checksums file sits next to the config, the file hash is verified against
// it before the config is trusted.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if err := verifyChecksum(absPath); err != nil {
		return nil, err
	}

	expanded := expandEnv(data)

	cfg := Defaults()
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", absPath, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// expandEnv substitutes ${VAR} references. Unset variables expand to empty,
// so required secrets surface during validation rather than as stray tokens.
func expandEnv(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func validate(cfg *Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service.name is empty")
	}

	if cfg.Store.Capacity < 0 {
		return fmt.Errorf("store.capacity must not be negative, got %d", cfg.Store.Capacity)
	}

	switch cfg.Relay.Transport {
	case TransportConsole, TransportPipe:
	case TransportRedis:
		if cfg.Relay.Redis.Addr == "" {
			return fmt.Errorf("relay.redis.addr is required for the redis transport")
		}
		if cfg.Relay.Redis.Channel == "" {
			return fmt.Errorf("relay.redis.channel is required for the redis transport")
		}
	default:
		return fmt.Errorf("relay.transport must be one of console, pipe, redis; got %q", cfg.Relay.Transport)
	}

	if cfg.API.Enabled && cfg.API.Listen == "" {
		return fmt.Errorf("api.listen is required when api.enabled is true")
	}

	return nil
}

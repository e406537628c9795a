// Package config loads and validates the relaybus YAML configuration.
package config

// Config represents the complete relaybus configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Store   StoreConfig   `yaml:"store"`
	Relay   RelayConfig   `yaml:"relay"`
	API     APIConfig     `yaml:"api,omitempty"`
}

// ServiceConfig defines core process settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	PidFile   string `yaml:"pid_file,omitempty"`
}

// StoreConfig defines log store settings.
type StoreConfig struct {
	Capacity int `yaml:"capacity"`
}

// Transport selects how commands cross the process boundary.
const (
	TransportConsole = "console"
	TransportPipe    = "pipe"
	TransportRedis   = "redis"
)

// RelayConfig defines the outbound command channel.
type RelayConfig struct {
	Transport string      `yaml:"transport"`
	Redis     RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig defines the redis pub/sub transport.
type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key,omitempty"`
}

// Defaults returns a Config with sensible defaults: console relay (no peer
// required), default store capacity, API off.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "relaybus",
			LogLevel:  "INFO",
			LogFormat: "text",
		},
		Store: StoreConfig{
			Capacity: 10000,
		},
		Relay: RelayConfig{
			Transport: TransportConsole,
			Redis: RedisConfig{
				Addr:    "127.0.0.1:6379",
				Channel: "relaybus.commands",
			},
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8640",
		},
	}
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/tiancaiamao/hostbridge/pkg/framing"
	"github.com/tiancaiamao/hostbridge/pkg/logger"
)

// EnvPrefix prefixes every environment override, e.g. HOSTBRIDGE_HOST_PORT.
const EnvPrefix = "HOSTBRIDGE_"

// Config represents the application configuration.
type Config struct {
	// Simulated host and its command server
	Host HostConfig `json:"host" yaml:"host" envPrefix:"HOST_"`

	// HTTP relay in front of the command server
	Relay RelayConfig `json:"relay" yaml:"relay" envPrefix:"RELAY_"`

	// MCP agent surface
	MCP MCPConfig `json:"mcp" yaml:"mcp" envPrefix:"MCP_"`

	// Tracing
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry" envPrefix:"TELEMETRY_"`

	// Logging configuration
	Log *LogConfig `json:"log,omitempty" yaml:"log,omitempty" envPrefix:"LOG_"`
}

// HostConfig configures the simulated host application.
type HostConfig struct {
	Address      string `json:"address" yaml:"address" env:"ADDRESS"`
	Port         int    `json:"port" yaml:"port" env:"PORT"`
	Framing      string `json:"framing" yaml:"framing" env:"FRAMING"` // brace or depth
	AutoStart    bool   `json:"autoStart" yaml:"autoStart" env:"AUTO_START"`
	UsePolyHaven bool   `json:"usePolyhaven" yaml:"usePolyhaven" env:"USE_POLYHAVEN"`
	UseHyper3D   bool   `json:"useHyper3d" yaml:"useHyper3d" env:"USE_HYPER3D"`
	Hyper3DKey   string `json:"hyper3dKey,omitempty" yaml:"hyper3dKey,omitempty" env:"HYPER3D_KEY"`
	PolyHavenURL string `json:"polyhavenUrl,omitempty" yaml:"polyhavenUrl,omitempty" env:"POLYHAVEN_URL"`
	TickMillis   int    `json:"tickMs" yaml:"tickMs" env:"TICK_MS"`
	// Lua instructions a single execute_code call may run; 0 means no limit.
	ScriptLimit int `json:"scriptLimit" yaml:"scriptLimit" env:"SCRIPT_LIMIT"`
}

// RelayConfig configures the HTTP relay.
type RelayConfig struct {
	Listen      string `json:"listen" yaml:"listen" env:"LISTEN"`
	HostAddress string `json:"hostAddress" yaml:"hostAddress" env:"HOST_ADDRESS"`
	Framing     string `json:"framing" yaml:"framing" env:"FRAMING"`
	Timeout     int    `json:"timeout" yaml:"timeout" env:"TIMEOUT"` // round trip, in seconds
}

// MCPConfig configures the MCP bridge.
type MCPConfig struct {
	RelayURL string `json:"relayUrl" yaml:"relayUrl" env:"RELAY_URL"`
	Retries  int    `json:"retries" yaml:"retries" env:"RETRIES"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Endpoint    string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" env:"ENDPOINT"`
	Insecure    bool   `json:"insecure,omitempty" yaml:"insecure,omitempty" env:"INSECURE"`
	ServiceName string `json:"serviceName,omitempty" yaml:"serviceName,omitempty" env:"SERVICE_NAME"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty" env:"LEVEL"`    // Log level: debug, info, warn, error
	File   string `json:"file,omitempty" yaml:"file,omitempty" env:"FILE"`       // Log file path (empty = no file logging)
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty" env:"PREFIX"` // Log prefix
}

// DefaultHostConfig returns default host configuration.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		Address:     "localhost",
		Port:        9876,
		Framing:     "brace",
		TickMillis:  10,
		ScriptLimit: 50_000_000,
	}
}

// DefaultRelayConfig returns default relay configuration.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Listen:      "localhost:5000",
		HostAddress: "localhost:9876",
		Framing:     "brace",
		Timeout:     20,
	}
}

// DefaultMCPConfig returns default MCP configuration.
func DefaultMCPConfig() MCPConfig {
	return MCPConfig{
		RelayURL: "http://localhost:5000",
		Retries:  2,
	}
}

// DefaultTelemetryConfig returns default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Endpoint:    "localhost:4318",
		Insecure:    true,
		ServiceName: "hostbridge",
	}
}

// DefaultLogConfig returns default logging configuration.
func DefaultLogConfig() *LogConfig {
	homeDir, _ := os.UserHomeDir()
	return &LogConfig{
		Level:  "info",
		File:   filepath.Join(homeDir, ".hostbridge", "hostbridge.log"),
		Prefix: "[hostbridge] ",
	}
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Host:      DefaultHostConfig(),
		Relay:     DefaultRelayConfig(),
		MCP:       DefaultMCPConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Log:       DefaultLogConfig(),
	}
}

// CreateLogger creates a logger from the log configuration.
func (c *LogConfig) CreateLogger() (*logger.Logger, error) {
	if c == nil {
		c = DefaultLogConfig()
	}

	cfg := &logger.Config{
		Level:    logger.ParseLogLevel(c.Level),
		Prefix:   c.Prefix,
		Console:  true,
		File:     c.File != "",
		FilePath: c.File,
	}

	return logger.NewLogger(cfg)
}

// LoadConfig loads configuration from file and merges with environment variables.
// Environment variables take precedence over config file values. A missing
// file is not an error. Files ending in .yaml or .yml are YAML; anything
// else is JSON, with comments and trailing commas allowed.
func LoadConfig(configPath string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(configPath, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}
	if cfg.Log == nil {
		cfg.Log = DefaultLogConfig()
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Host.Hyper3DKey == "" {
		if key, err := ResolveAPIKey("hyper3d"); err == nil {
			cfg.Host.Hyper3DKey = key
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func decode(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, cfg)
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(standardized, cfg)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Host.Port < 0 || c.Host.Port > 65535 {
		return fmt.Errorf("host.port out of range: %d", c.Host.Port)
	}
	if _, err := framing.ByName(c.Host.Framing); err != nil {
		return fmt.Errorf("host.framing: %w", err)
	}
	if _, err := framing.ByName(c.Relay.Framing); err != nil {
		return fmt.Errorf("relay.framing: %w", err)
	}
	if c.Relay.Timeout <= 0 {
		return fmt.Errorf("relay.timeout must be positive, got %d", c.Relay.Timeout)
	}
	if c.MCP.Retries < 0 {
		return fmt.Errorf("mcp.retries must not be negative, got %d", c.MCP.Retries)
	}
	return nil
}

// SaveConfig saves configuration to file, as YAML or indented JSON
// depending on the extension.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(configPath) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPath returns the default config file path.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, ".hostbridge", "config.json"), nil
}

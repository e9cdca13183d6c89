// ABOUTME: Configuration loading and parsing for ticketd
// ABOUTME: Supports YAML files with environment variable expansion and env overrides

package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the complete ticketd configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// WebDir is where index.html is served from. Defaults to the data
	// directory when empty.
	WebDir string `yaml:"web_dir"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	// Driver is "sqlite" or "file"
	Driver  string `yaml:"driver"`
	DataDir string `yaml:"data_dir"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// envOverrides are process-environment values that win over file values
type envOverrides struct {
	Addr    string `envconfig:"ADDR"`
	DataDir string `envconfig:"DATA_DIR"`
	Driver  string `envconfig:"DRIVER"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Addr: ":8080"},
		Storage: StorageConfig{Driver: "sqlite"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A missing file is not an error; defaults are used instead. Environment
// variables in the format ${VAR_NAME} are expanded inside the file, and
// TICKETD_ADDR, TICKETD_DATA_DIR and TICKETD_DRIVER override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err == nil {
		// Expand environment variables in the raw YAML content
		expandedData := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("reading environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnvOverrides layers TICKETD_* environment variables on top of cfg
func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("ticketd", &env); err != nil {
		return err
	}
	if env.Addr != "" {
		cfg.Server.Addr = env.Addr
	}
	if env.DataDir != "" {
		cfg.Storage.DataDir = env.DataDir
	}
	if env.Driver != "" {
		cfg.Storage.Driver = env.Driver
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Storage.Driver {
	case "sqlite", "file":
	default:
		return fmt.Errorf("storage.driver must be \"sqlite\" or \"file\", got %q", c.Storage.Driver)
	}

	return nil
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level foyer configuration file.
type YAMLConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	SFU      SFUConfig      `yaml:"sfu"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	ShutdownTimeout string     `yaml:"shutdown_timeout"`
	CORS            CORSConfig `yaml:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// AuthConfig controls authentication settings. AdminPassword seeds the
// admin credential at startup when the store has none yet; leave it empty
// to let the first login fix the password instead.
type AuthConfig struct {
	AdminPassword string `yaml:"admin_password"`
	APIKeyHeader  string `yaml:"api_key_header"`
}

// SFUConfig points Foyer at the external media server and carries the
// key pair used to mint join tokens in its access-token format.
type SFUConfig struct {
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

// DispatchConfig sizes the webhook delivery worker pool.
type DispatchConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	var cfg YAMLConfig
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST", "PUT", "DELETE"},
			},
		},
		Auth: AuthConfig{
			APIKeyHeader: "X-API-Key",
		},
		SFU: SFUConfig{
			URL: "http://localhost:7880",
		},
		Dispatch: DispatchConfig{
			Workers:   4,
			QueueSize: 256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Package config provides configuration management for the workspace
// execution service.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds listen-address configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// WorkspaceConfig holds the bounded directory and listing behavior.
type WorkspaceConfig struct {
	Root          string   `yaml:"root"`
	FileLister    string   `yaml:"file_lister"` // external fast-path binary, e.g. "rg"
	ExtraExcluded []string `yaml:"extra_excluded"`
}

// RuntimeConfig holds shell-session runtime configuration.
type RuntimeConfig struct {
	Backend         string   `yaml:"backend"` // "pty" or "docker"
	Shell           string   `yaml:"shell"`
	DefaultTimeout  string   `yaml:"default_timeout"`
	MaxTimeout      string   `yaml:"max_timeout"`
	StreamChunk     int      `yaml:"stream_chunk_bytes"`
	StreamLimit     int      `yaml:"stream_buffer_bytes"`
	StderrFilter    []string `yaml:"stderr_filter"`
	RestartTriggers []string `yaml:"restart_triggers"`

	// Docker-only settings, used when Backend == "docker".
	DockerContainer string `yaml:"docker_container"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: ":8080",
		},
		Workspace: WorkspaceConfig{
			Root:       "",
			FileLister: "rg",
		},
		Runtime: RuntimeConfig{
			Backend:        "pty",
			Shell:          "/bin/bash",
			DefaultTimeout: "10s",
			MaxTimeout:     "10m",
			StreamChunk:    256,
			StreamLimit:    3 * 1024 * 1024,
			StderrFilter: []string{
				"failed to connect to the bus",
				"failed to call method",
				"viz_main_impl",
				"object_proxy",
				"dbus",
				"setting up watches",
				"watches established",
				"bash: cannot set terminal process group",
				"bash: no job control in this shell",
			},
			RestartTriggers: []string{
				"not a tty",
				"wait: no child processes",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file, overlaying it onto defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads configuration from a file, or returns default if the
// path is empty or the file doesn't exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// GetDefaultTimeout returns the default run timeout as a time.Duration.
func (c *RuntimeConfig) GetDefaultTimeout() time.Duration {
	d, err := time.ParseDuration(c.DefaultTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetMaxTimeout returns the configurable timeout ceiling as a time.Duration.
func (c *RuntimeConfig) GetMaxTimeout() time.Duration {
	d, err := time.ParseDuration(c.MaxTimeout)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// ResolvedWorkspaceRoot returns the configured workspace root, falling
// back to the process's current working directory if unset.
func (c *WorkspaceConfig) ResolvedWorkspaceRoot() (string, error) {
	if c.Root != "" {
		return c.Root, nil
	}
	return os.Getwd()
}

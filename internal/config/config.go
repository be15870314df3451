// Package config loads the server configuration from a YAML file and
// applies defaults for anything left unset.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig       `yaml:"server"`
	Database  DatabaseConfig     `yaml:"database"`
	Store     StoreConfig        `yaml:"store"`
	Execution ExecutionConfig    `yaml:"execution"`
	Auth      AuthConfig         `yaml:"auth"`
	Security  SecurityConfig     `yaml:"security"`
	Hosts     map[string]SSHHost `yaml:"hosts"`
}

type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	PathPrefix string `yaml:"path_prefix"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StoreConfig locates the two template store layers. The builtin layer is
// read-only and ships with the deployer; the local layer is writable and
// shadows the builtin one.
type StoreConfig struct {
	BuiltinDir string `yaml:"builtin_dir"`
	LocalDir   string `yaml:"local_dir"`
}

type ExecutionConfig struct {
	CommandTimeout int    `yaml:"command_timeout"`
	MaxTimeout     int    `yaml:"max_timeout"`
	ProbeAttempts  int    `yaml:"probe_attempts"`
	ProbeDelay     string `yaml:"probe_delay"`
	MaxOutputSize  int    `yaml:"max_output_size"`
}

type AuthConfig struct {
	APIToken string `yaml:"api_token"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

// SSHHost describes a named remote execution host for "host:<name>"
// command targets.
type SSHHost struct {
	Address string `yaml:"address"`
	User    string `yaml:"user"`
	KeyFile string `yaml:"key_file"`
}

// GetProbeDelay parses the inter-attempt delay for bounded probe loops.
func (c *ExecutionConfig) GetProbeDelay() time.Duration {
	d, err := time.ParseDuration(c.ProbeDelay)
	if err != nil {
		return time.Second
	}
	return d
}

func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	setDefaults(&cfg)

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.PathPrefix == "" {
		cfg.Server.PathPrefix = "/deployer"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/deployer.db"
	}
	if cfg.Store.BuiltinDir == "" {
		cfg.Store.BuiltinDir = "/usr/share/lxc-deployer/json"
	}
	if cfg.Store.LocalDir == "" {
		cfg.Store.LocalDir = "/var/lib/lxc-deployer/json"
	}
	if cfg.Execution.CommandTimeout == 0 {
		cfg.Execution.CommandTimeout = 300
	}
	if cfg.Execution.MaxTimeout == 0 {
		cfg.Execution.MaxTimeout = 3600
	}
	if cfg.Execution.ProbeAttempts == 0 {
		cfg.Execution.ProbeAttempts = 60
	}
	if cfg.Execution.ProbeDelay == "" {
		cfg.Execution.ProbeDelay = "1s"
	}
	if cfg.Execution.MaxOutputSize == 0 {
		cfg.Execution.MaxOutputSize = 10485760
	}
}

// Package config handles agent configuration: built-in defaults, an
// optional YAML file, and environment overrides, applied in that order.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/acmattson3/mqtt-shell/internal/protocol"
)

// Environment variable names shared by the agent and client binaries.
const (
	EnvBrokerHost        = "MQTT_HOST"
	EnvBrokerPort        = "MQTT_PORT"
	EnvBrokerUser        = "MQTT_USER"
	EnvBrokerUserAlt     = "MQTT_USERNAME"
	EnvBrokerPassword    = "MQTT_PASS"
	EnvBrokerPasswordAlt = "MQTT_PASSWORD"
	EnvSessionID         = "MQTT_ID"
	EnvAgentSecret       = "MQTT_AGENT_PASSWORD"
	EnvAgentSecretAlt    = "AGENT_PASSWORD"
	EnvConfigPath        = "MQTT_SHELL_CONFIG"
)

// DefaultConfigPath returns the default agent config file path:
// $XDG_CONFIG_HOME/mqtt-shell/agent.yaml or ~/.config/mqtt-shell/agent.yaml
func DefaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "mqtt-shell", "agent.yaml")
}

// Agent represents the agent's top-level configuration.
type Agent struct {
	Broker  BrokerConfig  `yaml:"broker"`
	Session SessionConfig `yaml:"session"`
	Auth    AuthConfig    `yaml:"auth"`
	Shell   ShellConfig   `yaml:"shell"`
	Logging LoggingConfig `yaml:"logging"`
}

// BrokerConfig defines the MQTT broker connection.
type BrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// URL returns the broker address as a tcp:// URL.
func (b BrokerConfig) URL() string {
	return "tcp://" + net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// SessionConfig names this agent on the broker.
type SessionConfig struct {
	ID string `yaml:"id"`
}

// AuthConfig defines how clients authenticate to the agent.
type AuthConfig struct {
	Secret          string        `yaml:"secret"`           // shared secret clients must present
	MaxFailures     int           `yaml:"max_failures"`     // failed attempts before lockout (0 = no lockout)
	LockoutDuration time.Duration `yaml:"lockout_duration"` // how long a lockout lasts
}

// ShellConfig defines how the agent spawns the shell.
type ShellConfig struct {
	Path    string   `yaml:"path"`     // custom shell path (overrides $SHELL detection)
	Login   bool     `yaml:"login"`    // spawn as a login shell
	Term    string   `yaml:"term"`     // TERM for the spawned shell
	Rows    uint16   `yaml:"rows"`     // initial window rows
	Cols    uint16   `yaml:"cols"`     // initial window columns
	Dir     string   `yaml:"dir"`      // working directory ("" = agent's cwd)
	EnvDeny []string `yaml:"env_deny"` // extra env glob patterns to strip
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // "debug", "info", "warn", "error"
	Sanitize bool   `yaml:"sanitize"` // sanitize sensitive data from logs
}

// DefaultAgent returns the default agent configuration.
func DefaultAgent() *Agent {
	return &Agent{
		Broker: BrokerConfig{
			Port: 1883,
		},
		Shell: ShellConfig{
			Login: true,
			Term:  "xterm-256color",
			Rows:  24,
			Cols:  80,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Sanitize: true,
		},
	}
}

// Load builds the agent configuration from the YAML file at path, layered
// over defaults, with environment variables applied last. A missing file is
// not an error; the agent can run on environment alone.
func Load(path string) (*Agent, error) {
	cfg := DefaultAgent()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables. Environment
// wins so a deployment can pin the broker without editing the file.
func (c *Agent) applyEnv() error {
	if v := os.Getenv(EnvBrokerHost); v != "" {
		c.Broker.Host = v
	}
	if v := os.Getenv(EnvBrokerPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvBrokerPort, err)
		}
		c.Broker.Port = port
	}
	if v := FirstEnv(EnvBrokerUser, EnvBrokerUserAlt); v != "" {
		c.Broker.Username = v
	}
	if v := FirstEnv(EnvBrokerPassword, EnvBrokerPasswordAlt); v != "" {
		c.Broker.Password = v
	}
	if v := os.Getenv(EnvSessionID); v != "" {
		c.Session.ID = v
	}
	if v := FirstEnv(EnvAgentSecret, EnvAgentSecretAlt); v != "" {
		c.Auth.Secret = v
	}
	return nil
}

// FirstEnv returns the value of the first variable in names that is set to
// a non-empty string.
func FirstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks required fields and fills derived defaults.
func (c *Agent) Validate() error {
	if c.Broker.Host == "" {
		return fmt.Errorf("broker host is required (set %s)", EnvBrokerHost)
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		return fmt.Errorf("broker port %d out of range", c.Broker.Port)
	}
	if c.Broker.Username == "" {
		return fmt.Errorf("broker username is required (set %s)", EnvBrokerUser)
	}
	if c.Broker.Password == "" {
		return fmt.Errorf("broker password is required (set %s)", EnvBrokerPassword)
	}
	if err := protocol.ValidateSessionID(c.Session.ID); err != nil {
		return fmt.Errorf("session id: %w", err)
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("agent secret is required (set %s or auth.secret)", EnvAgentSecret)
	}

	if c.Auth.MaxFailures < 0 {
		c.Auth.MaxFailures = 0
	}
	if c.Auth.MaxFailures > 0 && c.Auth.LockoutDuration <= 0 {
		c.Auth.LockoutDuration = 30 * time.Second
	}
	if c.Shell.Term == "" {
		c.Shell.Term = "xterm-256color"
	}
	if c.Shell.Rows == 0 {
		c.Shell.Rows = 24
	}
	if c.Shell.Cols == 0 {
		c.Shell.Cols = 80
	}

	return nil
}

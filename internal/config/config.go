package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Database drivers.
const (
	DriverValkey = "valkey"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Built-in post-tick hooks.
const (
	HookMetrics = "metrics"
	HookNATS    = "nats"
)

// Config holds the credits service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	NATS     NATSConfig     `yaml:"nats"`
	Auth     AuthConfig     `yaml:"auth"`
	Credits  CreditsConfig  `yaml:"credits"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	Tokens []TokenConfig `yaml:"tokens"`
}

// TokenConfig binds a bearer token to a user.
type TokenConfig struct {
	Token string `yaml:"token"`
	User  string `yaml:"user"`
	Admin bool   `yaml:"admin"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis, sqlite (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	Path             string   `yaml:"path"` // sqlite file, ":memory:" for tests
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// NATSConfig holds the lease bus connection. An empty URL disables the bus.
type NATSConfig struct {
	URL              string `yaml:"url"`
	Name             string `yaml:"name"`
	Token            string `yaml:"token"`
	SubjectPrefix    string `yaml:"subject_prefix"`
	ReconnectWaitSec int    `yaml:"reconnect_wait_sec"`
}

// Enabled reports whether a NATS URL is configured.
func (n NATSConfig) Enabled() bool { return n.URL != "" }

// CreditsConfig holds the reconciliation settings.
type CreditsConfig struct {
	Enabled           bool        `yaml:"enabled"`
	TaskIntervalSec   int         `yaml:"task_interval_sec"`
	StopTimeoutSec    int         `yaml:"stop_timeout_sec"`
	UserCap           ParamConfig `yaml:"user_cap"`
	UserGrantValue    ParamConfig `yaml:"user_grant_value"`
	UserGrantInterval ParamConfig `yaml:"user_grant_interval"`
	PostHooks         []string    `yaml:"post_hooks"`
}

// ParamConfig is a per-user parameter: a default plus ordered first-match rules.
type ParamConfig struct {
	Default *int64       `yaml:"default"`
	Rules   []RuleConfig `yaml:"rules"`
}

// RuleConfig overrides a parameter for matching users.
type RuleConfig struct {
	Users  []string `yaml:"users"`
	Groups []string `yaml:"groups"`
	Admin  *bool    `yaml:"admin"`
	Value  int64    `yaml:"value"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands environment variables, decodes, defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverValkey
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "credits:"
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "credits"
	}
	if c.NATS.Name == "" {
		c.NATS.Name = "credits"
	}
	if c.NATS.ReconnectWaitSec <= 0 {
		c.NATS.ReconnectWaitSec = 2
	}
	if c.Credits.TaskIntervalSec <= 0 {
		c.Credits.TaskIntervalSec = 60
	}
	if c.Credits.StopTimeoutSec <= 0 {
		c.Credits.StopTimeoutSec = 30
	}
	setDefault(&c.Credits.UserCap, 100)
	setDefault(&c.Credits.UserGrantValue, 10)
	setDefault(&c.Credits.UserGrantInterval, 600)
}

func setDefault(p *ParamConfig, v int64) {
	if p.Default == nil {
		p.Default = &v
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Database.Driver {
	case DriverValkey, DriverRedis:
		if len(c.Database.Addrs) == 0 {
			return errors.New("database.addrs is required")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	default:
		return fmt.Errorf("database.driver must be valkey, redis or sqlite, got %q", c.Database.Driver)
	}

	if err := validateParam("credits.user_cap", c.Credits.UserCap, 0); err != nil {
		return err
	}
	if err := validateParam("credits.user_grant_value", c.Credits.UserGrantValue, 0); err != nil {
		return err
	}
	if err := validateParam("credits.user_grant_interval", c.Credits.UserGrantInterval, 1); err != nil {
		return err
	}

	for _, h := range c.Credits.PostHooks {
		switch h {
		case HookMetrics:
		case HookNATS:
			if !c.NATS.Enabled() {
				return errors.New("credits.post_hooks: nats hook requires nats.url")
			}
		default:
			return fmt.Errorf("credits.post_hooks: unknown hook %q", h)
		}
	}

	seen := make(map[string]struct{}, len(c.Auth.Tokens))
	for i, t := range c.Auth.Tokens {
		if t.Token == "" || t.User == "" {
			return fmt.Errorf("auth.tokens[%d]: token and user are required", i)
		}
		if _, dup := seen[t.Token]; dup {
			return fmt.Errorf("auth.tokens[%d]: duplicate token", i)
		}
		seen[t.Token] = struct{}{}
	}
	return nil
}

func validateParam(name string, p ParamConfig, lowest int64) error {
	if p.Default != nil && *p.Default < lowest {
		return fmt.Errorf("%s.default must be >= %d, got %d", name, lowest, *p.Default)
	}
	for i, r := range p.Rules {
		if r.Value < lowest {
			return fmt.Errorf("%s.rules[%d].value must be >= %d, got %d", name, i, lowest, r.Value)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// Relative to the source file, for tests run from package directories.
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/devsrv/internal/logger"
)

// Restart log policies.
const (
	LogAppend = "append"
	LogClear  = "clear"
)

// Config is the daemon configuration.
type Config struct {
	Supervisor SupervisorConfig    `mapstructure:"supervisor"`
	Registry   RegistryConfig      `mapstructure:"registry"`
	Output     logger.OutputConfig `mapstructure:"output"`
	Log        logger.Config       `mapstructure:"log"`
	Server     ServerConfig        `mapstructure:"server"`
	Metrics    MetricsConfig       `mapstructure:"metrics"`
	History    HistoryConfig       `mapstructure:"history"`

	// Env and EnvFiles are extra environment passed to every server.
	Env      []string `mapstructure:"env"`
	EnvFiles []string `mapstructure:"env_files"`
}

type SupervisorConfig struct {
	MaxRestarts    int           `mapstructure:"max_restarts"`
	RestartBackoff time.Duration `mapstructure:"restart_backoff"`
	GraceTimeout   time.Duration `mapstructure:"grace_timeout"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	LogLines       int           `mapstructure:"log_lines"`
	LogOnRestart   string        `mapstructure:"log_on_restart"`
	ServersDir     string        `mapstructure:"servers_dir"`
	ReloadOnChange bool          `mapstructure:"reload_on_change"`
	Python         string        `mapstructure:"python"`
	Node           string        `mapstructure:"node"`
}

type RegistryConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

// HistoryConfig lists run history sinks by DSN: sqlite path, postgres://,
// clickhouse:// or opensearch://.
type HistoryConfig struct {
	Sinks []string `mapstructure:"sinks"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("supervisor.max_restarts", 3)
	v.SetDefault("supervisor.restart_backoff", time.Second)
	v.SetDefault("supervisor.grace_timeout", 5*time.Second)
	v.SetDefault("supervisor.sample_interval", 2*time.Second)
	v.SetDefault("supervisor.log_lines", 1000)
	v.SetDefault("supervisor.log_on_restart", LogAppend)
	v.SetDefault("supervisor.servers_dir", "servers")
	v.SetDefault("supervisor.reload_on_change", false)
	v.SetDefault("supervisor.python", "python3")
	v.SetDefault("supervisor.node", "node")

	v.SetDefault("registry.dsn", "servers.json")

	v.SetDefault("output.dir", "")
	v.SetDefault("output.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("output.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("output.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("output.compress", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logger.FormatColor)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)

	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.base_path", "/api")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "")

	v.SetDefault("history.sinks", []string{})

	v.SetDefault("env", []string{})
	v.SetDefault("env_files", []string{})
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c, _ := Load("")
	return c
}

// Load reads the config file at path (TOML, YAML or JSON by extension;
// TOML when there is no extension) over the defaults. An empty path only
// applies defaults and DEVSRV_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("DEVSRV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType(path))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return "toml"
	}
}

// Validate rejects settings the supervisor cannot run with.
func (c *Config) Validate() error {
	s := c.Supervisor
	var errs []error
	if s.MaxRestarts < 0 {
		errs = append(errs, fmt.Errorf("supervisor.max_restarts must be >= 0, got %d", s.MaxRestarts))
	}
	if s.RestartBackoff < 0 {
		errs = append(errs, fmt.Errorf("supervisor.restart_backoff must be >= 0, got %s", s.RestartBackoff))
	}
	if s.GraceTimeout < 0 {
		errs = append(errs, fmt.Errorf("supervisor.grace_timeout must be >= 0, got %s", s.GraceTimeout))
	}
	if s.SampleInterval < 0 {
		errs = append(errs, fmt.Errorf("supervisor.sample_interval must be >= 0, got %s", s.SampleInterval))
	}
	if s.LogLines < 0 {
		errs = append(errs, fmt.Errorf("supervisor.log_lines must be >= 0, got %d", s.LogLines))
	}
	switch s.LogOnRestart {
	case "", LogAppend, LogClear:
	default:
		errs = append(errs, fmt.Errorf("supervisor.log_on_restart must be %q or %q, got %q", LogAppend, LogClear, s.LogOnRestart))
	}
	for i, d := range c.History.Sinks {
		if strings.TrimSpace(d) == "" {
			errs = append(errs, fmt.Errorf("history.sinks[%d] is empty", i))
		}
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ServerEnv returns the extra environment for spawned servers: env_files
// in order, then env entries, later keys overriding earlier ones.
func (c *Config) ServerEnv() ([]string, error) {
	m := make(map[string]string)
	var order []string
	set := func(k, v string) {
		if _, ok := m[k]; !ok {
			order = append(order, k)
		}
		m[k] = v
	}
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for _, kv := range pairs {
			set(kv[0], kv[1])
		}
	}
	for _, kv := range c.Env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			set(kv[:i], kv[i+1:])
		}
	}
	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+m[k])
	}
	return out, nil
}

// loadEnvFile parses KEY=VALUE lines, skipping blanks and # comments.
func loadEnvFile(path string) ([][2]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	var out [][2]string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.Trim(strings.TrimSpace(line[i+1:]), `"`)
			out = append(out, [2]string{k, v})
		}
	}
	return out, nil
}

// Package config loads the flat YAML configuration in §6: scheduler,
// session, server, logging, and monitor settings, with DOCWATCH_ environment
// variable overrides. The load path (ExpandEnv over file bytes, then a
// KnownFields yaml.Decoder) follows the teacher's internal/config/loader.go.
package config

import (
	"bytes"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jcjorel/docwatch-mcp/internal/corekind"
)

// Config is the top-level configuration structure.
type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Session   SessionConfig   `yaml:"session"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

// SchedulerConfig configures the debounce queue and worker pool (§4.C, §4.D).
type SchedulerConfig struct {
	Enabled         bool    `yaml:"enabled"`
	DelaySeconds    float64 `yaml:"delay_seconds"`
	MaxDelaySeconds float64 `yaml:"max_delay_seconds"`
	WorkerThreads   int     `yaml:"worker_threads"`
	BatchSize       int     `yaml:"batch_size"`
	StatusHistory   int     `yaml:"status_history"`
}

// SessionConfig configures the MCP session store (§4.I).
type SessionConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// ServerConfig configures the HTTP carrier (§6).
type ServerConfig struct {
	ListenAddr          string `yaml:"listen_addr"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MonitorConfig configures the filesystem change source (§4.N).
type MonitorConfig struct {
	Root        string   `yaml:"root"`
	IgnoreGlobs []string `yaml:"ignore_globs"`
}

// Defaults returns the config with every default from §6 applied.
func Defaults() Config {
	return Config{
		Scheduler: SchedulerConfig{
			Enabled:         true,
			DelaySeconds:    10.0,
			MaxDelaySeconds: 120.0,
			WorkerThreads:   runtime.NumCPU(),
			BatchSize:       16,
			StatusHistory:   100,
		},
		Session: SessionConfig{TimeoutSeconds: 3600},
		Server: ServerConfig{
			ListenAddr:          ":8420",
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 30,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Monitor: MonitorConfig{Root: "."},
	}
}

// Load reads path, expands environment variables in its text, decodes it
// over the defaults, applies DOCWATCH_* environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, corekind.Wrap(corekind.ConfigInvalid, err, "reading config file %q", path)
		}
		expanded := os.ExpandEnv(string(data))

		decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
			return nil, corekind.Wrap(corekind.ConfigInvalid, err, "parsing config file %q", path)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envOverride is one DOCWATCH_* environment variable mapped onto a config
// field via a setter closure.
type envOverride struct {
	key string
	set func(*Config, string) error
}

var envOverrides = []envOverride{
	{"DOCWATCH_SCHEDULER_ENABLED", func(c *Config, v string) error { return setBool(&c.Scheduler.Enabled, v) }},
	{"DOCWATCH_SCHEDULER_DELAY_SECONDS", func(c *Config, v string) error { return setFloat(&c.Scheduler.DelaySeconds, v) }},
	{"DOCWATCH_SCHEDULER_MAX_DELAY_SECONDS", func(c *Config, v string) error { return setFloat(&c.Scheduler.MaxDelaySeconds, v) }},
	{"DOCWATCH_SCHEDULER_WORKER_THREADS", func(c *Config, v string) error { return setInt(&c.Scheduler.WorkerThreads, v) }},
	{"DOCWATCH_SCHEDULER_BATCH_SIZE", func(c *Config, v string) error { return setInt(&c.Scheduler.BatchSize, v) }},
	{"DOCWATCH_SCHEDULER_STATUS_HISTORY", func(c *Config, v string) error { return setInt(&c.Scheduler.StatusHistory, v) }},
	{"DOCWATCH_SESSION_TIMEOUT_SECONDS", func(c *Config, v string) error { return setInt(&c.Session.TimeoutSeconds, v) }},
	{"DOCWATCH_SERVER_LISTEN_ADDR", func(c *Config, v string) error { c.Server.ListenAddr = v; return nil }},
	{"DOCWATCH_SERVER_READ_TIMEOUT_SECONDS", func(c *Config, v string) error { return setInt(&c.Server.ReadTimeoutSeconds, v) }},
	{"DOCWATCH_SERVER_WRITE_TIMEOUT_SECONDS", func(c *Config, v string) error { return setInt(&c.Server.WriteTimeoutSeconds, v) }},
	{"DOCWATCH_LOGGING_LEVEL", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
	{"DOCWATCH_LOGGING_FORMAT", func(c *Config, v string) error { c.Logging.Format = v; return nil }},
	{"DOCWATCH_MONITOR_ROOT", func(c *Config, v string) error { c.Monitor.Root = v; return nil }},
}

func applyEnvOverrides(cfg *Config) error {
	for _, o := range envOverrides {
		if v, ok := os.LookupEnv(o.key); ok {
			if err := o.set(cfg, v); err != nil {
				return corekind.Wrap(corekind.ConfigInvalid, err, "invalid value for %s", o.key)
			}
		}
	}
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

// validate enforces §6's constraints, returning a single ConfigInvalid
// naming every violation found.
func validate(cfg *Config) error {
	var problems []string

	if cfg.Scheduler.DelaySeconds <= 0 {
		problems = append(problems, "scheduler.delay_seconds must be > 0")
	}
	if cfg.Scheduler.MaxDelaySeconds <= cfg.Scheduler.DelaySeconds {
		problems = append(problems, "scheduler.max_delay_seconds must be > scheduler.delay_seconds")
	}
	if cfg.Scheduler.WorkerThreads < 1 {
		problems = append(problems, "scheduler.worker_threads must be >= 1")
	}
	if cfg.Scheduler.BatchSize < 1 {
		problems = append(problems, "scheduler.batch_size must be >= 1")
	}
	if cfg.Scheduler.StatusHistory < 1 {
		problems = append(problems, "scheduler.status_history must be >= 1")
	}
	if cfg.Server.ListenAddr == "" {
		problems = append(problems, "server.listen_addr must not be empty")
	}

	if len(problems) > 0 {
		return corekind.New(corekind.ConfigInvalid, "invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

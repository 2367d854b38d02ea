// Package config resolves scheduler settings from defaults, an optional YAML
// file, SCHEDULER_* environment variables and command-line flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Storage drivers accepted by StorageDriver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config captures the resolved settings for the scheduler service.
type Config struct {
	HTTPPort        int
	StorageDriver   string
	SQLiteDSN       string
	PostgresDSN     string
	SessionTTL      time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
}

// fileConfig mirrors Config for YAML files; durations use Go syntax ("12h").
type fileConfig struct {
	HTTPPort        *int   `yaml:"http_port"`
	StorageDriver   string `yaml:"storage_driver"`
	SQLiteDSN       string `yaml:"sqlite_dsn"`
	PostgresDSN     string `yaml:"postgres_dsn"`
	SessionTTL      string `yaml:"session_ttl"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		HTTPPort:        8080,
		StorageDriver:   DriverSQLite,
		SQLiteDSN:       "scheduler.db",
		SessionTTL:      24 * time.Hour,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// Load resolves configuration for the given command-line arguments (without
// the program name). Every invalid value is reported in a single error.
// A --help flag yields pflag.ErrHelp.
func Load(args []string) (Config, error) {
	flags := pflag.NewFlagSet("scheduler", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to a YAML configuration file (env SCHEDULER_CONFIG)")
	port := flags.Int("http-port", 0, "HTTP listen port")
	driver := flags.String("storage-driver", "", "storage backend: sqlite, postgres or memory")
	sqliteDSN := flags.String("sqlite-dsn", "", "SQLite database path")
	postgresDSN := flags.String("postgres-dsn", "", "PostgreSQL connection string")
	logLevel := flags.String("log-level", "", "log level: debug, info, warn or error")
	logFormat := flags.String("log-format", "", "log format: json or text")

	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}
	if extra := flags.Args(); len(extra) > 0 {
		return Config{}, fmt.Errorf("unexpected argument: %s", extra[0])
	}

	cfg := Default()
	var problems []error

	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("SCHEDULER_CONFIG"))
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			problems = append(problems, err)
		}
	}

	problems = append(problems, applyEnv(&cfg)...)

	if flags.Changed("http-port") {
		cfg.HTTPPort = *port
	}
	if flags.Changed("storage-driver") {
		cfg.StorageDriver = *driver
	}
	if flags.Changed("sqlite-dsn") {
		cfg.SQLiteDSN = *sqliteDSN
	}
	if flags.Changed("postgres-dsn") {
		cfg.PostgresDSN = *postgresDSN
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = *logFormat
	}

	problems = append(problems, cfg.validate()...)
	if len(problems) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %w", errors.Join(problems...))
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	var problems []error
	if file.HTTPPort != nil {
		cfg.HTTPPort = *file.HTTPPort
	}
	setString(&cfg.StorageDriver, file.StorageDriver)
	setString(&cfg.SQLiteDSN, file.SQLiteDSN)
	setString(&cfg.PostgresDSN, file.PostgresDSN)
	setString(&cfg.LogLevel, file.LogLevel)
	setString(&cfg.LogFormat, file.LogFormat)
	if err := setDuration(&cfg.SessionTTL, file.SessionTTL, "session_ttl"); err != nil {
		problems = append(problems, err)
	}
	if err := setDuration(&cfg.ShutdownTimeout, file.ShutdownTimeout, "shutdown_timeout"); err != nil {
		problems = append(problems, err)
	}
	return errors.Join(problems...)
}

func applyEnv(cfg *Config) []error {
	var problems []error

	if value := env("SCHEDULER_HTTP_PORT"); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil {
			problems = append(problems, fmt.Errorf("SCHEDULER_HTTP_PORT: %q is not a number", value))
		} else {
			cfg.HTTPPort = port
		}
	}
	setString(&cfg.StorageDriver, env("SCHEDULER_STORAGE_DRIVER"))
	setString(&cfg.SQLiteDSN, env("SCHEDULER_SQLITE_DSN"))
	setString(&cfg.PostgresDSN, env("SCHEDULER_POSTGRES_DSN"))
	setString(&cfg.LogLevel, env("SCHEDULER_LOG_LEVEL"))
	setString(&cfg.LogFormat, env("SCHEDULER_LOG_FORMAT"))
	if err := setDuration(&cfg.SessionTTL, env("SCHEDULER_SESSION_TTL"), "SCHEDULER_SESSION_TTL"); err != nil {
		problems = append(problems, err)
	}
	if err := setDuration(&cfg.ShutdownTimeout, env("SCHEDULER_SHUTDOWN_TIMEOUT"), "SCHEDULER_SHUTDOWN_TIMEOUT"); err != nil {
		problems = append(problems, err)
	}
	return problems
}

func (c *Config) validate() []error {
	var problems []error

	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		problems = append(problems, fmt.Errorf("http port %d is out of range", c.HTTPPort))
	}
	switch c.StorageDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.SQLiteDSN) == "" {
			problems = append(problems, errors.New("sqlite dsn is required for the sqlite driver"))
		}
	case DriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			problems = append(problems, errors.New("postgres dsn is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Errorf("unknown storage driver %q", c.StorageDriver))
	}
	if c.SessionTTL <= 0 {
		problems = append(problems, errors.New("session ttl must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		problems = append(problems, errors.New("shutdown timeout must be positive"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		problems = append(problems, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return problems
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.HTTPPort)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

func setDuration(dst *time.Duration, value, name string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %q is not a duration", name, value)
	}
	*dst = d
	return nil
}

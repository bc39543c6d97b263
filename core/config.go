package core

import (
	"strings"
	"time"
)

// Config holds the process-level configuration read from the environment.
// Heuristic thresholds are not here: they live in the policy file (see package
// policy) because they are tuning, not deployment.
type Config struct {
	// HTTP server
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	WebSocketOn     bool

	// Persistence
	DBPath         string
	MigrationsPath string
	RetentionDays  int

	// Policy file (optional)
	PolicyPath  string
	WatchPolicy bool
	// WorkDomains replaces the policy's work_domains when set
	WorkDomains []string

	// Logging
	LogFile  string
	LogLevel string
	DevMode  bool

	// Probe (client side)
	ServerURL    string
	UserID       string
	EmitInterval time.Duration
}

// Defaults for every environment key.
const (
	DefaultHost            = "localhost"
	DefaultPort            = 8090
	DefaultDBPath          = "data/telemetry.db"
	DefaultMigrationsPath  = ""
	DefaultRetentionDays   = 30
	DefaultShutdownSeconds = 30
	DefaultLogFile         = "telemetry.log"
	DefaultServerURL       = "http://localhost:8090"
)

// LoadConfig loads configuration from environment variables, applying the
// defaults above. A .env file should already have been loaded by the caller.
//
// Returns a *ConfigError for values that parse but are out of range.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Host:            GetEnvOrDefault("HTTP_HOST", DefaultHost),
		Port:            ParseIntEnv("HTTP_PORT", DefaultPort),
		ShutdownTimeout: ParseDurationEnv("SHUTDOWN_TIMEOUT_SECONDS", DefaultShutdownSeconds),
		WebSocketOn:     ParseBoolEnv("WS_ENABLED", true),

		DBPath:         GetEnvOrDefault("DB_PATH", DefaultDBPath),
		MigrationsPath: GetEnvOrDefault("MIGRATIONS_PATH", DefaultMigrationsPath),
		RetentionDays:  ParseIntEnv("RETENTION_DAYS", DefaultRetentionDays),

		PolicyPath:  GetEnvOrDefault("POLICY_PATH", ""),
		WatchPolicy: ParseBoolEnv("POLICY_WATCH", true),
		WorkDomains: ParseListEnv("WORK_DOMAINS"),

		LogFile:  GetEnvOrDefault("LOG_FILE", DefaultLogFile),
		LogLevel: GetEnvOrDefault("LOG_LEVEL", ""),
		DevMode:  ParseBoolEnv("DEV_MODE", false),

		ServerURL:    strings.TrimRight(GetEnvOrDefault("SERVER_URL", DefaultServerURL), "/"),
		UserID:       GetEnvOrDefault("PROBE_USER_ID", ""),
		EmitInterval: ParseDurationMsEnv("PROBE_EMIT_INTERVAL_MS", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges. It does not touch the filesystem.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort(c.Port)
	}
	if c.RetentionDays < 1 {
		return ErrInvalidValue("RETENTION_DAYS", "must be at least 1")
	}
	if c.ShutdownTimeout < time.Second {
		return ErrInvalidValue("SHUTDOWN_TIMEOUT_SECONDS", "must be at least 1")
	}
	if c.EmitInterval < 0 {
		return ErrInvalidValue("PROBE_EMIT_INTERVAL_MS", "must not be negative")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return ErrMissingConfig("DB_PATH")
	}
	return nil
}

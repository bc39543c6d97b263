package core

import (
	"errors"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Host != DefaultHost {
		t.Errorf("Host = %q, want %q", cfg.Host, DefaultHost)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.ShutdownTimeout != DefaultShutdownSeconds*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}
	if !cfg.WebSocketOn {
		t.Error("WebSocketOn should default to true")
	}
	if cfg.MigrationsPath != DefaultMigrationsPath {
		t.Errorf("MigrationsPath = %q", cfg.MigrationsPath)
	}
	if cfg.WorkDomains != nil || cfg.EmitInterval != 0 {
		t.Errorf("WorkDomains = %q, EmitInterval = %v; want unset", cfg.WorkDomains, cfg.EmitInterval)
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("SERVER_URL", "http://collector:9100/")
	t.Setenv("RETENTION_DAYS", "7")
	t.Setenv("WORK_DOMAINS", "github.com, jira.example.com,,")
	t.Setenv("PROBE_EMIT_INTERVAL_MS", "250")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.Port)
	}
	if !cfg.DevMode {
		t.Error("DevMode should be true")
	}
	if cfg.ServerURL != "http://collector:9100" {
		t.Errorf("ServerURL = %q, trailing slash should be trimmed", cfg.ServerURL)
	}
	if cfg.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d, want 7", cfg.RetentionDays)
	}
	if len(cfg.WorkDomains) != 2 || cfg.WorkDomains[1] != "jira.example.com" {
		t.Errorf("WorkDomains = %q", cfg.WorkDomains)
	}
	if cfg.EmitInterval != 250*time.Millisecond {
		t.Errorf("EmitInterval = %v, want 250ms", cfg.EmitInterval)
	}
}

func TestLoadConfig_NegativeEmitInterval(t *testing.T) {
	t.Setenv("PROBE_EMIT_INTERVAL_MS", "-5")

	_, err := LoadConfig()
	if GetErrorCode(err) != ErrCodeInvalidValue {
		t.Errorf("LoadConfig() error = %v, want %s", err, ErrCodeInvalidValue)
	}
}

func TestLoadConfig_InvalidPort(t *testing.T) {
	t.Setenv("HTTP_PORT", "70000")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected error for out of range port")
	}
	if GetErrorCode(err) != ErrCodeInvalidPort {
		t.Errorf("error code = %q, want %q", GetErrorCode(err), ErrCodeInvalidPort)
	}
}

func TestConfig_Validate(t *testing.T) {
	base := Config{Port: 8090, RetentionDays: 30, ShutdownTimeout: time.Second, DBPath: "x.db"}

	tests := []struct {
		name   string
		mutate func(c *Config)
		code   string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero retention", func(c *Config) { c.RetentionDays = 0 }, ErrCodeInvalidValue},
		{"short shutdown", func(c *Config) { c.ShutdownTimeout = 10 * time.Millisecond }, ErrCodeInvalidValue},
		{"blank db path", func(c *Config) { c.DBPath = "  " }, ErrCodeMissingConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if got := GetErrorCode(err); got != tt.code {
				t.Errorf("Validate() code = %q, want %q (err=%v)", got, tt.code, err)
			}
		})
	}
}

func TestIsConfigError_Wrapped(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), ErrPolicyUnreadable("policy.yaml", "bad yaml"))

	cfgErr, ok := IsConfigError(wrapped)
	if !ok {
		t.Fatal("IsConfigError should see through wrapping")
	}
	if cfgErr.Code != ErrCodePolicyUnreadable {
		t.Errorf("Code = %q", cfgErr.Code)
	}
	if cfgErr.Error() == "" {
		t.Error("Error() should not be empty")
	}
}

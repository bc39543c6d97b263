package main

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"cognitive_backend/agent"
	"cognitive_backend/core"
	"cognitive_backend/policy"
	"cognitive_backend/shutdown"
	"cognitive_backend/webapi"
)

func runArgs(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"--env-file", ""}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// testConfig points every path into a temp dir.
func testConfig(t *testing.T) *core.Config {
	t.Helper()
	dir := t.TempDir()
	return &core.Config{
		Host:            "127.0.0.1",
		Port:            0,
		ShutdownTimeout: 5 * time.Second,
		WebSocketOn:     true,
		DBPath:          filepath.Join(dir, "telemetry.db"),
		RetentionDays:   30,
		ServerURL:       core.DefaultServerURL,
	}
}

func TestRun_Version(t *testing.T) {
	code, out, _ := runArgs(t, "version")
	if code != core.ExitCodeSuccess {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out, core.GetVersion()) {
		t.Errorf("output = %q", out)
	}
}

func TestRun_ExitCodes(t *testing.T) {
	t.Run("unknown command", func(t *testing.T) {
		if code, _, _ := runArgs(t, "frobnicate"); code != core.ExitCodeError {
			t.Errorf("exit code = %d, want %d", code, core.ExitCodeError)
		}
	})
	t.Run("invalid config", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "70000")
		code, _, stderr := runArgs(t, "migrate", "version")
		if code != core.ExitCodeConfig {
			t.Errorf("exit code = %d, want %d", code, core.ExitCodeConfig)
		}
		if !strings.Contains(stderr, "70000") {
			t.Errorf("stderr = %q", stderr)
		}
	})
	t.Run("missing explicit env file", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run([]string{"--env-file", filepath.Join(t.TempDir(), "nope.env"), "version"}, &stdout, &stderr)
		if code != core.ExitCodeConfig {
			t.Errorf("exit code = %d, want %d", code, core.ExitCodeConfig)
		}
	})
}

func TestExitError(t *testing.T) {
	err := &exitError{code: core.ExitCodeSIGTERM}
	if err.Error() != core.ExitCodeName(core.ExitCodeSIGTERM) {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("RETENTION_DAYS=7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// godotenv never overrides a variable that is set, even to ""
	t.Setenv("RETENTION_DAYS", "")
	os.Unsetenv("RETENTION_DAYS")

	if err := loadEnvFile(path, true); err != nil {
		t.Fatalf("loadEnvFile: %v", err)
	}
	cfg, err := core.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d, want 7", cfg.RetentionDays)
	}

	if err := loadEnvFile(filepath.Join(t.TempDir(), ".env"), false); err != nil {
		t.Errorf("missing default env file should be ignored: %v", err)
	}
}

func TestMigrateCommands(t *testing.T) {
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "telemetry.db"))

	steps := []struct {
		args []string
		want string
	}{
		{[]string{"migrate", "version"}, "version=0"},
		{[]string{"migrate", "up"}, "version=2 dirty=false"},
		{[]string{"migrate", "down"}, "version=1"},
		{[]string{"migrate", "up"}, "version=2"},
		{[]string{"migrate", "down", "--steps", "0"}, "version=0"},
	}
	for _, s := range steps {
		code, out, stderr := runArgs(t, s.args...)
		if code != core.ExitCodeSuccess {
			t.Fatalf("%v: exit code %d: %s", s.args, code, stderr)
		}
		if !strings.Contains(out, s.want) {
			t.Errorf("%v: output = %q, want %q", s.args, out, s.want)
		}
	}

	if code, _, _ := runArgs(t, "migrate", "down", "--steps", "-1"); code != core.ExitCodeConfig {
		t.Errorf("negative steps exit code = %d, want %d", code, core.ExitCodeConfig)
	}
}

func startTestPipeline(t *testing.T, cfg *core.Config) (*pipeline, *shutdown.Manager) {
	t.Helper()
	mgr := shutdown.NewManager(zaptest.NewLogger(t), shutdown.WithTimeout(cfg.ShutdownTimeout))
	p, err := startPipeline(cfg, zaptest.NewLogger(t), mgr)
	if err != nil {
		mgr.Shutdown()
		t.Fatalf("startPipeline: %v", err)
	}
	return p, mgr
}

func TestStartPipeline(t *testing.T) {
	cfg := testConfig(t)
	p, mgr := startTestPipeline(t, cfg)
	base := "http://" + p.Addr()

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var health webapi.HealthResponse
	json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || health.Status != "running" {
		t.Errorf("health = %d %+v", resp.StatusCode, health)
	}

	resp, err = http.Post(base+"/api/subjects/carol/init", "application/json", strings.NewReader(`{"session_id":"s-1"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !p.agg.IsTracked("carol") {
		t.Error("init did not reach the aggregator")
	}

	want := []string{"http server", "live feed", "idle sweeper", "db cleanup", "async writer", "database", "logger sync"}
	for _, step := range want {
		found := false
		for _, got := range mgr.Steps() {
			found = found || got == step
		}
		if !found {
			t.Errorf("shutdown step %q not registered (have %v)", step, mgr.Steps())
		}
	}

	if err := mgr.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := http.Get(base + "/health"); err == nil {
		t.Error("server still answering after shutdown")
	}
	if p.Err() != nil {
		t.Errorf("Err() = %v after clean shutdown", p.Err())
	}
}

func TestStartPipeline_WorkDomainsOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.WorkDomains = []string{"example.com"}
	p, mgr := startTestPipeline(t, cfg)
	defer mgr.Shutdown()

	if got := p.agg.Config().WorkDomains; len(got) != 1 || got[0] != "example.com" {
		t.Fatalf("WorkDomains = %q, want [example.com]", got)
	}

	pol := policy.Default()
	pol.Aggregator.WorkDomains = []string{"other.org"}
	pol.Aggregator.IdleThresholdMs = 30000
	pol.Scoring.IdleMs = 30000
	p.applyPolicy(pol)

	got := p.agg.Config()
	if len(got.WorkDomains) != 1 || got.WorkDomains[0] != "example.com" {
		t.Errorf("WorkDomains after reload = %q, want the env override", got.WorkDomains)
	}
	if got.IdleThreshold != 30*time.Second {
		t.Errorf("IdleThreshold after reload = %v, want 30s", got.IdleThreshold)
	}
}

func TestStartPipeline_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Port = ln.Addr().(*net.TCPAddr).Port

	mgr := shutdown.NewManager(zaptest.NewLogger(t))
	_, err = startPipeline(cfg, zaptest.NewLogger(t), mgr)
	if err == nil || !strings.Contains(err.Error(), strconv.Itoa(cfg.Port)) {
		t.Errorf("err = %v, want listen failure", err)
	}
	if err := mgr.Shutdown(); err != nil {
		t.Errorf("Shutdown after failed start: %v", err)
	}
}

func TestProbeAgainstPipeline(t *testing.T) {
	cfg := testConfig(t)
	p, mgr := startTestPipeline(t, cfg)
	defer mgr.Shutdown()

	cfg.ServerURL = "http://" + p.Addr()
	cfg.UserID = "dave@example.com"

	events := []agent.ScriptEvent{
		{AtMs: 0, Kind: agent.KindKeyDown, EventPayload: agent.EventPayload{Key: "a"}},
		{AtMs: 100, Kind: agent.KindMouseMove, EventPayload: agent.EventPayload{X: 10, Y: 10}},
		{AtMs: 200, Kind: agent.KindScroll, EventPayload: agent.EventPayload{ScrollPercent: 30}},
		{AtMs: 300, Kind: agent.KindHover, EventPayload: agent.EventPayload{Target: "menu"}},
		{AtMs: 400, Kind: agent.KindKeyDown, EventPayload: agent.EventPayload{Key: "b"}},
	}
	opts := &probeOptions{speed: 2, interval: 50 * time.Millisecond}

	stats, err := runProbe(cfg, opts, events, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("runProbe: %v", err)
	}
	if stats.sent == 0 || stats.failed != 0 {
		t.Errorf("stats = %+v, want packets sent without failures", stats)
	}
	// hover has no server-side signal
	if stats.forwarded != 4 {
		t.Errorf("forwarded = %d, want 4", stats.forwarded)
	}

	snap, ok := p.agg.GetState("dave@example.com")
	if !ok {
		t.Fatalf("subject not tracked; have %v", p.agg.Subjects())
	}
	if snap.SignalCount != 4 {
		t.Errorf("SignalCount = %d, want 4", snap.SignalCount)
	}
}

func TestLoadProbeEvents(t *testing.T) {
	events, err := loadProbeEvents(&probeOptions{duration: time.Minute, seed: 7})
	if err != nil || len(events) == 0 {
		t.Fatalf("synthetic script: %d events, err %v", len(events), err)
	}

	path := filepath.Join(t.TempDir(), "script.jsonl")
	script := "# warmup\n{\"at_ms\": 500, \"kind\": \"keydown\", \"key\": \"b\"}\n{\"at_ms\": 0, \"kind\": \"click\", \"x\": 1, \"y\": 2}\n"
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}
	events, err = loadProbeEvents(&probeOptions{script: path})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Kind != agent.KindClick {
		t.Errorf("events = %+v", events)
	}

	if _, err := loadProbeEvents(&probeOptions{duration: 0}); err == nil {
		t.Error("zero duration should be rejected")
	}
}

func TestNewServiceConfig(t *testing.T) {
	cfg, err := newServiceConfig(".env")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != serviceName {
		t.Errorf("Name = %q", cfg.Name)
	}
	args := cfg.Arguments
	if len(args) != 4 || args[0] != "--env-file" || !filepath.IsAbs(args[1]) || args[2] != "service" || args[3] != "run" {
		t.Errorf("Arguments = %v", args)
	}
	if cfg.WorkingDirectory == "" {
		t.Error("WorkingDirectory not set")
	}

	cfg, _ = newServiceConfig("")
	if strings.Join(cfg.Arguments, " ") != "service run" {
		t.Errorf("Arguments without env file = %v", cfg.Arguments)
	}
}

func TestProgram_StartStop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	dir := t.TempDir()
	t.Setenv("HTTP_HOST", "127.0.0.1")
	t.Setenv("HTTP_PORT", strconv.Itoa(port))
	t.Setenv("DB_PATH", filepath.Join(dir, "telemetry.db"))
	t.Setenv("LOG_FILE", filepath.Join(dir, "service.log"))
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "5")

	prg := &program{}
	if err := prg.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()

	if err := prg.Stop(nil); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := prg.Stop(nil); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestRun_PreflightFailures(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DB_PATH", filepath.Join(dir, "telemetry.db"))
	t.Setenv("LOG_FILE", filepath.Join(dir, "test.log"))

	t.Run("serve on a bound port", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		defer ln.Close()
		port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)

		code, _, stderr := runArgs(t, "serve", "--host", "127.0.0.1", "--port", port)
		if code != core.ExitCodeConfig {
			t.Errorf("exit code = %d, want %d", code, core.ExitCodeConfig)
		}
		for _, want := range []string{"Listen address", "preflight failed"} {
			if !strings.Contains(stderr, want) {
				t.Errorf("stderr missing %q:\n%s", want, stderr)
			}
		}
	})
	t.Run("probe with a bad server URL", func(t *testing.T) {
		code, _, stderr := runArgs(t, "probe", "--server", "ftp://example.com", "--duration", "1s")
		if code != core.ExitCodeConfig {
			t.Errorf("exit code = %d, want %d", code, core.ExitCodeConfig)
		}
		if !strings.Contains(stderr, "http or https") {
			t.Errorf("stderr = %q", stderr)
		}
	})
}

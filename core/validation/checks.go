package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cognitive_backend/core"
	"cognitive_backend/policy"
)

// DefaultHealthTimeout bounds the probe's server health check.
const DefaultHealthTimeout = 3 * time.Second

// ServeChecks returns the checks run before the server starts: the database
// directory, free disk space, the policy file and the listen address.
func ServeChecks(cfg *core.Config) []Check {
	dir := filepath.Dir(cfg.DBPath)
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	return []Check{
		{Name: "Database directory", Run: func(context.Context) (string, error) {
			return CheckWritableDir(dir)
		}},
		{Name: "Disk space", Warn: true, Run: func(context.Context) (string, error) {
			info, err := CheckDiskSpace(dir, DefaultMinFreeBytes)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s free (%.0f%% used)", formatBytes(info.Free), info.UsedPercent), nil
		}},
		{Name: "Policy file", Run: func(context.Context) (string, error) {
			return CheckPolicy(cfg.PolicyPath)
		}},
		{Name: "Listen address", Run: func(context.Context) (string, error) {
			return CheckListenAddr(addr)
		}},
	}
}

// ProbeChecks returns the checks run before a probe session. An unreachable
// server only warns: packets are fire-and-forget and the probe still runs.
func ProbeChecks(cfg *core.Config, forwarding bool) []Check {
	checks := []Check{
		{Name: "Server URL", Run: func(context.Context) (string, error) {
			if err := ValidateServerURL(cfg.ServerURL); err != nil {
				return "", err
			}
			return cfg.ServerURL, nil
		}},
		{Name: "Policy file", Run: func(context.Context) (string, error) {
			return CheckPolicy(cfg.PolicyPath)
		}},
	}
	if forwarding {
		checks = append(checks, Check{Name: "Server health", Warn: true, Run: func(ctx context.Context) (string, error) {
			return CheckHealth(ctx, cfg.ServerURL, DefaultHealthTimeout)
		}})
	}
	return checks
}

// CheckWritableDir creates dir if needed and proves a file can be written
// in it.
func CheckWritableDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return "", fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return dir, nil
}

// CheckPolicy loads the policy file. An empty path reports the built-in
// defaults.
func CheckPolicy(path string) (string, error) {
	if path == "" {
		return "built-in defaults", nil
	}
	if _, err := policy.Load(path); err != nil {
		return "", err
	}
	return path, nil
}

// CheckListenAddr binds addr and releases it again. Port 0 always passes.
func CheckListenAddr(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("cannot listen on %s: %w", addr, err)
	}
	ln.Close()
	return addr, nil
}

// CheckHealth calls GET /health on the server and reports its status and
// version.
func CheckHealth(ctx context.Context, serverURL string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := strings.TrimRight(serverURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("invalid health URL: %w", err)
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("server unreachable at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("health check returned HTTP %d", resp.StatusCode)
	}

	var body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("unreadable health response: %w", err)
	}
	if body.Status != "running" {
		return "", fmt.Errorf("server is %s", body.Status)
	}
	return fmt.Sprintf("%s, version %s (%v)", body.Status, body.Version, time.Since(start).Round(time.Millisecond)), nil
}

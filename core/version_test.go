package core

import (
	"strings"
	"testing"
)

func TestGetVersionInfo(t *testing.T) {
	old := [3]string{Version, BuildTime, GitCommit}
	t.Cleanup(func() { Version, BuildTime, GitCommit = old[0], old[1], old[2] })

	Version, BuildTime, GitCommit = "v1.2.0", "2026-05-01T10:00:00Z", "abc1234"
	want := "v1.2.0 (built 2026-05-01T10:00:00Z, commit abc1234)"
	if got := GetVersionInfo(); got != want {
		t.Errorf("GetVersionInfo() = %q, want %q", got, want)
	}
	if GetVersion() != "v1.2.0" || GetBuildTime() != BuildTime || GetGitCommit() != "abc1234" {
		t.Error("getters do not return the injected values")
	}
}

func TestBuildLdflags(t *testing.T) {
	tests := []struct {
		name                       string
		version, buildTime, commit string
		want                       string
	}{
		{"all", "v1.0.0", "2024-01-15T10:30:00Z", "abc1234",
			"-X cognitive_backend/core.Version=v1.0.0 -X cognitive_backend/core.BuildTime=2024-01-15T10:30:00Z -X cognitive_backend/core.GitCommit=abc1234"},
		{"version only", "v2.0.0", "", "", "-X cognitive_backend/core.Version=v2.0.0"},
		{"skips empty middle", "v1.5.0", "", "def5678",
			"-X cognitive_backend/core.Version=v1.5.0 -X cognitive_backend/core.GitCommit=def5678"},
		{"none", "", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildLdflags(tt.version, tt.buildTime, tt.commit); got != tt.want {
				t.Errorf("BuildLdflags() = %q, want %q", got, tt.want)
			}
		})
	}

	if !strings.HasPrefix(BuildLdflags("x", "", ""), "-X "+versionPackage) {
		t.Error("flags should target the core package")
	}
}

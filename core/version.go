package core

// Build information, injected with ldflags:
//
//	go build -ldflags "-X cognitive_backend/core.Version=v1.2.0 -X cognitive_backend/core.GitCommit=$(git rev-parse --short HEAD)" .
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// versionPackage is the import path the ldflags target.
const versionPackage = "cognitive_backend/core"

// GetVersion returns the application version string.
func GetVersion() string {
	return Version
}

// GetBuildTime returns the build timestamp.
func GetBuildTime() string {
	return BuildTime
}

// GetGitCommit returns the git commit hash.
func GetGitCommit() string {
	return GitCommit
}

// GetVersionInfo returns version, build time and commit on one line:
//
//	v1.0.0 (built 2024-01-15T10:30:00Z, commit abc1234)
func GetVersionInfo() string {
	return Version + " (built " + BuildTime + ", commit " + GitCommit + ")"
}

// BuildLdflags returns the -X flags injecting the given values. Empty values
// are omitted.
func BuildLdflags(version, buildTime, gitCommit string) string {
	var flags string
	add := func(name, value string) {
		if value == "" {
			return
		}
		if flags != "" {
			flags += " "
		}
		flags += "-X " + versionPackage + "." + name + "=" + value
	}
	add("Version", version)
	add("BuildTime", buildTime)
	add("GitCommit", gitCommit)
	return flags
}

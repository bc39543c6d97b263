package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeInvalidPort       = "INVALID_PORT"
	ErrCodeInvalidValue      = "INVALID_VALUE"
	ErrCodeMissingConfig     = "MISSING_CONFIG"
	ErrCodePolicyUnreadable  = "POLICY_UNREADABLE"
	ErrCodeEnvFileUnreadable = "ENV_FILE_UNREADABLE"
)

// ErrInvalidPort returns an error for a listen port outside 1-65535.
func ErrInvalidPort(port int) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidPort,
		Message: fmt.Sprintf("Invalid HTTP_PORT %d", port),
		Action:  "Set HTTP_PORT to a value between 1 and 65535",
	}
}

// ErrInvalidValue returns an error for a setting that parsed but is out of range.
func ErrInvalidValue(varName string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s: %s", varName, reason),
		Action:  fmt.Sprintf("Fix %s in your .env file or environment", varName),
	}
}

// ErrInvalidPolicy returns an error for a policy file key with an unusable value.
func ErrInvalidPolicy(key string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid policy %s: %s", key, reason),
		Action:  fmt.Sprintf("Fix %s in the policy file named by POLICY_PATH", key),
	}
}

// ErrMissingConfig returns an error for missing required configuration
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your .env file", varName),
	}
}

// ErrPolicyUnreadable returns an error when the policy file exists but cannot be used.
func ErrPolicyUnreadable(path string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodePolicyUnreadable,
		Message: fmt.Sprintf("Cannot load policy file %s: %s", path, reason),
		Action:  "Fix the YAML or unset POLICY_PATH to run with built-in thresholds",
	}
}

// ErrEnvFileUnreadable returns an error for an --env-file that cannot be loaded.
func ErrEnvFileUnreadable(path string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeEnvFileUnreadable,
		Message: fmt.Sprintf("Cannot load environment file %s: %s", path, reason),
		Action:  "Check the --env-file path and its KEY=value syntax",
	}
}

// IsConfigError checks if an error (or anything it wraps) is a ConfigError.
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a ConfigError
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}

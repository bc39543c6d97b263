package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ParseLevel parses a LOG_LEVEL value. Parsing is case-insensitive and
// accepts "warning" for warn. An empty string returns def.
func ParseLevel(value string, def zapcore.Level) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return def, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return def, fmt.Errorf("logging: unknown level %q (want debug, info, warn or error)", value)
	}
}

// Package logging builds the process logger: a zap core that tees JSON to a
// rotating log file and human output to the console, wrapped so that string
// fields and messages are scrubbed of credentials before they are written.
//
// Usage:
//
//	logger, closeLog, err := logging.New(logging.Config{
//	    Level:       cfg.LogLevel,
//	    Development: cfg.DevMode,
//	    FilePath:    cfg.LogFile,
//	})
//	if err != nil {
//	    return err
//	}
//	defer closeLog()
//	logger.Info("Server started", zap.Int("port", cfg.Port))
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level, console format and file output.
type Config struct {
	// Level is a LOG_LEVEL value. Empty means debug in development and info
	// otherwise.
	Level string
	// Development switches the console to colored text
	Development bool
	// FilePath enables the JSON log file. Empty disables it.
	FilePath string
	File     FileWriterConfig
	// Console defaults to stdout
	Console io.Writer
	// DisableRedaction turns the credential filter off
	DisableRedaction bool
}

// New builds the logger. The returned func syncs the logger and closes the log
// file; call it on shutdown.
func New(cfg Config) (*zap.Logger, func() error, error) {
	def := zapcore.InfoLevel
	if cfg.Development {
		def = zapcore.DebugLevel
	}
	level, err := ParseLevel(cfg.Level, def)
	if err != nil {
		return nil, nil, err
	}

	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}

	var file zapcore.WriteSyncer
	var closer io.Closer
	if cfg.FilePath != "" {
		fileCfg := cfg.File
		if fileCfg == (FileWriterConfig{}) {
			fileCfg = DefaultFileWriterConfig()
		}
		w := NewFileWriter(cfg.FilePath, fileCfg)
		file = zapcore.AddSync(w)
		closer = w
	}

	core := NewTeeCore(level, zapcore.AddSync(console), file, cfg.Development)
	if !cfg.DisableRedaction {
		core = NewRedactingCore(core)
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}
	logger := zap.New(core, opts...)

	closeFn := func() error {
		// stdout sync fails on some terminals; ignore it
		_ = logger.Sync()
		if closer != nil {
			return closer.Close()
		}
		return nil
	}
	return logger, closeFn, nil
}

// NewTeeCore writes to console, and to file when it is non-nil. File output is
// always JSON; console output is colored text in development and JSON
// otherwise.
func NewTeeCore(level zapcore.LevelEnabler, console, file zapcore.WriteSyncer, development bool) zapcore.Core {
	var consoleEncoder zapcore.Encoder
	if development {
		consoleEncoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(NewEncoderConfig())
	}
	consoleCore := zapcore.NewCore(consoleEncoder, console, level)
	if file == nil {
		return consoleCore
	}

	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(NewEncoderConfig()), file, level)
	return zapcore.NewTee(consoleCore, fileCore)
}

// Command cognitive_backend runs the cognitive telemetry pipeline: the
// aggregator server (serve), a capture probe that replays interaction
// scripts against it (probe), schema management (migrate) and OS service
// control (service).
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cognitive_backend/core"
	"cognitive_backend/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return core.ExitCodeSuccess
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintln(stderr, "Error:", exit.err)
		}
		return exit.code
	}
	fmt.Fprintln(stderr, "Error:", err)
	if _, ok := core.IsConfigError(err); ok {
		return core.ExitCodeConfig
	}
	return core.ExitCodeError
}

// exitError ends a command with a specific exit code. err may be nil when
// the command already reported the failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return core.ExitCodeName(e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// rootFlags are shared by every subcommand.
type rootFlags struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "cognitive_backend",
		Short:         "Activity signal to cognitive state pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnvFile(flags.envFile, cmd.Flags().Changed("env-file"))
		},
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "environment file loaded before reading configuration")

	root.AddCommand(newServeCmd())
	root.AddCommand(newProbeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newServiceCmd(flags))
	root.AddCommand(newVersionCmd())
	return root
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return core.ErrEnvFileUnreadable(path, err.Error())
}

// setup loads the configuration and builds the process logger.
func setup() (*core.Config, *zap.Logger, func() error, error) {
	cfg, err := core.LoadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	logger, closeLog, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Development: cfg.DevMode,
		FilePath:    cfg.LogFile,
	})
	if err != nil {
		return nil, nil, nil, core.ErrInvalidValue("LOG_LEVEL", err.Error())
	}
	return cfg, logger, closeLog, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), core.GetVersionInfo())
		},
	}
}

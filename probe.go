package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cognitive_backend/agent"
	"cognitive_backend/core"
	"cognitive_backend/core/validation"
	"cognitive_backend/policy"
	"cognitive_backend/shutdown"
)

type probeOptions struct {
	script    string
	duration  time.Duration
	seed      uint64
	speed     float64
	server    string
	user      string
	noForward bool
	interval  time.Duration

	skipPreflight bool
}

func newProbeCmd() *cobra.Command {
	opts := &probeOptions{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Replay an interaction script through a capture session against a server",
		Long: `probe runs the client side of the pipeline: a capture agent, the state
classifier and the packet emitter, fed from a JSON-lines interaction script
(--script) or a generated work session (--duration, --seed). Packets go to
SERVER_URL; interaction events are also forwarded to the server aggregator
unless --no-forward is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closeLog, err := setup()
			if err != nil {
				return err
			}
			defer closeLog()

			if cmd.Flags().Changed("server") {
				cfg.ServerURL = opts.server
			}
			if cmd.Flags().Changed("user") {
				cfg.UserID = opts.user
			}

			events, err := loadProbeEvents(opts)
			if err != nil {
				return err
			}

			if !opts.skipPreflight {
				checks := validation.ProbeChecks(cfg, !opts.noForward)
				if err := runPreflight(cmd.Context(), cmd, "Probe preflight", checks, logger); err != nil {
					return err
				}
			}

			stats, err := runProbe(cfg, opts, events, logger)
			fmt.Fprintf(cmd.OutOrStdout(), "events=%d packets_sent=%d packets_failed=%d signals_forwarded=%d\n",
				len(events), stats.sent, stats.failed, stats.forwarded)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.script, "script", "", "JSON-lines interaction script; empty generates one")
	cmd.Flags().DurationVar(&opts.duration, "duration", 2*time.Minute, "length of a generated session")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 1, "seed for a generated session")
	cmd.Flags().Float64Var(&opts.speed, "speed", 1, "replay speed multiplier")
	cmd.Flags().StringVar(&opts.server, "server", core.DefaultServerURL, "server base URL (overrides SERVER_URL)")
	cmd.Flags().StringVar(&opts.user, "user", "", "user id (overrides PROBE_USER_ID)")
	cmd.Flags().BoolVar(&opts.noForward, "no-forward", false, "send packets only, do not forward signals")
	cmd.Flags().DurationVar(&opts.interval, "emit-interval", 0, "packet interval (overrides PROBE_EMIT_INTERVAL_MS, default 5s)")
	cmd.Flags().BoolVar(&opts.skipPreflight, "skip-preflight", false, "skip the server URL, policy and health checks")
	return cmd
}

func loadProbeEvents(opts *probeOptions) ([]agent.ScriptEvent, error) {
	if opts.script == "" {
		if opts.duration <= 0 {
			return nil, core.ErrInvalidValue("--duration", "must be positive")
		}
		return agent.SyntheticScript(opts.seed, opts.duration), nil
	}

	f, err := os.Open(opts.script)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close()
	return agent.LoadScript(f)
}

type probeStats struct {
	sent      int64
	failed    int64
	forwarded int64
}

// runProbe replays events until the script ends or a signal arrives, then
// stops the session with a final signal flush.
func runProbe(cfg *core.Config, opts *probeOptions, events []agent.ScriptEvent, logger *zap.Logger) (probeStats, error) {
	pol, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		return probeStats{}, err
	}

	runnerCfg := agent.DefaultRunnerConfig()
	runnerCfg.Classifier = pol.ClassifierConfig()
	runnerCfg.Emitter.Focus = pol.FocusConfig()
	switch {
	case opts.interval > 0:
		runnerCfg.Emitter.Interval = opts.interval
	case cfg.EmitInterval > 0:
		runnerCfg.Emitter.Interval = cfg.EmitInterval
	}

	transport := agent.NewHTTPTransport(cfg.ServerURL, 0)
	var sink agent.SignalSink
	if !opts.noForward {
		sink = transport
	}
	runner := agent.NewRunner(runnerCfg, agent.StaticIdentity{User: cfg.UserID}, transport, sink, nil, logger.Named("probe"))

	mgr := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
	mgr.Start()
	ctx := mgr.Context()

	if cfg.PolicyPath != "" && cfg.WatchPolicy {
		watcher, err := policy.NewWatcher(cfg.PolicyPath, logger.Named("policy"), func(p *policy.Policy) {
			runner.Reconfigure(p.ClassifierConfig(), p.FocusConfig())
		})
		if err != nil {
			return probeStats{}, err
		}
		go watcher.Run(ctx)
		mgr.Register("policy watcher", shutdown.PhaseProducers, shutdown.CloseStep(watcher))
	}

	logger.Info("Probe started",
		zap.String("server", cfg.ServerURL),
		zap.Int("events", len(events)),
		zap.Float64("speed", opts.speed),
		zap.Bool("forwarding", sink != nil))

	runner.Start(ctx)
	mgr.Register("capture session", shutdown.PhaseProducers, shutdown.StopContextStep(runner.Stop))

	replayErr := agent.Replay(ctx, runner, events, opts.speed)
	if errors.Is(replayErr, context.Canceled) {
		replayErr = nil
	}
	shutdownErr := mgr.Shutdown()

	stats := probeStats{
		sent:   runner.Emitter().Stats().Sent,
		failed: runner.Emitter().Stats().Failed,
	}
	if f := runner.Forwarder(); f != nil {
		stats.forwarded = f.Forwarded()
	}

	if err := errors.Join(replayErr, shutdownErr); err != nil {
		return stats, err
	}
	if code := mgr.ExitCode(nil); code != core.ExitCodeSuccess {
		return stats, &exitError{code: code}
	}
	return stats, nil
}

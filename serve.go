package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cognitive_backend/aggregator"
	"cognitive_backend/core"
	"cognitive_backend/core/validation"
	"cognitive_backend/db"
	"cognitive_backend/metrics"
	"cognitive_backend/policy"
	"cognitive_backend/scoring"
	"cognitive_backend/shutdown"
	"cognitive_backend/webapi"
)

func newServeCmd() *cobra.Command {
	var host string
	var port int
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the aggregator, scorer and telemetry sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closeLog, err := setup()
			if err != nil {
				return err
			}
			defer closeLog()

			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			if !skipPreflight {
				if err := runPreflight(cmd.Context(), cmd, "Server preflight", validation.ServeChecks(cfg), logger); err != nil {
					return err
				}
			}

			mgr := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
			mgr.Start()

			p, err := startPipeline(cfg, logger, mgr)
			if err != nil {
				logger.Error("Failed to start", zap.Error(err))
				mgr.Shutdown()
				return err
			}
			logger.Info("Server ready", zap.String("addr", p.Addr()), zap.String("version", core.GetVersion()))

			<-mgr.Context().Done()
			code := mgr.ExitCode(mgr.Shutdown())
			if err := p.Err(); err != nil {
				return &exitError{code: core.ExitCodeError, err: err}
			}
			if code != core.ExitCodeSuccess {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", core.DefaultHost, "listen host (overrides HTTP_HOST)")
	cmd.Flags().IntVar(&port, "port", core.DefaultPort, "listen port (overrides HTTP_PORT)")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "start without the database, disk, policy and listen checks")
	return cmd
}

// pipeline is a running server: everything serve starts, with a shutdown
// step registered for each part.
type pipeline struct {
	listener net.Listener
	agg      *aggregator.Aggregator
	scorer   *scoring.Scorer
	serveErr chan error

	// workDomains overrides the policy's list when non-empty
	workDomains []string
}

// Err returns the error that stopped the HTTP server, if any.
func (p *pipeline) Err() error {
	select {
	case err := <-p.serveErr:
		return err
	default:
		return nil
	}
}

// Addr returns the bound listen address.
func (p *pipeline) Addr() string {
	return p.listener.Addr().String()
}

// aggregatorConfig applies pol on top of base, then the WORK_DOMAINS
// override.
func (p *pipeline) aggregatorConfig(pol *policy.Policy, base aggregator.Config) aggregator.Config {
	cfg := pol.AggregatorConfig(base)
	if len(p.workDomains) > 0 {
		cfg.WorkDomains = append([]string(nil), p.workDomains...)
	}
	return cfg
}

// applyPolicy pushes a policy into the running aggregator and scorer.
func (p *pipeline) applyPolicy(pol *policy.Policy) {
	p.agg.Reconfigure(p.aggregatorConfig(pol, p.agg.Config()))
	p.scorer.SetThresholds(pol.Scoring)
}

// startPipeline opens storage, builds the aggregator, scorer and HTTP
// surface, starts every background task under mgr's context and registers
// their shutdown steps. On error the steps registered so far are left for
// mgr.Shutdown to run.
func startPipeline(cfg *core.Config, logger *zap.Logger, mgr *shutdown.Manager) (*pipeline, error) {
	ctx := mgr.Context()

	mgr.Register("logger sync", shutdown.PhaseLogs, func(context.Context) error {
		logger.Sync()
		return nil
	})

	// Policy
	var watcher *policy.Watcher
	pol, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}
	p := &pipeline{
		scorer:      scoring.NewScorer(pol.Scoring),
		serveErr:    make(chan error, 1),
		workDomains: cfg.WorkDomains,
	}
	p.agg = aggregator.NewWithConfig(p.aggregatorConfig(pol, aggregator.DefaultConfig()), nil, logger.Named("aggregator"))
	if cfg.PolicyPath != "" && cfg.WatchPolicy {
		watcher, err = policy.NewWatcher(cfg.PolicyPath, logger.Named("policy"), p.applyPolicy)
		if err != nil {
			return nil, err
		}
		go watcher.Run(ctx)
		mgr.Register("policy watcher", shutdown.PhaseProducers, shutdown.CloseStep(watcher))
	}
	logger.Info("Policy loaded",
		zap.String("source", pol.Source),
		zap.Bool("watching", watcher != nil),
		zap.Duration("idle_threshold", p.agg.Config().IdleThreshold))

	// Storage
	database, err := db.Open(db.DatabaseConfig{Path: cfg.DBPath, MigrationsPath: cfg.MigrationsPath})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	mgr.Register("database", shutdown.PhaseStorage, shutdown.CloseStep(database))

	repo := db.NewRepository(database)
	writer := db.NewAsyncWriter(repo.WriteHandler(), db.DefaultAsyncWriterConfig(), logger.Named("db"))
	writer.Start()
	repo.UseAsyncWriter(writer)
	mgr.Register("async writer", shutdown.PhaseWriters, shutdown.StopStep(writer.Stop))

	cleanup := db.NewCleanupScheduler(database, db.CleanupSchedulerConfig{
		RetentionDays: cfg.RetentionDays,
		Interval:      24 * time.Hour,
	}, nil, logger.Named("db"))
	cleanup.Start(ctx)
	mgr.Register("db cleanup", shutdown.PhaseProducers, shutdown.StopStep(cleanup.Stop))

	// HTTP surface
	store := metrics.NewMetricsStore(metrics.StoreConfig{
		PacketHistoryCapacity: 100,
		Version:               core.GetVersion(),
	}, time.Now())

	var feed *webapi.Broadcaster
	if cfg.WebSocketOn {
		feed = webapi.NewBroadcaster(webapi.DefaultBroadcasterConfig(), logger.Named("feed"))
		go feed.Run(ctx)
		mgr.Register("live feed", shutdown.PhaseListeners, shutdown.StopStep(feed.Close))
	}

	apiCfg := webapi.DefaultConfig()
	if cfg.DevMode {
		apiCfg.RequestLog.Console = os.Stdout
	}
	api := webapi.NewServer(apiCfg, webapi.Deps{
		Aggregator:  p.agg,
		Scorer:      p.scorer,
		Metrics:     store,
		Store:       repo,
		Broadcaster: feed,
		Shutdown:    mgr,
		WriterStats: writer.Stats,
		Logger:      logger.Named("http"),
	})
	if feed != nil {
		go api.RunSignalFeed(ctx)
	}

	sweeper := aggregator.NewIdleSweeper(p.agg, logger.Named("aggregator"))
	sweeper.AfterSweep = api.AfterSweep
	sweeper.Start(ctx)
	mgr.Register("idle sweeper", shutdown.PhaseProducers, shutdown.StopStep(sweeper.Stop))

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	p.listener = ln

	srv := &http.Server{
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}
	mgr.Register("http server", shutdown.PhaseListeners, shutdown.ServerStep(srv))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			err = fmt.Errorf("http server: %w", err)
			p.serveErr <- err
			mgr.Trigger(err)
		}
	}()

	return p, nil
}

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"cognitive_backend/shutdown"
)

const serviceName = "cognitive-backend"

var errServiceStop = errors.New("service stop requested")

// program runs serve under the OS service manager.
type program struct {
	envFile string

	mu   sync.Mutex
	mgr  *shutdown.Manager
	done chan struct{}
	err  error
}

// Start builds the pipeline and returns; the service manager must not be
// blocked.
func (p *program) Start(service.Service) error {
	if err := loadEnvFile(p.envFile, false); err != nil {
		return err
	}
	cfg, logger, closeLog, err := setup()
	if err != nil {
		return err
	}

	mgr := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
	if _, err := startPipeline(cfg, logger, mgr); err != nil {
		mgr.Shutdown()
		closeLog()
		return err
	}

	done := make(chan struct{})
	p.mu.Lock()
	p.mgr, p.done = mgr, done
	p.mu.Unlock()

	go func() {
		<-mgr.Context().Done()
		err := mgr.Shutdown()
		closeLog()

		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(done)
	}()
	return nil
}

// Stop triggers shutdown and waits for it; the manager's timeout bounds the
// wait.
func (p *program) Stop(service.Service) error {
	p.mu.Lock()
	mgr, done := p.mgr, p.done
	p.mu.Unlock()
	if mgr == nil {
		return nil
	}

	mgr.Trigger(errServiceStop)
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// newServiceConfig describes the installed service. The service runs
// "service run" from the current directory with the env file made absolute,
// since service managers start processes elsewhere.
func newServiceConfig(envFile string) (*service.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	args := []string{"service", "run"}
	if envFile != "" {
		if !filepath.IsAbs(envFile) {
			envFile = filepath.Join(wd, envFile)
		}
		args = append([]string{"--env-file", envFile}, args...)
	}

	return &service.Config{
		Name:             serviceName,
		DisplayName:      "Cognitive Telemetry Backend",
		Description:      "Aggregates activity signals into cognitive state classifications and stores telemetry packets.",
		Arguments:        args,
		WorkingDirectory: wd,
		Option: service.KeyValue{
			"StartType": "automatic",
			"Restart":   "on-failure",
		},
	}, nil
}

func newService(flags *rootFlags) (service.Service, *program, error) {
	cfg, err := newServiceConfig(flags.envFile)
	if err != nil {
		return nil, nil, err
	}
	prg := &program{envFile: flags.envFile}
	s, err := service.New(prg, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, prg, nil
}

func newServiceCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install and control the server as an OS service",
	}

	for _, action := range []string{"install", "uninstall", "start", "stop", "restart"} {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: action + " the " + serviceName + " service",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, _, err := newService(flags)
				if err != nil {
					return err
				}
				if err := service.Control(s, action); err != nil {
					return fmt.Errorf("service %s failed: %w", action, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: %s ok\n", serviceName, action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := newService(flags)
			if err != nil {
				return err
			}
			status, err := s.Status()
			if err != nil {
				return fmt.Errorf("failed to get service status: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "service %s: %s\n", serviceName, statusName(status))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run under the service manager (or in the foreground until interrupted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := newService(flags)
			if err != nil {
				return err
			}
			return s.Run()
		},
	})
	return cmd
}

func statusName(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

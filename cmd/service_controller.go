package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kardianos/service"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const serviceStopTimeout = 45 * time.Second

func (p *program) Start(s service.Service) error {
	// Start should not block. Do the actual work async.
	log.Info("starting service")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go func() {
		err := runServer(ctx, p.path, p.flags)
		if err != nil {
			log.Errorf("server exited: %v", err)
		}
		done <- err
		if !service.Interactive() && err != nil {
			// let the service manager see the failure and restart us
			_ = s.Stop()
		}
	}()
	return nil
}

func (p *program) Stop(service.Service) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case err := <-done:
		log.Info("stopped service")
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-time.After(serviceStopTimeout):
		return fmt.Errorf("server did not stop within %s", serviceStopTimeout)
	}
}

var (
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "runs tunnelcore as service",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSVC(newProgram(configPath, *serverFlags), newSVCConfig())
			if err != nil {
				return err
			}
			return s.Run()
		},
	}

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "starts tunnelcore service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return controlService(cmd, "started", service.Service.Start)
		},
	}

	stopCmd = &cobra.Command{
		Use:   "stop",
		Short: "stops tunnelcore service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return controlService(cmd, "stopped", service.Service.Stop)
		},
	}
)

func controlService(cmd *cobra.Command, done string, action func(service.Service) error) error {
	s, err := newSVC(newProgram(configPath, *serverFlags), newSVCConfig())
	if err != nil {
		return err
	}
	if err := action(s); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "tunnelcore service has been %s\n", done)
	return nil
}

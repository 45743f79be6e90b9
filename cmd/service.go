package cmd

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

const defaultServiceName = "tunnelcore"

var (
	serviceName string

	serviceCmd = &cobra.Command{
		Use:   "service",
		Short: "manage the tunnelcore system service",
	}
)

// program runs the server under the service manager
type program struct {
	path  string
	flags ServerFlags

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

func init() {
	serviceCmd.PersistentFlags().StringVar(&serviceName, "service-name", defaultServiceName, "system service name")
	serviceCmd.AddCommand(runCmd, startCmd, stopCmd, installCmd, uninstallCmd)
	addServerFlags(runCmd)
	addServerFlags(installCmd)
}

func newProgram(path string, flags ServerFlags) *program {
	return &program{path: path, flags: flags}
}

func newSVCConfig() *service.Config {
	return &service.Config{
		Name:        serviceName,
		DisplayName: "tunnelcore",
		Description: "tunnelcore tunnel server",
		Option:      make(service.KeyValue),
	}
}

func newSVC(prg *program, conf *service.Config) (service.Service, error) {
	return service.New(prg, conf)
}

// serviceArguments are the flags the installed service is launched with
func serviceArguments(path string, flags ServerFlags) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	args := []string{
		"service", "run",
		"--service-name", serviceName,
		"--config", abs,
		"--log-level", logLevel,
		"--log-file", logFile,
		"--management-addr", flags.ManagementAddr,
		"--metrics-port", strconv.Itoa(flags.MetricsPort),
		"--device-driver", flags.DeviceDriver,
		"--command-timeout", flags.CommandTimeout.String(),
		"--device-pool-size", strconv.Itoa(flags.DevicePoolSize),
	}
	if flags.NoRollback {
		args = append(args, "--no-rollback")
	}
	if flags.CreateTUN {
		args = append(args, "--create-tun")
	}
	if flags.TLSCertFile != "" {
		args = append(args, "--tls-cert-file", flags.TLSCertFile, "--tls-key-file", flags.TLSKeyFile)
	}
	return args, nil
}

package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tunnelcore/tunnelcore/encryption"
	"github.com/tunnelcore/tunnelcore/iface/device"
	"github.com/tunnelcore/tunnelcore/server"
	"github.com/tunnelcore/tunnelcore/server/config"
	mgmt "github.com/tunnelcore/tunnelcore/server/http"
	"github.com/tunnelcore/tunnelcore/shared/metrics"
	"github.com/tunnelcore/tunnelcore/util"
)

const shutdownTimeout = 30 * time.Second

// ServerFlags are the runtime options that are not part of the configuration file
type ServerFlags struct {
	ManagementAddr string
	MetricsPort    int
	DeviceDriver   string
	CommandTimeout time.Duration
	DevicePoolSize int
	NoRollback     bool
	TLSCertFile    string
	TLSKeyFile     string
	CreateTUN      bool
}

// Validate checks flag combinations
func (f ServerFlags) Validate() error {
	if (f.TLSCertFile == "") != (f.TLSKeyFile == "") {
		return errors.New("--tls-cert-file and --tls-key-file must be set together")
	}
	if f.CommandTimeout <= 0 {
		return errors.New("--command-timeout must be positive")
	}
	if f.DevicePoolSize < 1 {
		return errors.New("--device-pool-size must be at least 1")
	}
	if f.MetricsPort < 0 || f.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port %d", f.MetricsPort)
	}
	return nil
}

var (
	serverFlags = &ServerFlags{}

	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "run the tunnel server",
		Long:  "Configures the tunnel device, binds the transport socket and serves the management and metrics endpoints until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runServer(ctx, configPath, *serverFlags)
		},
	}
)

func init() {
	addServerFlags(serverCmd)
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serverFlags.ManagementAddr, "management-addr", defaultManagementAddr, "listen address of the management endpoint, empty disables it")
	cmd.Flags().IntVar(&serverFlags.MetricsPort, "metrics-port", 9090, "metrics endpoint http port. Metrics are accessible under host:metrics-port/metrics")
	cmd.Flags().StringVar(&serverFlags.DeviceDriver, "device-driver", device.DriverExec, "device driver: exec (ip and sysctl tools) or netlink")
	cmd.Flags().DurationVar(&serverFlags.CommandTimeout, "command-timeout", device.DefaultCommandTimeout, "timeout of a single device operation")
	cmd.Flags().IntVar(&serverFlags.DevicePoolSize, "device-pool-size", device.DefaultPoolSize, "number of device operations allowed to run at once")
	cmd.Flags().BoolVar(&serverFlags.NoRollback, "no-rollback", false, "keep partially applied device changes when start fails")
	cmd.Flags().StringVar(&serverFlags.TLSCertFile, "tls-cert-file", "", "certificate served by the management endpoint")
	cmd.Flags().StringVar(&serverFlags.TLSKeyFile, "tls-key-file", "", "private key of the management endpoint certificate")
	cmd.Flags().BoolVar(&serverFlags.CreateTUN, "create-tun", false, "create the tun interface before configuring it")
}

// runServer blocks until ctx is cancelled or one of the listeners fails
func runServer(ctx context.Context, path string, flags ServerFlags) error {
	if err := flags.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if !util.IsAdmin() {
		log.Warnf("not running as root, device changes will likely fail")
	}

	log.Infof("loading configuration from %s", path)
	cfg, err := config.LoadServerConfig(path)
	if err != nil {
		return err
	}

	// key problems surface before the device is touched
	sealed, err := encryption.SealPrivateKey(cfg.Interface.PrivateKey)
	if err != nil {
		return fmt.Errorf("interface private key: %w", err)
	}
	cfg.Interface.PrivateKey = ""

	pubKey, err := sealed.PublicKey()
	if err != nil {
		return fmt.Errorf("interface private key: %w", err)
	}
	log.Infof("server public key: %s", pubKey)

	var tlsConfig *tls.Config
	if flags.TLSCertFile != "" {
		tlsConfig, err = encryption.LoadTLSConfig(flags.TLSCertFile, flags.TLSKeyFile)
		if err != nil {
			return err
		}
	}

	metricsServer, err := metrics.NewServer(flags.MetricsPort, "")
	if err != nil {
		return fmt.Errorf("setup metrics: %w", err)
	}

	opts := []server.Option{
		server.WithMeter(metricsServer.Meter),
		server.WithDeviceDriver(flags.DeviceDriver, device.Options{
			Timeout:  flags.CommandTimeout,
			PoolSize: flags.DevicePoolSize,
		}),
	}
	if flags.NoRollback {
		opts = append(opts, server.WithoutRollback())
	}
	if flags.CreateTUN {
		opts = append(opts, server.WithTUN(device.OpenTUN))
	}

	srv, err := server.New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	var mgmtServer *http.Server
	if flags.ManagementAddr != "" {
		mgmtServer = &http.Server{
			Addr:              flags.ManagementAddr,
			Handler:           mgmt.NewHandler(srv),
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	if err := srv.Start(ctx); err != nil {
		_ = metricsServer.Shutdown(context.Background())
		return fmt.Errorf("start server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("running metrics server: %s%s", metricsServer.Addr, metricsServer.Endpoint)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	if mgmtServer != nil {
		g.Go(func() error {
			log.Infof("running management endpoint: %s", mgmtServer.Addr)
			var err error
			if mgmtServer.TLSConfig != nil {
				err = mgmtServer.ListenAndServeTLS("", "")
			} else {
				err = mgmtServer.ListenAndServe()
			}
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("management endpoint: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Infof("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return shutdownServers(shutdownCtx, srv, mgmtServer, metricsServer)
	})

	return g.Wait()
}

func shutdownServers(ctx context.Context, srv *server.Server, mgmtServer *http.Server, metricsServer *metrics.Metrics) error {
	var errs error

	if mgmtServer != nil {
		if err := mgmtServer.Shutdown(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to close management endpoint: %w", err))
		}
	}

	if err := srv.Stop(ctx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("failed to stop server: %w", err))
	}

	if err := metricsServer.Shutdown(ctx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("failed to close metrics server: %w", err))
	}

	return errs
}

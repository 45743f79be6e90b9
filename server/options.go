package server

import (
	"io"

	"go.opentelemetry.io/otel/metric"

	"github.com/tunnelcore/tunnelcore/iface/device"
)

// Option configures a Server
type Option func(*Server)

// WithDevice replaces the device controller built from the configuration
func WithDevice(d device.Controller) Option {
	return func(s *Server) {
		s.device = d
	}
}

// WithDeviceDriver selects the driver and tuning used to build the device controller
func WithDeviceDriver(driver string, opts device.Options) Option {
	return func(s *Server) {
		s.driver = driver
		s.deviceOpts = opts
	}
}

// WithEngine attaches a datapath engine that runs while the server is started
func WithEngine(e Engine) Option {
	return func(s *Server) {
		s.engine = e
	}
}

// WithoutRollback leaves partially applied device changes in place when Start fails
func WithoutRollback() Option {
	return func(s *Server) {
		s.rollback = false
	}
}

// WithMeter exports peer and device metrics through meter
func WithMeter(meter metric.Meter) Option {
	return func(s *Server) {
		s.meter = meter
	}
}

// WithTUN creates the tunnel interface with open before the device is configured and
// closes it after the device was cleaned up. device.OpenTUN is the kernel implementation.
func WithTUN(open func(name string) (io.Closer, error)) Option {
	return func(s *Server) {
		s.openTUN = open
	}
}

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"

	"github.com/tunnelcore/tunnelcore/encryption"
	"github.com/tunnelcore/tunnelcore/iface/device"
	"github.com/tunnelcore/tunnelcore/server/config"
	"github.com/tunnelcore/tunnelcore/server/metrics"
	"github.com/tunnelcore/tunnelcore/server/peer"
	"github.com/tunnelcore/tunnelcore/shared/status"
)

// Server owns the tunnel device and the transport socket of one interface.
// The peer registry is shared with concurrent readers and writers for the lifetime of the Server.
type Server struct {
	mu sync.Mutex

	cfg     config.InterfaceConfig
	peers   *peer.Registry
	device  device.Controller
	metrics *metrics.Metrics

	driver     string
	deviceOpts device.Options
	meter      metric.Meter
	rollback   bool

	openTUN func(name string) (io.Closer, error)
	tun     io.Closer

	engine       Engine
	engineCancel context.CancelFunc
	engineDone   chan error

	conn    net.PacketConn
	started bool
}

// New materializes the peers and prepares the device controller. Nothing on the host is touched.
func New(cfg *config.ServerConfig, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, status.Errorf(status.InvalidArgument, "server config is required")
	}

	s := &Server{
		cfg:      cfg.Interface,
		peers:    peer.NewRegistry(cfg.Peers),
		rollback: true,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, p := range s.peers.List() {
		log.Infof("loaded peer: %s", p.Summary())
	}

	if s.meter != nil {
		m, err := metrics.NewMetrics(s.meter, s.peers)
		if err != nil {
			return nil, status.Wrap(status.Internal, err, "failed to register metrics")
		}
		s.metrics = m
		if s.deviceOpts.Observer == nil {
			s.deviceOpts.Observer = m.ObserveDeviceCommand
		}
	}

	if s.device == nil {
		d, err := device.New(s.driver, s.cfg.Name, s.cfg.Address, s.deviceOpts)
		if err != nil {
			return nil, err
		}
		s.device = d
	}

	return s, nil
}

// Start configures the device in the order address, up, forwarding, routes and binds the
// transport socket. The first failure aborts the sequence. Applied steps are undone unless
// the server was built WithoutRollback.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return status.ErrAlreadyStarted
	}

	log.Infof("starting server on port %d", s.cfg.ListenPort)

	var undo []undoStep
	if err := s.setupDevice(ctx, &undo); err != nil {
		s.undo(ctx, undo)
		return err
	}

	conn, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", s.cfg.ListenPort))
	if err != nil {
		s.undo(ctx, undo)
		return status.Wrap(status.Network, err, "failed to bind socket")
	}
	s.conn = conn
	s.started = true

	if s.engine != nil {
		s.startEngine()
	}

	log.Infof("server started, listening on %s", conn.LocalAddr())
	return nil
}

type undoStep struct {
	name string
	fn   func(context.Context) error
}

func (s *Server) setupDevice(ctx context.Context, undo *[]undoStep) error {
	log.Infof("setting up device: %s", s.device.Name())

	if s.openTUN != nil && s.tun == nil {
		tun, err := s.openTUN(s.device.Name())
		if err != nil {
			return err
		}
		s.tun = tun
		*undo = append(*undo, undoStep{name: "close tun", fn: func(context.Context) error {
			return s.closeTUN()
		}})
	}

	if err := s.device.SetAddress(ctx); err != nil {
		return err
	}
	*undo = append(*undo, undoStep{name: "remove address", fn: s.device.RemoveAddress})

	if err := s.device.Up(ctx); err != nil {
		return err
	}
	*undo = append(*undo, undoStep{name: "down", fn: s.device.Down})

	// host wide setting, never reverted
	if err := s.device.EnableForwarding(ctx); err != nil {
		return err
	}

	for _, cidr := range s.peers.AllowedIPs() {
		cidr := cidr
		if err := s.device.AddRoute(ctx, cidr); err != nil {
			return err
		}
		*undo = append(*undo, undoStep{
			name: "remove route " + cidr,
			fn: func(ctx context.Context) error {
				return s.device.RemoveRoute(ctx, cidr)
			},
		})
	}

	log.Infof("device %s configured", s.device.Name())
	return nil
}

// undo reverts applied steps in reverse order. Failures are only logged.
func (s *Server) undo(ctx context.Context, steps []undoStep) {
	if !s.rollback || len(steps) == 0 {
		return
	}

	ctx = context.WithoutCancel(ctx)
	var merr *multierror.Error
	for i := len(steps) - 1; i >= 0; i-- {
		if err := steps[i].fn(ctx); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", steps[i].name, err))
		}
	}

	if err := status.FormatErrorOrNil(merr); err != nil {
		log.Warnf("rollback after failed start incomplete: %v", err)
	}
}

func (s *Server) startEngine() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	s.engineCancel = cancel
	s.engineDone = done

	go func(conn net.PacketConn) {
		err := s.engine.Run(ctx, conn, s.peers)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("engine stopped: %v", err)
		}
		done <- err
	}(s.conn)
}

// Stop reverses the device setup: routes, down, address, then closes the tun interface when
// the server created one. Every step runs even if a previous one failed; failures are logged
// as warnings. Stop can be called on a server that never started.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Infof("stopping server")

	if s.engineCancel != nil {
		s.engineCancel()
		select {
		case <-s.engineDone:
		case <-ctx.Done():
			log.Warnf("engine did not stop in time: %v", ctx.Err())
		}
		s.engineCancel = nil
		s.engineDone = nil
	}

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			log.Warnf("failed to close socket: %v", err)
		}
		s.conn = nil
	}

	s.cleanupDevice(ctx)

	if err := s.closeTUN(); err != nil {
		log.Warnf("failed to close tun interface: %v", err)
	}

	if w, ok := s.device.(device.Waiter); ok {
		if err := w.Wait(ctx); err != nil {
			log.Warnf("device operations still running after stop: %v", err)
		}
	}

	s.started = false

	log.Infof("server stopped")
	return nil
}

func (s *Server) cleanupDevice(ctx context.Context) {
	log.Infof("cleaning up device: %s", s.device.Name())

	var merr *multierror.Error
	for _, cidr := range s.peers.AllowedIPs() {
		if err := s.device.RemoveRoute(ctx, cidr); err != nil {
			log.Warnf("failed to remove route %s: %v", cidr, err)
			merr = multierror.Append(merr, err)
		}
	}

	if err := s.device.Down(ctx); err != nil {
		log.Warnf("failed to bring device down: %v", err)
		merr = multierror.Append(merr, err)
	}

	if err := s.device.RemoveAddress(ctx); err != nil {
		log.Warnf("failed to remove address: %v", err)
		merr = multierror.Append(merr, err)
	}

	if merr.ErrorOrNil() != nil {
		log.Warnf("device cleanup finished with %d warning(s)", merr.Len())
		return
	}
	log.Infof("device cleanup completed")
}

func (s *Server) closeTUN() error {
	if s.tun == nil {
		return nil
	}
	err := s.tun.Close()
	s.tun = nil
	return err
}

// Started reports whether Start succeeded and Stop was not called since
func (s *Server) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// LocalAddr returns the address of the bound transport socket
func (s *Server) LocalAddr() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, status.ErrNotStarted
	}
	return s.conn.LocalAddr(), nil
}

// Peers returns a copy of all peers in config order
func (s *Server) Peers() []peer.Peer {
	return s.peers.List()
}

// Peer returns a copy of one peer
func (s *Server) Peer(publicKey string) (peer.Peer, error) {
	return s.peers.Get(publicKey)
}

// UpdatePeerStatus changes the status of a peer. An unknown key yields a status.NotFound error.
func (s *Server) UpdatePeerStatus(publicKey string, st peer.ConnStatus) error {
	if err := s.peers.SetStatus(publicKey, st); err != nil {
		return err
	}
	log.Infof("updated peer status: %s -> %s", encryption.ShortKey(publicKey), st)
	return nil
}

// Stats returns a live aggregate over all peers
func (s *Server) Stats() peer.Stats {
	return s.peers.Snapshot()
}

// Device returns the device controller
func (s *Server) Device() device.Controller {
	return s.device
}

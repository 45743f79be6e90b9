package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/tunnelcore/tunnelcore/iface/device"
	"github.com/tunnelcore/tunnelcore/server/config"
	"github.com/tunnelcore/tunnelcore/server/peer"
	"github.com/tunnelcore/tunnelcore/shared/status"
)

var errCommand = status.Errorf(status.Device, "command failed: exit status 2")

type fakeDevice struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]bool
}

func newFakeDevice(failOn ...string) *fakeDevice {
	d := &fakeDevice{failOn: make(map[string]bool)}
	for _, f := range failOn {
		d.failOn[f] = true
	}
	return d
}

func (d *fakeDevice) record(call string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
	if d.failOn[call] {
		return errCommand
	}
	return nil
}

func (d *fakeDevice) recorded() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDevice) Name() string {
	return "wg0"
}

func (d *fakeDevice) Address() string {
	return "10.8.0.1/24"
}

func (d *fakeDevice) Up(context.Context) error {
	return d.record("up")
}

func (d *fakeDevice) Down(context.Context) error {
	return d.record("down")
}

func (d *fakeDevice) SetAddress(context.Context) error {
	return d.record("set_address")
}

func (d *fakeDevice) RemoveAddress(context.Context) error {
	return d.record("remove_address")
}

func (d *fakeDevice) EnableForwarding(context.Context) error {
	return d.record("enable_forwarding")
}

func (d *fakeDevice) DisableForwarding(context.Context) error {
	return d.record("disable_forwarding")
}

func (d *fakeDevice) AddRoute(_ context.Context, cidr string) error {
	return d.record("add_route " + cidr)
}

func (d *fakeDevice) RemoveRoute(_ context.Context, cidr string) error {
	return d.record("remove_route " + cidr)
}

func testConfig(peers int) *config.ServerConfig {
	cfg := &config.ServerConfig{
		Interface: config.InterfaceConfig{
			Name:       "wg0",
			PrivateKey: "cHJpdmF0ZQ==",
			Address:    "10.8.0.1/24",
			ListenPort: 0,
		},
	}
	for i := 0; i < peers; i++ {
		cfg.Peers = append(cfg.Peers, config.PeerConfig{
			PublicKey:  fmt.Sprintf("peer-key-%d", i),
			AllowedIPs: fmt.Sprintf("10.8.0.%d/32", i+2),
		})
	}
	return cfg
}

func newTestServer(t *testing.T, cfg *config.ServerConfig, d *fakeDevice, opts ...Option) *Server {
	t.Helper()
	s, err := New(cfg, append([]Option{WithDevice(d)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Stop(context.Background())
	})
	return s
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	assert.True(t, status.Is(err, status.InvalidArgument))

	s, err := New(testConfig(2))
	require.NoError(t, err)
	assert.Equal(t, "wg0", s.Device().Name())
	assert.Equal(t, "10.8.0.1/24", s.Device().Address())
	assert.Len(t, s.Peers(), 2)
	assert.False(t, s.Started())

	_, err = New(testConfig(0), WithDeviceDriver("bogus", device.Options{}))
	require.Error(t, err)
}

func TestServer_StartOrder(t *testing.T) {
	d := newFakeDevice()
	s := newTestServer(t, testConfig(2), d)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Started())

	assert.Equal(t, []string{
		"set_address",
		"up",
		"enable_forwarding",
		"add_route 10.8.0.2/32",
		"add_route 10.8.0.3/32",
	}, d.recorded())

	addr, err := s.LocalAddr()
	require.NoError(t, err)
	udpAddr, ok := addr.(*net.UDPAddr)
	require.True(t, ok)
	assert.NotZero(t, udpAddr.Port)
	assert.True(t, udpAddr.IP.IsUnspecified())
}

func TestServer_StartTwice(t *testing.T) {
	s := newTestServer(t, testConfig(1), newFakeDevice())

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), status.ErrAlreadyStarted)
}

func TestServer_StartFailsOnSecondRoute(t *testing.T) {
	d := newFakeDevice("add_route 10.8.0.3/32")
	s := newTestServer(t, testConfig(3), d, WithoutRollback())

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errCommand)
	assert.True(t, status.Is(err, status.Device))
	assert.False(t, s.Started())

	_, err = s.LocalAddr()
	assert.ErrorIs(t, err, status.ErrNotStarted)

	assert.Equal(t, []string{
		"set_address",
		"up",
		"enable_forwarding",
		"add_route 10.8.0.2/32",
		"add_route 10.8.0.3/32",
	}, d.recorded(), "remaining routes must not be attempted")
}

func TestServer_StartRollback(t *testing.T) {
	d := newFakeDevice("add_route 10.8.0.3/32", "down")
	s := newTestServer(t, testConfig(3), d)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errCommand)

	assert.Equal(t, []string{
		"set_address",
		"up",
		"enable_forwarding",
		"add_route 10.8.0.2/32",
		"add_route 10.8.0.3/32",
		"remove_route 10.8.0.2/32",
		"down",
		"remove_address",
	}, d.recorded())
}

func TestServer_StartFailsOnAddress(t *testing.T) {
	d := newFakeDevice("set_address")
	s := newTestServer(t, testConfig(1), d)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"set_address"}, d.recorded())
}

func TestServer_StartFailsOnBind(t *testing.T) {
	busy, err := net.ListenPacket("udp4", "0.0.0.0:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig(1)
	cfg.Interface.ListenPort = uint16(busy.LocalAddr().(*net.UDPAddr).Port)

	d := newFakeDevice()
	s := newTestServer(t, cfg, d)

	err = s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, status.Is(err, status.Network))
	assert.False(t, s.Started())
	assert.Equal(t, []string{
		"set_address",
		"up",
		"enable_forwarding",
		"add_route 10.8.0.2/32",
		"remove_route 10.8.0.2/32",
		"down",
		"remove_address",
	}, d.recorded())
}

func TestServer_StopIsBestEffort(t *testing.T) {
	d := newFakeDevice("remove_route 10.8.0.2/32", "down")
	s, err := New(testConfig(2), WithDevice(d))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.Started())

	assert.Equal(t, []string{
		"set_address",
		"up",
		"enable_forwarding",
		"add_route 10.8.0.2/32",
		"add_route 10.8.0.3/32",
		"remove_route 10.8.0.2/32",
		"remove_route 10.8.0.3/32",
		"down",
		"remove_address",
	}, d.recorded())

	_, err = s.LocalAddr()
	assert.ErrorIs(t, err, status.ErrNotStarted)
}

func TestServer_RestartAfterStop(t *testing.T) {
	s := newTestServer(t, testConfig(1), newFakeDevice())

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Started())
}

func TestServer_PeerOperations(t *testing.T) {
	s := newTestServer(t, testConfig(3), newFakeDevice())

	require.NoError(t, s.UpdatePeerStatus("peer-key-1", peer.StatusConnected))

	p, err := s.Peer("peer-key-1")
	require.NoError(t, err)
	assert.Equal(t, peer.StatusConnected, p.Status)
	assert.NotZero(t, p.LastHandshake)

	err = s.UpdatePeerStatus("missing", peer.StatusConnected)
	require.Error(t, err)
	assert.True(t, status.Is(err, status.NotFound))
	assert.False(t, status.Is(err, status.Device))

	assert.Equal(t, peer.Stats{TotalPeers: 3, ConnectedPeers: 1}, s.Stats())
}

func TestServer_QueriesDoNotWaitForDevice(t *testing.T) {
	blocking := &blockingDevice{fakeDevice: newFakeDevice(), release: make(chan struct{}), entered: make(chan struct{})}
	s, err := New(testConfig(1), WithDevice(blocking))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- s.Start(context.Background())
	}()
	<-blocking.entered

	queried := make(chan struct{})
	go func() {
		_ = s.Stats()
		_ = s.UpdatePeerStatus("peer-key-0", peer.StatusHandshaking)
		close(queried)
	}()

	select {
	case <-queried:
	case <-time.After(2 * time.Second):
		t.Fatal("peer queries blocked by a pending device command")
	}

	close(blocking.release)
	require.NoError(t, <-done)
	require.NoError(t, s.Stop(context.Background()))
}

type blockingDevice struct {
	*fakeDevice
	entered chan struct{}
	release chan struct{}
}

func (d *blockingDevice) SetAddress(ctx context.Context) error {
	close(d.entered)
	<-d.release
	return d.fakeDevice.SetAddress(ctx)
}

type fakeEngine struct {
	running chan net.PacketConn
	stopped chan struct{}
}

func (e *fakeEngine) Run(ctx context.Context, conn net.PacketConn, peers PeerStateUpdater) error {
	e.running <- conn
	if err := peers.SetStatus("peer-key-0", peer.StatusConnected); err != nil {
		return err
	}
	if err := peers.RecordTraffic("peer-key-0", 10, 20); err != nil {
		return err
	}
	<-ctx.Done()
	close(e.stopped)
	return ctx.Err()
}

func TestServer_Engine(t *testing.T) {
	engine := &fakeEngine{running: make(chan net.PacketConn, 1), stopped: make(chan struct{})}
	s, err := New(testConfig(1), WithDevice(newFakeDevice()), WithEngine(engine))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))

	conn := <-engine.running
	addr, err := s.LocalAddr()
	require.NoError(t, err)
	assert.Equal(t, addr.String(), conn.LocalAddr().String())

	require.Eventually(t, func() bool {
		return s.Stats().TotalBytesSent == 20
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.Stats().ConnectedPeers)

	require.NoError(t, s.Stop(context.Background()))

	select {
	case <-engine.stopped:
	default:
		t.Fatal("engine still running after stop")
	}
}

func TestServer_MetricsObserveDevice(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() {
		_ = provider.Shutdown(context.Background())
	}()

	cmd := &okCommander{}
	s, err := New(testConfig(2),
		WithMeter(provider.Meter("test")),
		WithDeviceDriver(device.DriverExec, device.Options{Commander: cmd}),
	)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
			if m.Name == "tunnelcore_peers" {
				gauge, ok := m.Data.(metricdata.Gauge[int64])
				require.True(t, ok)
				assert.Equal(t, int64(2), gauge.DataPoints[0].Value)
			}
		}
	}
	assert.True(t, found["tunnelcore_device_command_duration"])
	assert.True(t, found["tunnelcore_peers"])
	assert.Equal(t, 9, cmd.count())
}

type okCommander struct {
	mu    sync.Mutex
	calls int
}

func (c *okCommander) CombinedOutput(context.Context, string, ...string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil, nil
}

func (c *okCommander) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeTUN struct {
	d *fakeDevice
}

func (t fakeTUN) Close() error {
	return t.d.record("close_tun")
}

func openFakeTUN(d *fakeDevice) func(string) (io.Closer, error) {
	return func(name string) (io.Closer, error) {
		if err := d.record("open_tun " + name); err != nil {
			return nil, err
		}
		return fakeTUN{d: d}, nil
	}
}

func TestServer_TUNLifecycle(t *testing.T) {
	d := newFakeDevice()
	s := newTestServer(t, testConfig(1), d, WithTUN(openFakeTUN(d)))

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, []string{
		"open_tun wg0",
		"set_address",
		"up",
		"enable_forwarding",
		"add_route 10.8.0.2/32",
		"remove_route 10.8.0.2/32",
		"down",
		"remove_address",
		"close_tun",
	}, d.recorded())
}

func TestServer_TUNClosedOnRollback(t *testing.T) {
	d := newFakeDevice("up")
	s := newTestServer(t, testConfig(1), d, WithTUN(openFakeTUN(d)))

	err := s.Start(context.Background())
	require.ErrorIs(t, err, errCommand)

	assert.Equal(t, []string{
		"open_tun wg0",
		"set_address",
		"up",
		"remove_address",
		"close_tun",
	}, d.recorded())
}

func TestServer_TUNOpenFailure(t *testing.T) {
	d := newFakeDevice("open_tun wg0")
	s := newTestServer(t, testConfig(1), d, WithTUN(openFakeTUN(d)))

	err := s.Start(context.Background())
	require.ErrorIs(t, err, errCommand)
	assert.Equal(t, []string{"open_tun wg0"}, d.recorded())
	assert.False(t, s.Started())
}

// stuckCommander ignores cancellation on one command line until released
type stuckCommander struct {
	stuck   string
	release chan struct{}
}

func (c *stuckCommander) CombinedOutput(_ context.Context, name string, args ...string) ([]byte, error) {
	if strings.Join(append([]string{name}, args...), " ") == c.stuck {
		<-c.release
		return nil, errors.New("signal: killed")
	}
	return nil, nil
}

func TestServer_StopWaitsForAbandonedDeviceCommands(t *testing.T) {
	cmd := &stuckCommander{stuck: "ip link set dev wg0 up", release: make(chan struct{})}
	s, err := New(testConfig(1), WithDeviceDriver(device.DriverExec, device.Options{
		Commander: cmd,
		Timeout:   20 * time.Millisecond,
		PoolSize:  2,
	}))
	require.NoError(t, err)

	err = s.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	stopped := make(chan error, 1)
	go func() {
		stopped <- s.Stop(context.Background())
	}()

	select {
	case <-stopped:
		t.Fatal("stop returned while a device command was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(cmd.release)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return after the command finished")
	}
}

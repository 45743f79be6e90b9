package metrics

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/tunnelcore/tunnelcore/server/peer"
)

type staticSource peer.Stats

func (s staticSource) Snapshot() peer.Stats {
	return peer.Stats(s)
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	byName := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			byName[m.Name] = m
		}
	}
	return byName
}

func newTestMetrics(t *testing.T, source StatsSource) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	m, err := NewMetrics(provider.Meter("test"), source)
	require.NoError(t, err)
	return m, reader
}

func TestMetrics_PeerGauges(t *testing.T) {
	_, reader := newTestMetrics(t, staticSource{
		TotalPeers:         3,
		ConnectedPeers:     1,
		TotalBytesReceived: 8,
		TotalBytesSent:     3,
	})

	got := collect(t, reader)

	gauge, ok := got["tunnelcore_peers"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(3), gauge.DataPoints[0].Value)

	gauge, ok = got["tunnelcore_peers_connected"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1), gauge.DataPoints[0].Value)

	sum, ok := got["tunnelcore_transfer_bytes_received"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(8), sum.DataPoints[0].Value)

	sum, ok = got["tunnelcore_transfer_bytes_sent"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}

func TestMetrics_TransferCountersSaturate(t *testing.T) {
	_, reader := newTestMetrics(t, staticSource{
		TotalBytesReceived: math.MaxUint64,
		TotalBytesSent:     math.MaxInt64 + 1,
	})

	got := collect(t, reader)

	sum, ok := got["tunnelcore_transfer_bytes_received"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), sum.DataPoints[0].Value)

	sum, ok = got["tunnelcore_transfer_bytes_sent"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), sum.DataPoints[0].Value)
}

func TestMetrics_ObserveDeviceCommand(t *testing.T) {
	m, reader := newTestMetrics(t, staticSource{})

	m.ObserveDeviceCommand("up", 5*time.Millisecond, nil)
	m.ObserveDeviceCommand("add_route", time.Millisecond, errors.New("exit status 2"))

	got := collect(t, reader)

	hist, ok := got["tunnelcore_device_command_duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, hist.DataPoints, 2)

	failures, ok := got["tunnelcore_device_command_failures"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, failures.DataPoints, 1)
	assert.Equal(t, int64(1), failures.DataPoints[0].Value)
	op, _ := failures.DataPoints[0].Attributes.Value("op")
	assert.Equal(t, "add_route", op.AsString())
}

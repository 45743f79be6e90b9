package metrics

import (
	"context"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tunnelcore/tunnelcore/server/peer"
)

// StatsSource provides a live peer aggregate
type StatsSource interface {
	Snapshot() peer.Stats
}

// Metrics exports peer state and device command timings
type Metrics struct {
	metric.Meter

	commandDuration metric.Float64Histogram
	commandFailures metric.Int64Counter
}

// NewMetrics registers the instruments. Peer gauges are computed from source on every collection.
func NewMetrics(meter metric.Meter, source StatsSource) (*Metrics, error) {
	peers, err := meter.Int64ObservableGauge("tunnelcore_peers",
		metric.WithDescription("Number of configured peers"))
	if err != nil {
		return nil, err
	}

	connected, err := meter.Int64ObservableGauge("tunnelcore_peers_connected",
		metric.WithDescription("Number of peers in connected state"))
	if err != nil {
		return nil, err
	}

	bytesRecv, err := meter.Int64ObservableCounter("tunnelcore_transfer_bytes_received",
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	bytesSent, err := meter.Int64ObservableCounter("tunnelcore_transfer_bytes_sent",
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	commandDuration, err := meter.Float64Histogram("tunnelcore_device_command_duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of device operations"))
	if err != nil {
		return nil, err
	}

	commandFailures, err := meter.Int64Counter("tunnelcore_device_command_failures")
	if err != nil {
		return nil, err
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			stats := source.Snapshot()
			o.ObserveInt64(peers, int64(stats.TotalPeers))
			o.ObserveInt64(connected, int64(stats.ConnectedPeers))
			o.ObserveInt64(bytesRecv, saturate(stats.TotalBytesReceived))
			o.ObserveInt64(bytesSent, saturate(stats.TotalBytesSent))
			return nil
		},
		peers, connected, bytesRecv, bytesSent,
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Meter:           meter,
		commandDuration: commandDuration,
		commandFailures: commandFailures,
	}, nil
}

// ObserveDeviceCommand records one device operation, it fits device.Observer
func (m *Metrics) ObserveDeviceCommand(op string, took time.Duration, err error) {
	ctx := context.Background()
	opAttr := metric.WithAttributes(attribute.String("op", op))

	m.commandDuration.Record(ctx, took.Seconds(), opAttr)
	if err != nil {
		m.commandFailures.Add(ctx, 1, opAttr)
	}
}

// saturate maps a uint64 counter onto int64, pinning values past MaxInt64
func saturate(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

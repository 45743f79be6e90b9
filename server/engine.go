package server

import (
	"context"
	"net"

	"github.com/tunnelcore/tunnelcore/server/peer"
)

// PeerStateUpdater is the view of the peer registry handed to an Engine
type PeerStateUpdater interface {
	List() []peer.Peer
	SetStatus(publicKey string, s peer.ConnStatus) error
	RecordTraffic(publicKey string, received, sent uint64) error
}

// Engine processes tunnel traffic on the bound socket. Run blocks until ctx is cancelled
// and reports handshakes and byte counts back through peers.
type Engine interface {
	Run(ctx context.Context, conn net.PacketConn, peers PeerStateUpdater) error
}

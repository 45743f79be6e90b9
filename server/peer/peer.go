package peer

import (
	"fmt"
	"net/netip"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tunnelcore/tunnelcore/encryption"
	"github.com/tunnelcore/tunnelcore/server/config"
)

// Peer contains the runtime state of a remote peer.
// Values handed out by the Registry are copies.
type Peer struct {
	PublicKey  string `json:"public_key"`
	AllowedIPs string `json:"allowed_ips"`
	// Endpoint is the zero value when the configured endpoint was absent or invalid
	Endpoint     netip.AddrPort `json:"endpoint"`
	PresharedKey *string        `json:"-"`
	Status       ConnStatus     `json:"status"`
	// LastHandshake is in unix seconds, 0 until the first transition into StatusConnected
	LastHandshake int64  `json:"last_handshake"`
	BytesReceived uint64 `json:"bytes_received"`
	BytesSent     uint64 `json:"bytes_sent"`
}

// NewPeer builds the initial runtime state from the peer configuration
func NewPeer(cfg config.PeerConfig) Peer {
	p := Peer{
		PublicKey:  cfg.PublicKey,
		AllowedIPs: cfg.AllowedIPs,
		Status:     StatusDisconnected,
	}

	if cfg.Endpoint != nil {
		ep, err := netip.ParseAddrPort(*cfg.Endpoint)
		if err != nil {
			log.Debugf("peer %s: ignoring endpoint %q: %v", encryption.ShortKey(cfg.PublicKey), *cfg.Endpoint, err)
		} else {
			p.Endpoint = ep
		}
	}

	if cfg.PSK != nil {
		psk := *cfg.PSK
		p.PresharedKey = &psk
	}

	return p
}

// HasEndpoint reports whether the peer has a resolved endpoint
func (p Peer) HasEndpoint() bool {
	return p.Endpoint.IsValid()
}

// LastHandshakeTime returns the zero time when no handshake happened yet
func (p Peer) LastHandshakeTime() time.Time {
	if p.LastHandshake == 0 {
		return time.Time{}
	}
	return time.Unix(p.LastHandshake, 0)
}

// Summary renders a one-line human-readable description
func (p Peer) Summary() string {
	endpoint := "none"
	if p.HasEndpoint() {
		endpoint = p.Endpoint.String()
	}
	return fmt.Sprintf("%s (%s) via %s: %s, rx %d B, tx %d B",
		encryption.ShortKey(p.PublicKey), p.AllowedIPs, endpoint, p.Status, p.BytesReceived, p.BytesSent)
}

package peer

import (
	"slices"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tunnelcore/tunnelcore/encryption"
	"github.com/tunnelcore/tunnelcore/server/config"
	"github.com/tunnelcore/tunnelcore/shared/status"
)

// Stats is a live aggregate over all peers. It is never stored.
type Stats struct {
	TotalPeers         int    `json:"total_peers"`
	ConnectedPeers     int    `json:"connected_peers"`
	TotalBytesReceived uint64 `json:"total_bytes_received"`
	TotalBytesSent     uint64 `json:"total_bytes_sent"`
}

// Registry holds the peer runtime state. Peers are created once in config order and never removed.
// Duplicate public keys are kept, lookups resolve to the first occurrence.
type Registry struct {
	mux   sync.RWMutex
	peers []Peer
	index map[string]int
	now   func() time.Time
}

// NewRegistry creates one disconnected peer per config entry
func NewRegistry(cfgs []config.PeerConfig) *Registry {
	r := &Registry{
		peers: make([]Peer, 0, len(cfgs)),
		index: make(map[string]int, len(cfgs)),
		now:   time.Now,
	}

	for _, cfg := range cfgs {
		if _, ok := r.index[cfg.PublicKey]; ok {
			log.Warnf("duplicate peer public key %s, only the first entry will receive updates", encryption.ShortKey(cfg.PublicKey))
		} else {
			r.index[cfg.PublicKey] = len(r.peers)
		}
		r.peers = append(r.peers, NewPeer(cfg))
	}

	return r
}

// SetStatus changes the status of the peer with the exact public key.
// The handshake time is set only when the new status is StatusConnected.
func (r *Registry) SetStatus(publicKey string, s ConnStatus) error {
	r.mux.Lock()
	defer r.mux.Unlock()

	i, ok := r.index[publicKey]
	if !ok {
		return status.NewPeerNotFoundError(publicKey)
	}

	p := &r.peers[i]
	if p.Status != s {
		log.Debugf("peer %s status changed %s -> %s", encryption.ShortKey(publicKey), p.Status, s)
	}
	p.Status = s
	if s == StatusConnected {
		p.LastHandshake = r.now().Unix()
	}
	return nil
}

// RecordTraffic adds to the byte counters of a peer
func (r *Registry) RecordTraffic(publicKey string, received, sent uint64) error {
	r.mux.Lock()
	defer r.mux.Unlock()

	i, ok := r.index[publicKey]
	if !ok {
		return status.NewPeerNotFoundError(publicKey)
	}

	r.peers[i].BytesReceived += received
	r.peers[i].BytesSent += sent
	return nil
}

// Snapshot computes the aggregate over the current state
func (r *Registry) Snapshot() Stats {
	r.mux.RLock()
	defer r.mux.RUnlock()

	stats := Stats{TotalPeers: len(r.peers)}
	for _, p := range r.peers {
		if p.Status == StatusConnected {
			stats.ConnectedPeers++
		}
		stats.TotalBytesReceived += p.BytesReceived
		stats.TotalBytesSent += p.BytesSent
	}
	return stats
}

// List returns a copy of all peers in config order
func (r *Registry) List() []Peer {
	r.mux.RLock()
	defer r.mux.RUnlock()

	peers := slices.Clone(r.peers)
	for i := range peers {
		peers[i].PresharedKey = clonePSK(peers[i].PresharedKey)
	}
	return peers
}

// Get returns a copy of the peer with the exact public key
func (r *Registry) Get(publicKey string) (Peer, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()

	i, ok := r.index[publicKey]
	if !ok {
		return Peer{}, status.NewPeerNotFoundError(publicKey)
	}

	p := r.peers[i]
	p.PresharedKey = clonePSK(p.PresharedKey)
	return p, nil
}

// AllowedIPs returns the allowed-ip range of every peer in config order, duplicates included
func (r *Registry) AllowedIPs() []string {
	r.mux.RLock()
	defer r.mux.RUnlock()

	ips := make([]string, 0, len(r.peers))
	for _, p := range r.peers {
		ips = append(ips, p.AllowedIPs)
	}
	return ips
}

// Len returns the number of peers
func (r *Registry) Len() int {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return len(r.peers)
}

func clonePSK(psk *string) *string {
	if psk == nil {
		return nil
	}
	v := *psk
	return &v
}

package http

import (
	"github.com/tunnelcore/tunnelcore/server/peer"
)

// PeerResponse is the JSON view of a peer. The preshared key is never exposed.
type PeerResponse struct {
	PublicKey     string `json:"public_key"`
	AllowedIPs    string `json:"allowed_ips"`
	Endpoint      string `json:"endpoint,omitempty"`
	Status        string `json:"status"`
	LastHandshake int64  `json:"last_handshake"`
	BytesReceived uint64 `json:"bytes_received"`
	BytesSent     uint64 `json:"bytes_sent"`
}

// StatusRequest is the body of a peer status update
type StatusRequest struct {
	Status string `json:"status"`
}

func toPeerResponse(p peer.Peer) PeerResponse {
	resp := PeerResponse{
		PublicKey:     p.PublicKey,
		AllowedIPs:    p.AllowedIPs,
		Status:        p.Status.String(),
		LastHandshake: p.LastHandshake,
		BytesReceived: p.BytesReceived,
		BytesSent:     p.BytesSent,
	}
	if p.HasEndpoint() {
		resp.Endpoint = p.Endpoint.String()
	}
	return resp
}

package peer

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/tunnelcore/tunnelcore/shared/status"
)

const (
	// StatusDisconnected indicate the peer has no session
	StatusDisconnected ConnStatus = iota
	// StatusHandshaking indicate a handshake with the peer is in progress
	StatusHandshaking
	// StatusConnected indicate the peer completed a handshake
	StatusConnected
)

// ConnStatus describe the status of a peer's connection.
// Any transition between the values is permitted.
type ConnStatus int32

func (s ConnStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusHandshaking:
		return "Handshaking"
	case StatusConnected:
		return "Connected"
	default:
		log.Errorf("unknown status: %d", s)
		return "INVALID_PEER_CONNECTION_STATUS"
	}
}

// ParseConnStatus accepts the String() form in any letter case
func ParseConnStatus(s string) (ConnStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disconnected":
		return StatusDisconnected, nil
	case "handshaking":
		return StatusHandshaking, nil
	case "connected":
		return StatusConnected, nil
	default:
		return StatusDisconnected, status.Errorf(status.InvalidArgument, "unknown peer status %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (s ConnStatus) MarshalText() ([]byte, error) {
	switch s {
	case StatusDisconnected, StatusHandshaking, StatusConnected:
		return []byte(strings.ToLower(s.String())), nil
	default:
		return nil, fmt.Errorf("unknown status: %d", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *ConnStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseConnStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

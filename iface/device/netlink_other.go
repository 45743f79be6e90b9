//go:build !linux || android

package device

import (
	"github.com/tunnelcore/tunnelcore/shared/status"
)

// NetlinkDevice is only available on linux
type NetlinkDevice struct {
	*CommandDevice
}

func NewNetlinkDevice(string, string, Options) (*NetlinkDevice, error) {
	return nil, status.Errorf(status.Device, "the %s driver is only supported on linux", DriverNetlink)
}

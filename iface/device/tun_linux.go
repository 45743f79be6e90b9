//go:build linux && !android

package device

import (
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/songgao/water"

	"github.com/tunnelcore/tunnelcore/shared/status"
)

// OpenTUN creates the kernel TUN interface name. The interface exists until the returned
// closer is closed, it is not persisted.
func OpenTUN(name string) (io.Closer, error) {
	cfg := water.Config{
		DeviceType: water.TUN,
		PlatformSpecificParams: water.PlatformSpecificParams{
			Name: name,
		},
	}

	iface, err := water.New(cfg)
	if err != nil {
		return nil, status.Wrap(status.Device, err, "failed to create tun interface %s", name)
	}
	log.Infof("created tun interface %s", iface.Name())
	return iface, nil
}

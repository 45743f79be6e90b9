//go:build !linux || android

package device

import (
	"io"

	"github.com/tunnelcore/tunnelcore/shared/status"
)

func OpenTUN(name string) (io.Closer, error) {
	return nil, status.Errorf(status.Device, "creating tun interface %s is only supported on linux", name)
}

package util

import (
	"os"
)

// IsAdmin returns true if the process runs as root, which changing interfaces and routes requires.
// Always false on platforms without uids.
func IsAdmin() bool {
	return os.Geteuid() == 0
}

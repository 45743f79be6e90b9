package version

import (
	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"
)

// set with -ldflags "-X github.com/tunnelcore/tunnelcore/version.version=x.y.z"
var version = "development"

// TunnelcoreVersion returns the version of the running binary
func TunnelcoreVersion() string {
	return version
}

// Compatible reports whether a peer binary of the given version shares our major version.
// Development builds and unparsable versions are treated as compatible.
func Compatible(other string) bool {
	local, err := goversion.NewVersion(version)
	if err != nil {
		return true
	}

	remote, err := goversion.NewVersion(other)
	if err != nil {
		log.Debugf("unparsable remote version %q: %v", other, err)
		return true
	}

	return local.Segments()[0] == remote.Segments()[0]
}

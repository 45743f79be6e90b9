package encryption

import (
	"crypto/tls"
	"crypto/x509"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tunnelcore/tunnelcore/shared/status"
)

// certRenewWarning is how close to expiry a management certificate starts producing warnings
const certRenewWarning = 14 * 24 * time.Hour

// LoadTLSConfig loads the management endpoint certificate and key. The leaf must be
// inside its validity window. TLS 1.2 is the minimum accepted version.
func LoadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	return loadTLSConfig(certFile, keyFile, time.Now())
}

func loadTLSConfig(certFile, keyFile string, now time.Time) (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, status.Wrap(status.Config, err, "failed to load TLS certificate %s", certFile)
	}

	leaf := pair.Leaf
	if leaf == nil {
		if leaf, err = x509.ParseCertificate(pair.Certificate[0]); err != nil {
			return nil, status.Wrap(status.Config, err, "failed to parse TLS certificate %s", certFile)
		}
		pair.Leaf = leaf
	}

	switch {
	case now.Before(leaf.NotBefore):
		return nil, status.Errorf(status.Config, "TLS certificate %s is not valid before %s", certFile, leaf.NotBefore.Format(time.RFC3339))
	case now.After(leaf.NotAfter):
		return nil, status.Errorf(status.Config, "TLS certificate %s expired at %s", certFile, leaf.NotAfter.Format(time.RFC3339))
	case leaf.NotAfter.Sub(now) < certRenewWarning:
		log.Warnf("TLS certificate %s for %q expires at %s", certFile, leaf.Subject.CommonName, leaf.NotAfter.Format(time.RFC3339))
	default:
		log.Debugf("loaded TLS certificate %s for %q, valid until %s", certFile, leaf.Subject.CommonName, leaf.NotAfter.Format(time.RFC3339))
	}

	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"h2", "http/1.1"},
		// TLS 1.3 suites are not configurable, this list applies to 1.2 only
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}, nil
}

package encryption

import (
	"encoding/base64"

	"golang.org/x/crypto/curve25519"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/tunnelcore/tunnelcore/shared/status"
)

// KeySize is the length in bytes of every private, public and preshared key.
const KeySize = wgtypes.KeyLen

// GenerateKeyPair creates a new Curve25519 private key from the system CSPRNG and
// returns it together with its public key, both in standard base64.
func GenerateKeyPair() (privateKey, publicKey string, err error) {
	key, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return "", "", status.Wrap(status.Crypto, err, "generate private key")
	}

	return key.String(), key.PublicKey().String(), nil
}

// GeneratePresharedKey returns 32 random bytes encoded in standard base64.
func GeneratePresharedKey() (string, error) {
	key, err := wgtypes.GenerateKey()
	if err != nil {
		return "", status.Wrap(status.Crypto, err, "generate preshared key")
	}
	return key.String(), nil
}

// DecodePrivateKey decodes a base64 private key. Only the encoding and the length are checked.
func DecodePrivateKey(encoded string) ([KeySize]byte, error) {
	return decodeKey("private", encoded)
}

// DecodePublicKey decodes a base64 public key. No curve point validation is performed.
func DecodePublicKey(encoded string) ([KeySize]byte, error) {
	return decodeKey("public", encoded)
}

// DerivePublicKey returns the base64 public key for a base64 private key.
func DerivePublicKey(privateKey string) (string, error) {
	raw, err := DecodePrivateKey(privateKey)
	if err != nil {
		return "", err
	}

	// X25519 clamps the scalar itself
	pub, err := curve25519.X25519(raw[:], curve25519.Basepoint)
	if err != nil {
		return "", status.Wrap(status.Crypto, err, "derive public key")
	}

	return base64.StdEncoding.EncodeToString(pub), nil
}

func decodeKey(kind, encoded string) ([KeySize]byte, error) {
	var key [KeySize]byte

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return key, status.Wrap(status.Crypto, err, "failed to decode %s key", kind)
	}

	if len(decoded) != KeySize {
		return key, status.Errorf(status.Crypto, "%s key must be %d bytes, got %d", kind, KeySize, len(decoded))
	}

	copy(key[:], decoded)
	return key, nil
}

// ShortKey returns the first 8 characters of an encoded key for log output.
func ShortKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8]
}

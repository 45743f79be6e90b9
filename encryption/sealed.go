package encryption

import (
	"encoding/base64"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/curve25519"

	"github.com/tunnelcore/tunnelcore/shared/status"
)

// SealedKey keeps a decoded private key in an encrypted enclave. The plaintext only
// exists in a locked buffer while PublicKey runs.
type SealedKey struct {
	enclave *memguard.Enclave
}

// SealPrivateKey decodes a base64 private key and moves it into an enclave.
// The decoded bytes are wiped once sealed.
func SealPrivateKey(encoded string) (*SealedKey, error) {
	raw, err := DecodePrivateKey(encoded)
	if err != nil {
		return nil, err
	}

	// NewEnclave wipes its argument
	return &SealedKey{enclave: memguard.NewEnclave(raw[:])}, nil
}

// PublicKey derives the base64 public key of the sealed private key.
func (k *SealedKey) PublicKey() (string, error) {
	if k == nil || k.enclave == nil {
		return "", status.Errorf(status.Crypto, "private key is not sealed")
	}

	buf, err := k.enclave.Open()
	if err != nil {
		return "", status.Wrap(status.Crypto, err, "open sealed private key")
	}
	defer buf.Destroy()

	pub, err := curve25519.X25519(buf.Bytes(), curve25519.Basepoint)
	if err != nil {
		return "", status.Wrap(status.Crypto, err, "derive public key")
	}

	return base64.StdEncoding.EncodeToString(pub), nil
}

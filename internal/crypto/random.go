package crypto

import (
	"crypto/rand"
	"fmt"
)

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return b, nil
}

// RandomKey returns a fresh random AES-256 key.
func RandomKey() ([]byte, error) {
	return RandomBytes(AESKeySize)
}

// RandomNonce returns a fresh random 96-bit AES-GCM nonce.
func RandomNonce() ([]byte, error) {
	return RandomBytes(AESNonceSize)
}

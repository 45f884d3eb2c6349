package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey derives a key of the requested length using HKDF-SHA-256.
// The extract step runs HMAC over salt keyed by secret; the expand step
// binds the fixed context label passed as info.
func DeriveKey(secret, salt, info []byte, length int) ([]byte, error) {
	if len(salt) == 0 {
		salt = make([]byte, sha256.Size)
	}

	reader := hkdf.New(sha256.New, secret, salt, info)
	key := make([]byte, length)

	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	return key, nil
}

// DeriveDeviceKey turns authenticator PRF output and a random salt into an
// AES-256 device key bound to the DeviceKeyContext label.
func DeriveDeviceKey(prfOutput, salt []byte) ([]byte, error) {
	return DeriveKey(prfOutput, salt, []byte(DeviceKeyContext), AESKeySize)
}

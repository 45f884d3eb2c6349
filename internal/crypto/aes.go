package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(key), AESKeySize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	return cipher.NewGCM(block)
}

// NewAEAD returns an AES-256-GCM AEAD for key. Callers that seal many
// chunks under one key should build this once instead of paying the key
// schedule per chunk.
func NewAEAD(key []byte) (cipher.AEAD, error) {
	return newGCM(key)
}

// Encrypt encrypts plaintext with AES-256-GCM under a fresh random nonce.
// Returns: nonce (12 bytes) || ciphertext || tag (16 bytes).
func Encrypt(key, plaintext []byte) ([]byte, error) {
	nonce, err := RandomBytes(AESNonceSize)
	if err != nil {
		return nil, err
	}
	return EncryptWithNonce(key, plaintext, nonce)
}

// EncryptWithNonce encrypts plaintext with AES-256-GCM using the caller's
// nonce. The file codec uses this with counter-derived nonces; everything
// else should call Encrypt.
// Returns: nonce (12 bytes) || ciphertext || tag (16 bytes).
func EncryptWithNonce(key, plaintext, nonce []byte) ([]byte, error) {
	if len(nonce) != AESNonceSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidNonceSize, len(nonce), AESNonceSize)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return append(append([]byte{}, nonce...), ciphertext...), nil
}

// Decrypt decrypts a nonce||ciphertext||tag blob produced by Encrypt.
func Decrypt(key, blob []byte) ([]byte, error) {
	if len(blob) < AESNonceSize+AESTagSize {
		return nil, ErrCiphertextTooShort
	}
	return DecryptWithNonce(key, blob[:AESNonceSize], blob[AESNonceSize:])
}

// DecryptWithNonce decrypts a detached ciphertext||tag with an explicit nonce.
func DecryptWithNonce(key, nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != AESNonceSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidNonceSize, len(nonce), AESNonceSize)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

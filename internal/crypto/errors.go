package crypto

import "errors"

var (
	// ErrInvalidKeySize is returned when a key is not AESKeySize bytes.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidNonceSize is returned when a nonce is not AESNonceSize bytes.
	ErrInvalidNonceSize = errors.New("invalid nonce size")

	// ErrCiphertextTooShort is returned when a ciphertext blob is shorter
	// than a nonce plus an authentication tag.
	ErrCiphertextTooShort = errors.New("ciphertext too short")

	// ErrDecryptionFailed is returned when AEAD authentication fails.
	// The ciphertext was tampered with or the key is wrong; the two cases
	// are deliberately indistinguishable.
	ErrDecryptionFailed = errors.New("decryption failed")
)

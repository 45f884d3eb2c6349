package filecrypt

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFormat is returned when the container does not start with
	// the magic header or is too short to hold one.
	ErrInvalidFormat = errors.New("filecrypt: not an encrypted file container")

	// ErrMetadataMismatch is returned when the container's embedded
	// transfer id differs from the metadata's.
	ErrMetadataMismatch = errors.New("filecrypt: transfer id mismatch")

	// ErrIntegrityFailure is returned when the ciphertext checksum does
	// not match the metadata. Nothing is decrypted in that case.
	ErrIntegrityFailure = errors.New("filecrypt: ciphertext checksum mismatch")
)

// DecryptionError reports an AEAD authentication failure at a specific
// chunk. The reconstruction is abandoned; no partial content is returned.
type DecryptionError struct {
	Chunk int
	Err   error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("filecrypt: chunk %d failed to decrypt: %v", e.Chunk, e.Err)
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

package deaddrop

import (
	"errors"
	"fmt"

	"github.com/deaddrop/client-go/internal/filecrypt"
	"github.com/deaddrop/client-go/internal/keyvault"
	"github.com/deaddrop/client-go/internal/relay"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")

	// ErrVaultNotInitialized is returned when the device key has not been set up.
	ErrVaultNotInitialized = errors.New("vault not initialized")

	// ErrContactNotFound is returned when a contact is not found.
	ErrContactNotFound = errors.New("contact not found")

	// ErrGroupNotFound is returned when a group is not found.
	ErrGroupNotFound = errors.New("group not found")

	// ErrMessageNotFound is returned when a message is not found.
	ErrMessageNotFound = errors.New("message not found")

	// ErrInvalidKeyMaterial is returned when key material fails to decode to a
	// valid 256-bit key.
	ErrInvalidKeyMaterial = errors.New("invalid key material")

	// ErrDecryptionFailed is returned when message decryption fails.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrNoAttachment is returned when a message carries no attachment grant of
	// the requested kind.
	ErrNoAttachment = errors.New("message has no attachment")

	// ErrAttachmentExpired is returned when an attachment grant has passed its TTL.
	ErrAttachmentExpired = errors.New("attachment has expired")

	// ErrCredentialNotRegistered is returned when a device-key upgrade is
	// requested but the authenticator has no credential to assert.
	ErrCredentialNotRegistered = errors.New("no credential registered")

	// ErrInvalidFileFormat is returned when a container does not start with the
	// expected magic header.
	ErrInvalidFileFormat = errors.New("not an encrypted file container")

	// ErrFileMetadataMismatch is returned when a container's embedded transfer
	// id does not match its metadata.
	ErrFileMetadataMismatch = errors.New("file metadata mismatch")

	// ErrFileIntegrity is returned when a container's ciphertext checksum does
	// not match its metadata.
	ErrFileIntegrity = errors.New("file integrity check failed")
)

// DeadDropError is implemented by all typed errors in this package.
type DeadDropError interface {
	error
	DeadDropError() // marker method
}

// ValidationError contains one or more input validation failures. Validation
// runs before any local mutation, so an operation that returns it has changed
// nothing.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Errors)
}

// DeadDropError implements the DeadDropError interface.
func (e *ValidationError) DeadDropError() {}

// newValidationError builds a ValidationError from the collected failures.
func newValidationError(failures ...string) *ValidationError {
	return &ValidationError{Errors: failures}
}

// CryptoError represents a key import, wrap, unwrap or encryption failure.
// It is never retried automatically.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto error: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CryptoError) Unwrap() error {
	return e.Err
}

// DeadDropError implements the DeadDropError interface.
func (e *CryptoError) DeadDropError() {}

// TransportError represents a relay PUT/GET failure. Delivery failures are
// absorbed by the sync engine as a pending flag; this type only surfaces at
// explicit fetch boundaries.
type TransportError struct {
	StatusCode int
	URL        string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// DeadDropError implements the DeadDropError interface.
func (e *TransportError) DeadDropError() {}

// DecryptionError represents a failure to decrypt a message or file chunk.
type DecryptionError struct {
	Stage string // "message", "record", "file chunk 3", ...
	Err   error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed at %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *DecryptionError) Is(target error) bool {
	return target == ErrDecryptionFailed
}

// DeadDropError implements the DeadDropError interface.
func (e *DecryptionError) DeadDropError() {}

// IntegrityError indicates a corrupted or mismatched file container. The
// operation that raised it produced no partial result.
type IntegrityError struct {
	Reason string
	Err    error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error: %s: %v", e.Reason, e.Err)
}

// Unwrap returns the underlying error.
func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// DeadDropError implements the DeadDropError interface.
func (e *IntegrityError) DeadDropError() {}

// MigrationError indicates a device-key upgrade failed. The previous device
// key and all previously stored ciphertexts remain intact and in use.
type MigrationError struct {
	Err error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("device key migration failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *MigrationError) Unwrap() error {
	return e.Err
}

// DeadDropError implements the DeadDropError interface.
func (e *MigrationError) DeadDropError() {}

// wrapTransportError converts internal relay errors to public errors so that
// errors.Is and errors.As work against the public taxonomy.
func wrapTransportError(err error) error {
	if err == nil {
		return nil
	}

	var relayErr *relay.Error
	if errors.As(err, &relayErr) {
		return &TransportError{
			StatusCode: relayErr.StatusCode,
			Err:        err,
		}
	}

	var netErr *relay.NetworkError
	if errors.As(err, &netErr) {
		return &TransportError{
			URL: netErr.URL,
			Err: err,
		}
	}

	return &TransportError{Err: err}
}

// wrapVaultError converts internal keyvault errors to public errors.
func wrapVaultError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, keyvault.ErrNotInitialized) {
		return ErrVaultNotInitialized
	}
	return &CryptoError{Op: op, Err: err}
}

// wrapFileError converts internal filecrypt errors to the public failure
// taxonomy: header mismatch, transfer id mismatch and checksum mismatch keep
// their sentinel identities under IntegrityError, while per-chunk AEAD
// failures become DecryptionError.
func wrapFileError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, filecrypt.ErrInvalidFormat):
		return &IntegrityError{Reason: "container header", Err: ErrInvalidFileFormat}
	case errors.Is(err, filecrypt.ErrMetadataMismatch):
		return &IntegrityError{Reason: "transfer id", Err: ErrFileMetadataMismatch}
	case errors.Is(err, filecrypt.ErrIntegrityFailure):
		return &IntegrityError{Reason: "ciphertext checksum", Err: ErrFileIntegrity}
	}

	var chunkErr *filecrypt.DecryptionError
	if errors.As(err, &chunkErr) {
		return &DecryptionError{
			Stage: fmt.Sprintf("file chunk %d", chunkErr.Chunk),
			Err:   err,
		}
	}

	return err
}

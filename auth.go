package deaddrop

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/crypto/argon2"

	"github.com/deaddrop/client-go/internal/crypto"
	"github.com/deaddrop/client-go/internal/keyvault"
)

// Authenticator produces the high-entropy secret that upgrades the device
// key. Implementations wrap a platform authenticator's PRF extension or, for
// platforms without one, a passphrase-derived equivalent. The secret itself
// is consumed immediately by the key derivation and never stored.
type Authenticator interface {
	// CredentialRegistered reports whether a credential exists to assert.
	CredentialRegistered(ctx context.Context) (bool, error)

	// Assert runs the authentication ceremony and returns its PRF output.
	Assert(ctx context.Context) ([]byte, error)
}

// PassphraseSaltSize is the salt length NewPassphraseAuthenticator requires.
const PassphraseSaltSize = 16

// PassphraseAuthenticator derives the PRF output from a passphrase with
// argon2id. It stands in for a platform authenticator where none exists; the
// salt is the caller's to generate once and keep.
type PassphraseAuthenticator struct {
	passphrase string
	salt       []byte
}

// NewPassphraseAuthenticator builds a passphrase-backed Authenticator.
func NewPassphraseAuthenticator(passphrase string, salt []byte) (*PassphraseAuthenticator, error) {
	if passphrase == "" {
		return nil, newValidationError("passphrase must not be empty")
	}
	if len(salt) != PassphraseSaltSize {
		return nil, newValidationError(fmt.Sprintf("salt must be %d bytes", PassphraseSaltSize))
	}
	return &PassphraseAuthenticator{passphrase: passphrase, salt: slices.Clone(salt)}, nil
}

// GeneratePassphraseSalt returns a fresh random salt for
// NewPassphraseAuthenticator.
func GeneratePassphraseSalt() ([]byte, error) {
	salt, err := crypto.RandomBytes(PassphraseSaltSize)
	if err != nil {
		return nil, &CryptoError{Op: "generate salt", Err: err}
	}
	return salt, nil
}

// CredentialRegistered always reports true: the passphrase is the credential.
func (a *PassphraseAuthenticator) CredentialRegistered(ctx context.Context) (bool, error) {
	return true, nil
}

// Assert stretches the passphrase with argon2id into PRF-grade output.
func (a *PassphraseAuthenticator) Assert(ctx context.Context) ([]byte, error) {
	return argon2.IDKey([]byte(a.passphrase), a.salt, 1<<16, 8, 1, crypto.AESKeySize), nil
}

// UpgradeDeviceKey migrates the vault from the standard device key to one
// derived from the authenticator's PRF output, re-encrypting every protected
// record. The migration is all or nothing: the vault applies it so that a
// crash leaves storage fully on the old key, never mixed. Safe to call again
// after a failure.
//
// Contact keys come out of the migration byte-identical, only re-wrapped, so
// derived addresses and message history are unaffected.
func (c *Client) UpgradeDeviceKey(ctx context.Context, auth Authenticator) error {
	if err := c.checkClosed(); err != nil {
		return err
	}

	registered, err := auth.CredentialRegistered(ctx)
	if err != nil {
		return fmt.Errorf("check credential: %w", err)
	}
	if !registered {
		return ErrCredentialNotRegistered
	}

	prf, err := auth.Assert(ctx)
	if err != nil {
		return fmt.Errorf("assert credential: %w", err)
	}

	if err := c.vault.UpgradeDeviceKey(ctx, prf); err != nil {
		switch {
		case errors.Is(err, keyvault.ErrNotInitialized):
			return ErrVaultNotInitialized
		case errors.Is(err, keyvault.ErrMissingEntropy):
			return newValidationError("authenticator returned no PRF output")
		default:
			return &MigrationError{Err: err}
		}
	}

	c.logger.Info("device key upgraded to authenticator-derived key")
	return nil
}

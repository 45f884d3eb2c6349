package deaddrop

import (
	"context"
	"fmt"

	"github.com/deaddrop/client-go/internal/crypto"
)

// GenerateKeyMaterial returns fresh random key material in the export
// encoding, ready to hand to a peer out of band.
func GenerateKeyMaterial() (string, error) {
	key, err := crypto.RandomKey()
	if err != nil {
		return "", &CryptoError{Op: "generate key material", Err: err}
	}
	return crypto.ToBase64URL(key), nil
}

// ParseKeyMaterial decodes exported key material back into raw key bytes,
// rejecting anything that is not a full-length key.
func ParseKeyMaterial(material string) ([]byte, error) {
	raw, err := crypto.FromBase64URL(material)
	if err != nil {
		return nil, fmt.Errorf("%w: not valid base64url", ErrInvalidKeyMaterial)
	}
	if len(raw) != crypto.AESKeySize {
		return nil, fmt.Errorf("%w: need %d key bytes, got %d", ErrInvalidKeyMaterial, crypto.AESKeySize, len(raw))
	}
	return raw, nil
}

// ExportContactKey returns the contact's shared key in the export encoding.
// The string is exactly what GenerateKeyMaterial produces and what AddContact
// accepts on the peer's side; QR rendering and other sharing surfaces pass it
// through unmodified.
func (c *Client) ExportContactKey(ctx context.Context, contactID string) (string, error) {
	if err := c.checkClosed(); err != nil {
		return "", err
	}
	contact, err := c.loadContact(ctx, contactID)
	if err != nil {
		return "", err
	}
	entry, err := c.contactKeyEntry(ctx, contact)
	if err != nil {
		return "", err
	}
	return crypto.ToBase64URL(entry.raw), nil
}

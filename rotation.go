package deaddrop

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/deaddrop/client-go/internal/addressing"
	"github.com/deaddrop/client-go/internal/crypto"
)

// RotationResult reports what a key rotation did to the message log.
type RotationResult struct {
	// Reencrypted is the number of messages rewritten under the new key.
	Reencrypted int
	// Skipped is the number of messages left untouched because they did not
	// decrypt under the old key. Their ciphertext is preserved as-is.
	Skipped int
}

// RotateContactKey replaces the shared key for a contact with newKeyMaterial
// agreed out-of-band, re-encrypting the stored history so it stays readable.
// The ceremony is ordered so a crash never strands the history: the new key
// is wrapped first, every message keyed to the contact is rewritten under it,
// and only then does the contact record switch over and the old key get
// deleted. Messages that no longer decrypt under the old key are skipped and
// counted rather than destroyed.
//
// Both peers must rotate with the same material; the generator/receiver roles
// and therefore the derived addresses carry over unchanged.
func (c *Client) RotateContactKey(ctx context.Context, contactID, newKeyMaterial string) (*RotationResult, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	newKey, err := ParseKeyMaterial(newKeyMaterial)
	if err != nil {
		return nil, err
	}

	unlock := c.lockContact(contactID)
	defer unlock()

	contact, err := c.loadContact(ctx, contactID)
	if err != nil {
		return nil, err
	}
	entry, err := c.contactKeyEntry(ctx, contact)
	if err != nil {
		return nil, err
	}

	oldKeyID := contact.KeyID
	newKeyID := uuid.NewString()
	if err := c.vault.WrapKey(ctx, newKeyID, newKey); err != nil {
		return nil, wrapVaultError("wrap rotated key", err)
	}

	result, err := c.reencryptMessages(ctx, contactID, entry.raw, newKey)
	if err != nil {
		_ = c.vault.DeleteKey(ctx, newKeyID)
		return nil, err
	}

	contact.KeyID = newKeyID
	if err := c.persistContact(ctx, contact); err != nil {
		_ = c.vault.DeleteKey(ctx, newKeyID)
		return nil, err
	}

	record := addressing.DeriveRecord(contact.UserGeneratedKey, newKey)
	c.keys.evict(oldKeyID)
	c.keys.put(newKeyID, &cachedKey{
		raw:        newKey,
		putAddress: record.PutAddress,
		getAddress: record.GetAddress,
	})

	if err := c.vault.DeleteKey(ctx, oldKeyID); err != nil {
		c.logger.Warn("old key record not removed", "contact", contactID, "error", err)
	}

	c.logger.Info("contact key rotated",
		"contact", contactID,
		"reencrypted", result.Reencrypted,
		"skipped", result.Skipped)
	return result, nil
}

// ReEncryptForKeyChange rewrites every stored message keyed to contactID from
// oldKey to newKey without touching the contact record. It is the history
// half of a rotation, exposed for flows that manage key records themselves.
func (c *Client) ReEncryptForKeyChange(ctx context.Context, contactID string, oldKey, newKey []byte) (*RotationResult, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if len(oldKey) != crypto.AESKeySize || len(newKey) != crypto.AESKeySize {
		return nil, fmt.Errorf("%w: keys must be %d bytes", ErrInvalidKeyMaterial, crypto.AESKeySize)
	}

	unlock := c.lockContact(contactID)
	defer unlock()

	return c.reencryptMessages(ctx, contactID, oldKey, newKey)
}

// reencryptMessages walks the whole log and rewrites the messages whose key
// convention points at contactID. That covers direct messages in both
// directions, group copies pinned to the contact and contextual messages
// from them. Undecryptable messages are preserved and counted; a rotation
// must never be the thing that destroys history.
func (c *Client) reencryptMessages(ctx context.Context, contactID string, oldKey, newKey []byte) (*RotationResult, error) {
	messages, err := c.listMessages(ctx)
	if err != nil {
		return nil, err
	}

	result := &RotationResult{}
	for _, msg := range messages {
		if msg.keyContactID() != contactID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		core := msg.Core()
		blob, err := decodeCiphertext(core.Ciphertext)
		if err != nil {
			result.Skipped++
			continue
		}
		plaintext, err := crypto.Decrypt(oldKey, blob)
		if err != nil {
			result.Skipped++
			continue
		}
		sealed, err := crypto.Encrypt(newKey, plaintext)
		if err != nil {
			return nil, &CryptoError{Op: "re-encrypt message", Err: err}
		}
		core.Ciphertext = encodeCiphertext(sealed)
		if err := c.persistMessage(ctx, msg); err != nil {
			return nil, err
		}
		result.Reencrypted++
	}
	return result, nil
}

package keyvault

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deaddrop/client-go/internal/crypto"
)

// wrappedKeyRecord is the persisted shape of a wrapped contact key: the
// AES-GCM IV and the detached ciphertext-plus-tag, both base64url. Older
// records are instead a single encrypted base64url string of the raw key;
// UnwrapKey upgrades those in place when it meets one.
type wrappedKeyRecord struct {
	IV      string `json:"iv"`
	Wrapped string `json:"wrapped"`
}

// WrapKey encrypts raw under the device key with a fresh IV and persists the
// wrapped record under id.
func (v *Vault) WrapKey(ctx context.Context, id string, raw []byte) error {
	if len(raw) != crypto.AESKeySize {
		return fmt.Errorf("wrap key %s: %w", id, crypto.ErrInvalidKeySize)
	}

	key, err := v.currentKey()
	if err != nil {
		return err
	}

	value, err := wrapWithKey(key, raw)
	if err != nil {
		return fmt.Errorf("wrap key %s: %w", id, err)
	}
	if err := v.store.Set(ctx, bucketKeys, id, value); err != nil {
		return fmt.Errorf("persist wrapped key %s: %w", id, err)
	}
	return nil
}

// UnwrapKey loads and unwraps the key stored under id. Legacy records are
// decrypted directly under the device key and re-persisted in the wrapped
// format on the way out.
func (v *Vault) UnwrapKey(ctx context.Context, id string) ([]byte, error) {
	key, err := v.currentKey()
	if err != nil {
		return nil, err
	}

	value, err := v.store.Get(ctx, bucketKeys, id)
	if err != nil {
		return nil, fmt.Errorf("load key record %s: %w", id, err)
	}

	raw, legacy, err := unwrapWithKey(key, value)
	if err != nil {
		return nil, fmt.Errorf("unwrap key %s: %w", id, err)
	}

	if legacy {
		// Best effort; the legacy record still decrypts if this write fails.
		if fresh, err := wrapWithKey(key, raw); err == nil {
			_ = v.store.Set(ctx, bucketKeys, id, fresh)
		}
	}

	return raw, nil
}

// DeleteKey removes the wrapped key stored under id.
func (v *Vault) DeleteKey(ctx context.Context, id string) error {
	if err := v.store.Delete(ctx, bucketKeys, id); err != nil {
		return fmt.Errorf("delete key record %s: %w", id, err)
	}
	return nil
}

func wrapWithKey(deviceKey, raw []byte) ([]byte, error) {
	iv, err := crypto.RandomNonce()
	if err != nil {
		return nil, err
	}
	sealed, err := crypto.EncryptWithNonce(deviceKey, raw, iv)
	if err != nil {
		return nil, err
	}

	return json.Marshal(wrappedKeyRecord{
		IV:      crypto.ToBase64URL(iv),
		Wrapped: crypto.ToBase64URL(sealed[crypto.AESNonceSize:]),
	})
}

// unwrapWithKey recovers raw key bytes from either record shape. legacy
// reports that the value was in the old encrypted-string format and should
// be re-persisted.
func unwrapWithKey(deviceKey, value []byte) (raw []byte, legacy bool, err error) {
	var record wrappedKeyRecord
	if json.Unmarshal(value, &record) == nil && record.IV != "" && record.Wrapped != "" {
		iv, err := crypto.FromBase64URL(record.IV)
		if err != nil {
			return nil, false, fmt.Errorf("%w: bad iv encoding", ErrInvalidKeyRecord)
		}
		wrapped, err := crypto.FromBase64URL(record.Wrapped)
		if err != nil {
			return nil, false, fmt.Errorf("%w: bad key encoding", ErrInvalidKeyRecord)
		}
		raw, err := crypto.DecryptWithNonce(deviceKey, iv, wrapped)
		if err != nil {
			return nil, false, err
		}
		return raw, false, nil
	}

	// Legacy shape: the whole value is an encrypted base64url string of the
	// raw key.
	plaintext, err := decryptRecordWithKey(deviceKey, value)
	if err != nil {
		return nil, false, err
	}
	raw, err = crypto.FromBase64URL(string(plaintext))
	if err != nil {
		return nil, false, fmt.Errorf("%w: bad legacy key encoding", ErrInvalidKeyRecord)
	}
	if len(raw) != crypto.AESKeySize {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidKeyRecord, crypto.ErrInvalidKeySize)
	}
	return raw, true, nil
}

// Package keyvault manages the device key and everything encrypted under it.
//
// The vault owns two store buckets: "vault" for the device-key record and
// "keys" for wrapped per-contact keys. Callers register the buckets whose
// records the vault encrypts (contacts, groups, messages); those buckets are
// re-encrypted in full when the device key is upgraded.
//
// The device key starts as a random AES-256 key generated on first use (the
// "standard key"). When the authenticator later supplies high-entropy PRF
// output, UpgradeDeviceKey derives a replacement via HKDF and migrates every
// stored record to it.
package keyvault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/deaddrop/client-go/internal/crypto"
	"github.com/deaddrop/client-go/kvstore"
)

const (
	bucketVault = "vault"
	bucketKeys  = "keys"

	deviceKeyID = "device-key"

	keyTypeStandard = "standard"
	keyTypeDerived  = "derived"
)

// deviceKeyRecord is the persisted shape of the device key. Salt is present
// only for derived keys; it is kept so the key's provenance survives a
// restart.
type deviceKeyRecord struct {
	Type string `json:"type"`
	Key  string `json:"key"`
	Salt string `json:"salt,omitempty"`
}

// Vault wraps per-contact keys and encrypts client records under the device
// key. All methods are safe for concurrent use; a device-key upgrade blocks
// every other vault operation until the migration completes.
type Vault struct {
	store         kvstore.Store
	recordBuckets []string

	mu        sync.RWMutex
	deviceKey []byte
	derived   bool
}

// New returns a vault bound to store. recordBuckets names the buckets whose
// values are EncryptRecord output; they are migrated wholesale on device-key
// upgrade. The "vault" and "keys" buckets belong to the vault itself and must
// not be listed.
func New(store kvstore.Store, recordBuckets ...string) *Vault {
	return &Vault{
		store:         store,
		recordBuckets: recordBuckets,
	}
}

// Initialize loads the device key, generating and persisting a fresh random
// standard key if none exists yet. Calling it on an initialized vault is a
// no-op.
func (v *Vault) Initialize(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.deviceKey != nil {
		return nil
	}

	value, err := v.store.Get(ctx, bucketVault, deviceKeyID)
	if errors.Is(err, kvstore.ErrNotFound) {
		return v.createStandardKey(ctx)
	}
	if err != nil {
		return fmt.Errorf("load device key: %w", err)
	}

	var record deviceKeyRecord
	if err := json.Unmarshal(value, &record); err != nil {
		return fmt.Errorf("decode device key record: %w", err)
	}
	key, err := crypto.FromBase64URL(record.Key)
	if err != nil {
		return fmt.Errorf("decode device key: %w", err)
	}
	if len(key) != crypto.AESKeySize {
		return fmt.Errorf("decode device key: %w", crypto.ErrInvalidKeySize)
	}

	v.deviceKey = key
	v.derived = record.Type == keyTypeDerived
	return nil
}

func (v *Vault) createStandardKey(ctx context.Context) error {
	key, err := crypto.RandomKey()
	if err != nil {
		return fmt.Errorf("generate device key: %w", err)
	}

	value, err := json.Marshal(deviceKeyRecord{
		Type: keyTypeStandard,
		Key:  crypto.ToBase64URL(key),
	})
	if err != nil {
		return fmt.Errorf("encode device key record: %w", err)
	}
	if err := v.store.Set(ctx, bucketVault, deviceKeyID, value); err != nil {
		return fmt.Errorf("persist device key: %w", err)
	}

	v.deviceKey = key
	v.derived = false
	return nil
}

// Initialized reports whether the device key has been loaded or created.
func (v *Vault) Initialized() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.deviceKey != nil
}

// Derived reports whether the active device key was derived from
// authenticator entropy rather than generated randomly.
func (v *Vault) Derived() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.derived
}

// currentKey returns a copy of the active device key, failing fast when the
// vault has not been initialized.
func (v *Vault) currentKey() ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.deviceKey == nil {
		return nil, ErrNotInitialized
	}
	key := make([]byte, len(v.deviceKey))
	copy(key, v.deviceKey)
	return key, nil
}

// EncryptRecord encrypts an opaque record payload under the device key. The
// returned value is base64url text suitable for direct storage.
func (v *Vault) EncryptRecord(plaintext []byte) ([]byte, error) {
	key, err := v.currentKey()
	if err != nil {
		return nil, err
	}
	return encryptRecordWithKey(key, plaintext)
}

// DecryptRecord reverses EncryptRecord.
func (v *Vault) DecryptRecord(value []byte) ([]byte, error) {
	key, err := v.currentKey()
	if err != nil {
		return nil, err
	}
	return decryptRecordWithKey(key, value)
}

func encryptRecordWithKey(key, plaintext []byte) ([]byte, error) {
	blob, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypt record: %w", err)
	}
	return []byte(crypto.ToBase64URL(blob)), nil
}

func decryptRecordWithKey(key, value []byte) ([]byte, error) {
	blob, err := crypto.FromBase64URL(string(value))
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	plaintext, err := crypto.Decrypt(key, blob)
	if err != nil {
		return nil, fmt.Errorf("decrypt record: %w", err)
	}
	return plaintext, nil
}

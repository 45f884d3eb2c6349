package keyvault

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deaddrop/client-go/internal/crypto"
	"github.com/deaddrop/client-go/kvstore"
)

// UpgradeDeviceKey derives a new device key from authenticator entropy and
// re-encrypts every stored record under it.
//
// The whole data set is decrypted and re-encrypted in memory before anything
// is written, so a record that fails to decrypt aborts the upgrade with the
// old key and all ciphertexts untouched. Writes go through the store's
// atomic batch path when it offers one; otherwise the device-key record is
// written last, keeping the old key authoritative if an earlier write fails.
// An error return always means the old key is still active.
func (v *Vault) UpgradeDeviceKey(ctx context.Context, prfOutput []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.deviceKey == nil {
		return ErrNotInitialized
	}
	if len(prfOutput) == 0 {
		return ErrMissingEntropy
	}

	salt, err := crypto.RandomBytes(crypto.HKDFSaltSize)
	if err != nil {
		return fmt.Errorf("generate migration salt: %w", err)
	}
	newKey, err := crypto.DeriveDeviceKey(prfOutput, salt)
	if err != nil {
		return fmt.Errorf("derive device key: %w", err)
	}
	oldKey := v.deviceKey

	writes, err := v.reencryptAll(ctx, oldKey, newKey)
	if err != nil {
		return err
	}

	keyValue, err := json.Marshal(deviceKeyRecord{
		Type: keyTypeDerived,
		Key:  crypto.ToBase64URL(newKey),
		Salt: crypto.ToBase64URL(salt),
	})
	if err != nil {
		return fmt.Errorf("encode device key record: %w", err)
	}
	// Last write wins the migration: until it lands, the old key record is
	// still the one a restart loads.
	writes = append(writes, kvstore.Write{Bucket: bucketVault, ID: deviceKeyID, Value: keyValue})

	if err := v.persistMigration(ctx, writes); err != nil {
		return err
	}

	v.deviceKey = newKey
	v.derived = true
	return nil
}

// reencryptAll builds the full set of migrated records in memory: every
// registered record bucket re-encrypted, every stored key re-wrapped. Legacy
// key records come out in the wrapped format.
func (v *Vault) reencryptAll(ctx context.Context, oldKey, newKey []byte) ([]kvstore.Write, error) {
	var writes []kvstore.Write

	for _, bucket := range v.recordBuckets {
		records, err := v.store.List(ctx, bucket)
		if err != nil {
			return nil, fmt.Errorf("list %s records: %w", bucket, err)
		}
		for id, value := range records {
			plaintext, err := decryptRecordWithKey(oldKey, value)
			if err != nil {
				return nil, fmt.Errorf("migrate record %s/%s: %w", bucket, id, err)
			}
			migrated, err := encryptRecordWithKey(newKey, plaintext)
			if err != nil {
				return nil, fmt.Errorf("migrate record %s/%s: %w", bucket, id, err)
			}
			writes = append(writes, kvstore.Write{Bucket: bucket, ID: id, Value: migrated})
		}
	}

	keys, err := v.store.List(ctx, bucketKeys)
	if err != nil {
		return nil, fmt.Errorf("list key records: %w", err)
	}
	for id, value := range keys {
		raw, _, err := unwrapWithKey(oldKey, value)
		if err != nil {
			return nil, fmt.Errorf("migrate key %s: %w", id, err)
		}
		rewrapped, err := wrapWithKey(newKey, raw)
		if err != nil {
			return nil, fmt.Errorf("migrate key %s: %w", id, err)
		}
		writes = append(writes, kvstore.Write{Bucket: bucketKeys, ID: id, Value: rewrapped})
	}

	return writes, nil
}

func (v *Vault) persistMigration(ctx context.Context, writes []kvstore.Write) error {
	if batcher, ok := v.store.(kvstore.Batcher); ok {
		if err := batcher.Apply(ctx, writes); err != nil {
			return fmt.Errorf("persist migration: %w", err)
		}
		return nil
	}

	for _, w := range writes {
		if err := v.store.Set(ctx, w.Bucket, w.ID, w.Value); err != nil {
			return fmt.Errorf("persist migration record %s/%s: %w", w.Bucket, w.ID, err)
		}
	}
	return nil
}

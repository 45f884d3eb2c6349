package keyvault

import "errors"

var (
	// ErrNotInitialized is returned when a vault operation runs before
	// Initialize has loaded or created the device key.
	ErrNotInitialized = errors.New("keyvault: device key not initialized")

	// ErrMissingEntropy is returned when UpgradeDeviceKey is called with
	// empty authenticator output.
	ErrMissingEntropy = errors.New("keyvault: authenticator entropy is empty")

	// ErrInvalidKeyRecord is returned when a stored key record cannot be
	// decoded in either the wrapped or the legacy format.
	ErrInvalidKeyRecord = errors.New("keyvault: invalid key record")
)

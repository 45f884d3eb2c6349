package crypto

const (
	// DeviceKeyContext is the context string used in HKDF expansion when
	// deriving the device key from authenticator PRF output.
	DeviceKeyContext = "deaddrop:device-key:v1"

	// AESKeySize is the size of an AES-256 key in bytes.
	AESKeySize = 32
	// AESNonceSize is the size of an AES-GCM nonce in bytes.
	AESNonceSize = 12
	// AESTagSize is the size of an AES-GCM authentication tag in bytes.
	AESTagSize = 16

	// HKDFSaltSize is the size of the random salt used in the HKDF extract
	// step of device-key derivation.
	HKDFSaltSize = 32
)

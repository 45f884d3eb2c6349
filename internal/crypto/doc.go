// Package crypto provides the cryptographic primitives for the deaddrop
// protocol. It implements authenticated encryption, key derivation, and the
// encodings shared by the vault, the message log, and the file codec.
//
// # Algorithm Suite
//
// The package uses the following cryptographic algorithms:
//
//   - AES-256-GCM: Authenticated encryption with associated data (AEAD)
//     for message payloads, wrapped keys, and file chunks. Provides
//     confidentiality and integrity.
//
//   - HKDF-SHA-256 (RFC 5869): Key derivation for turning authenticator
//     PRF output into the device key, with domain separation via a fixed
//     context label.
//
//   - SHA-256: Content-derived relay addresses and file container checksums.
//
// # Critical Security Notes
//
// AES-GCM nonces MUST be unique for each encryption with the same key. Nonce
// reuse completely breaks the security of AES-GCM, allowing attackers to
// recover the authentication key and forge messages. [Encrypt] draws a fresh
// random nonce per call; the file codec derives per-chunk nonces by counter
// offset from a random base so a chunk nonce never repeats within a key.
//
// Keep raw key bytes secure. They should never be logged, transmitted in
// plaintext, or stored outside the vault's wrapping.
//
// # Base64 Encoding
//
// Two encodings are used and must not be mixed:
//
//   - [ToBase64URL]/[FromBase64URL]: URL-safe base64 without padding
//     (RFC 4648 §5). Used for relay addresses, stored records, and exported
//     key strings.
//
//   - [ToBase64]/[FromBase64]: Standard base64 with padding (RFC 4648 §4).
//     Used for the relay's message field on the wire.
package crypto

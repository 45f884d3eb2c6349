// Package addressing derives relay lookup addresses from shared keys.
//
// An address is the base64url (unpadded) SHA-256 digest of a fixed context
// label concatenated with the raw key bytes. Each contact pair derives two
// addresses from its shared key: one the local device writes to and one it
// polls. Which label backs which direction is decided by whether this device
// generated the key, so the two peers compute complementary addresses with no
// negotiation: what the generator computes as its send address, the importer
// independently computes as its receive address.
//
// Rotating a key changes both addresses; the old ones become permanently
// unreachable, which doubles as a coarse compromise-recovery property.
package addressing

import (
	"crypto/sha256"
	"encoding/base64"
)

// Direction selects which of the two complementary addresses is derived.
type Direction int

const (
	// Send is the address this device writes messages to.
	Send Direction = iota
	// Receive is the address this device polls for incoming messages.
	Receive
)

// Context labels hashed into the two addresses. The generator's send
// address and the importer's receive address share the "key generator"
// label; the opposite pair shares "key receiver".
const (
	labelGenerator = "key generator"
	labelReceiver  = "key receiver"
)

// Record holds both derived addresses for a key.
type Record struct {
	// PutAddress is where outbound messages are stored on the relay.
	PutAddress string
	// GetAddress is where inbound messages are polled from.
	GetAddress string
}

// Derive computes the relay address for one direction of a shared key.
// userGenerated reports whether this device created the key (as opposed to
// importing it from the peer).
func Derive(dir Direction, userGenerated bool, key []byte) string {
	label := labelReceiver
	if (dir == Send) == userGenerated {
		label = labelGenerator
	}

	h := sha256.New()
	h.Write([]byte(label))
	h.Write(key)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// DeriveRecord computes both addresses for a shared key.
func DeriveRecord(userGenerated bool, key []byte) Record {
	return Record{
		PutAddress: Derive(Send, userGenerated, key),
		GetAddress: Derive(Receive, userGenerated, key),
	}
}

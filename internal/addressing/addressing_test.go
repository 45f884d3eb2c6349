package addressing

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	return key
}

func TestDerive_AddressAgreement(t *testing.T) {
	// The generator's send address must equal the importer's receive
	// address and vice versa, for any key.
	for i := 0; i < 16; i++ {
		key := randomKey(t)

		generator := DeriveRecord(true, key)
		importer := DeriveRecord(false, key)

		if generator.PutAddress != importer.GetAddress {
			t.Fatalf("generator put %q != importer get %q", generator.PutAddress, importer.GetAddress)
		}
		if generator.GetAddress != importer.PutAddress {
			t.Fatalf("generator get %q != importer put %q", generator.GetAddress, importer.PutAddress)
		}
	}
}

func TestDerive_DirectionsDiffer(t *testing.T) {
	key := randomKey(t)

	rec := DeriveRecord(true, key)
	if rec.PutAddress == rec.GetAddress {
		t.Error("send and receive addresses must differ for the same key")
	}
}

func TestDerive_Deterministic(t *testing.T) {
	key := randomKey(t)

	a := Derive(Send, true, key)
	b := Derive(Send, true, key)
	if a != b {
		t.Errorf("same inputs derived %q and %q", a, b)
	}
}

func TestDerive_KeySeparation(t *testing.T) {
	a := Derive(Send, true, randomKey(t))
	b := Derive(Send, true, randomKey(t))
	if a == b {
		t.Error("different keys derived the same address")
	}
}

func TestDerive_KnownAnswer(t *testing.T) {
	// Pin the exact construction: SHA-256("key generator" || key),
	// base64url without padding.
	key := []byte("0123456789abcdef0123456789abcdef")

	sum := sha256.Sum256(append([]byte("key generator"), key...))
	want := base64.RawURLEncoding.EncodeToString(sum[:])

	if got := Derive(Send, true, key); got != want {
		t.Errorf("Derive(Send, true) = %q, want %q", got, want)
	}
	if got := Derive(Receive, false, key); got != want {
		t.Errorf("Derive(Receive, false) = %q, want %q", got, want)
	}
}

func TestDerive_Encoding(t *testing.T) {
	addr := Derive(Receive, true, randomKey(t))

	// 32-byte digest encodes to 43 unpadded base64url characters.
	if len(addr) != 43 {
		t.Errorf("address length = %d, want 43", len(addr))
	}
	if strings.ContainsAny(addr, "+/=") {
		t.Errorf("address %q contains non-URL-safe characters", addr)
	}
	if _, err := base64.RawURLEncoding.DecodeString(addr); err != nil {
		t.Errorf("address does not decode as base64url: %v", err)
	}
}

func TestDeriveRecord_RotationChangesBothAddresses(t *testing.T) {
	oldRec := DeriveRecord(true, randomKey(t))
	newRec := DeriveRecord(true, randomKey(t))

	if oldRec.PutAddress == newRec.PutAddress {
		t.Error("rotation left the put address unchanged")
	}
	if oldRec.GetAddress == newRec.GetAddress {
		t.Error("rotation left the get address unchanged")
	}
}

// Package deaddrop implements the client core of a peer-to-peer encrypted
// messaging system built around an untrusted relay.
//
// Two parties exchange a 256-bit symmetric key once out-of-band (typically as
// a QR code). Everything after that flows through a relay that stores only
// opaque ciphertext blobs under content-derived addresses: the relay never
// learns plaintext, names, or which addresses belong to the same
// conversation. Each side derives its send and poll addresses from the shared
// key alone, so no handshake or account exists anywhere.
//
// Basic usage:
//
//	store, err := kvstore.OpenSQLite(dataDir)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	client, err := deaddrop.New("https://relay.example.com", store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Import a key scanned from the peer's QR code.
//	contact, err := client.AddContact(ctx, "alice", "", keyString, false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Send optimistically; delivery retries run in the background.
//	msg, err := client.SendMessage(ctx, contact.ID, "hello")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("pending:", msg.Core().Pending)
//
// All local state (contacts, groups, the message log, wrapped contact keys)
// is encrypted at rest under a device key managed by the client; see
// UpgradeDeviceKey for binding that key to authenticator-derived entropy.
package deaddrop

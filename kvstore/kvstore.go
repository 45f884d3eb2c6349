// Package kvstore defines the record store the client persists its state in.
//
// Values are opaque to the store: the client encrypts every record before it
// is written, so implementations never see plaintext keys or messages. Records
// are grouped into named buckets ("vault", "contacts", "groups", "messages")
// and addressed by a string id within the bucket.
//
// Two implementations ship with the package: Memory for tests and ephemeral
// profiles, and SQLite for durable on-disk storage.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no record exists under the given
// bucket and id.
var ErrNotFound = errors.New("kvstore: record not found")

// Write is one pending mutation inside a batch. A nil Value deletes the
// record instead of storing it.
type Write struct {
	Bucket string
	ID     string
	Value  []byte
}

// Batcher is implemented by stores that can apply several writes as a single
// atomic unit. Callers that need all-or-nothing persistence (device-key
// migration, cascading deletes) should type-assert for it and fall back to
// sequential writes when absent.
type Batcher interface {
	Apply(ctx context.Context, writes []Write) error
}

// Store persists opaque records grouped into named buckets.
//
// Implementations must be safe for concurrent use. Values are stored and
// returned verbatim; callers own encryption and encoding.
type Store interface {
	// Get returns the record stored under bucket/id, or ErrNotFound.
	Get(ctx context.Context, bucket, id string) ([]byte, error)

	// Set stores value under bucket/id, replacing any existing record.
	Set(ctx context.Context, bucket, id string, value []byte) error

	// Delete removes the record under bucket/id. Deleting a record that
	// does not exist is not an error.
	Delete(ctx context.Context, bucket, id string) error

	// List returns every record in bucket, keyed by id. An unknown bucket
	// yields an empty map.
	List(ctx context.Context, bucket string) (map[string][]byte, error)

	// Close releases any resources held by the store.
	Close() error
}

// Package store provides the key/value storage backends for the ledger.
// The in-memory backend serves tests and local dev; LevelDB is the durable
// backend for long-running nodes.
package store

import (
	"context"
	"encoding/hex"
	"errors"
)

// Store is the persistence interface the ledger commits into.
// Programs never touch it directly: every read and write goes through a
// ledger transaction, which flushes its write set as one Batch.
type Store interface {
	// Get returns the value stored under key, or *ErrNotFound.
	Get(key []byte) ([]byte, error)

	// Has reports whether key is present.
	Has(key []byte) (bool, error)

	// Iterate calls fn for every key with the given prefix, in ascending
	// key order, until fn returns false.
	Iterate(prefix []byte, fn func(key, value []byte) bool) error

	// NewBatch returns a write batch applied atomically by Write.
	NewBatch() Batch

	// Ping checks if the backend is usable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// Batch collects writes that are applied together or not at all.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Len() int
	Write() error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested key does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

func notFound(key []byte) error {
	return &ErrNotFound{Entity: "key", Key: hex.EncodeToString(key)}
}

// IsNotFound reports whether err is (or wraps) an *ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

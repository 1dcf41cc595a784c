// Package storage provides database abstractions.
package storage

import "errors"

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("key not found")

// Txn is a read-write view of the database. All operations performed
// through a Txn inside DB.Update commit or fail as one unit.
type Txn interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
}

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	// Update runs fn in a read-write transaction. Writes are applied
	// atomically when fn returns nil and discarded when it returns an error.
	Update(fn func(txn Txn) error) error
	// View runs fn against a consistent read-only snapshot.
	View(fn func(txn Txn) error) error
	Close() error
}

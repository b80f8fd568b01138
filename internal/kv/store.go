package kv

import (
	"context"
	"errors"
)

// Common errors.
var (
	ErrNotFound    = errors.New("key not found")
	ErrStoreClosed = errors.New("kv store is closed")
)

// Store defines durable key/value byte storage.
// Calls are synchronous and there are no transactions.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores or replaces the value for key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys starting with prefix, in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close closes the store.
	Close() error
}

package secretstore

import (
	"context"
	"errors"
)

// ErrNotFound reports that no value is stored under the requested key.
// Callers branch on it to distinguish an absent record from a failing
// backend.
var ErrNotFound = errors.New("secret not found")

// Store reads, writes, and removes named secrets.
type Store interface {
	// Get returns the value stored under key. Returns ErrNotFound if the
	// key has no value.
	Get(ctx context.Context, key string) (string, error)

	// Set persists value under key, overwriting any existing value.
	Set(ctx context.Context, key, value string) error

	// Delete removes the value stored under key. Deleting an absent key is
	// not an error.
	Delete(ctx context.Context, key string) error
}

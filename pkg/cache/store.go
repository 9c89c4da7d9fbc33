package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in the store
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored record is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrStoreUnavailable indicates the backing store could not be opened
	ErrStoreUnavailable = errors.New("cache store unavailable")
)

// Store is a named key->record store that remembers insertion order.
type Store interface {
	// Name returns the store name the store was opened with.
	Name() string

	// Get returns the record for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (*Record, error)

	// Put stores rec under key. Replacing an existing key moves it to the
	// newest position.
	Put(ctx context.Context, key string, rec *Record) error

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Keys lists all keys, oldest first.
	Keys(ctx context.Context) ([]string, error)
}

// Opener opens named stores. Implementations reuse a store per name.
type Opener interface {
	Open(ctx context.Context, name string) (Store, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

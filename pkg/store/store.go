// Package store provides the storage handle orchestrator stages persist
// through. The orchestrator passes a Store to every stage by reference and
// imposes no locking of its own; implementations must be safe for
// concurrent use by independent pipelines.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	gferrors "github.com/vnykmshr/stagehand/pkg/common/errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = gferrors.ErrNotFound

// Store is a key/value storage handle.
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Create stores value under key only if the key does not exist yet.
	// It reports whether the value was stored.
	Create(ctx context.Context, key string, value []byte) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys starting with prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the underlying resources.
	Close() error
}

// PutJSON marshals v and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}

// CreateJSON marshals v and stores it under key if the key is free.
func CreateJSON(ctx context.Context, s Store, key string, v interface{}) (bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.Create(ctx, key, data)
}

// GetJSON loads key and unmarshals it into v.
func GetJSON(ctx context.Context, s Store, key string, v interface{}) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

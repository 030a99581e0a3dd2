// Package storage provides the durable key/value port and the record persisters built on it.
package storage

import (
	"context"
	"errors"
)

// Keys of the values kept in the key/value store.
const (
	KeyExpenses    = "budgeteer-expenses"
	KeyNote        = "budgeteer-note"
	KeyAPIKey      = "budgeteer-api-key"
	KeyDisplayName = "budgeteer-display-name"
	KeyAvatar      = "budgeteer-avatar"
	KeyTheme       = "budgeteer-theme"
)

// ErrMalformed reports a persisted payload that could not be decoded.
var ErrMalformed = errors.New("malformed persisted data")

// KV is a string-keyed store with browser local storage semantics.
type KV interface {
	// Get returns the value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key string) error
}

// Change is one entry of a batch write. Delete removes Key and ignores Value.
type Change struct {
	Key    string
	Value  string
	Delete bool
}

// Batcher is implemented by KVs that can apply several changes atomically:
// either every change is stored or none is.
type Batcher interface {
	WriteBatch(ctx context.Context, changes []Change) error
}

// Package store persists the address→name registry of known hubs.
package store

import (
	"context"
	"fmt"
	"strings"
)

// Store is the persistence collaborator of the hub registry
type Store interface {
	// ReadAll returns every persisted address→name pair. A store that was
	// never written returns an empty map.
	ReadAll(ctx context.Context) (map[string]string, error)

	// WriteAll replaces the persisted contents with names. Readers never
	// observe a partially written set.
	WriteAll(ctx context.Context, names map[string]string) error

	Close() error
}

// PersistenceError reports a failed load or save
type PersistenceError struct {
	Op   string // "read", "write" or "open"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

const (
	DriverYAML   = "yaml"
	DriverSQLite = "sqlite"
)

// Open returns the store for driver rooted at path
func Open(driver, path string) (Store, error) {
	switch strings.ToLower(driver) {
	case DriverYAML, "":
		return NewYAMLStore(path), nil
	case DriverSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, &PersistenceError{Op: "open", Path: path, Err: fmt.Errorf("unknown store driver %q", driver)}
	}
}

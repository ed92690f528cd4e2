// Package sqlite provides the public API for the SQLite store backend.
// This package exposes the factory functions for creating SQLite backends
// while keeping implementation details internal.
package sqlite

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/vetlab/internal/sqlite"
	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// Option configures a backend created by NewBackend or Open.
type Option = sqlite.Option

// WithLogger sets the backend logger.
func WithLogger(l zerolog.Logger) Option { return sqlite.WithLogger(l) }

// WithClock replaces time.Now for timestamps and numbering years.
func WithClock(fn func() time.Time) Option { return sqlite.WithClock(fn) }

// WithRegisterer registers the backend counters with reg.
func WithRegisterer(reg prometheus.Registerer) Option { return sqlite.WithRegisterer(reg) }

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
//
// Example:
//
//	store := sqlite.NewBackend()
//	err := store.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: dir,
//	})
//	defer store.Detach()
func NewBackend(opts ...Option) types.Store {
	return sqlite.NewBackend(opts...)
}

// Open creates a backend and attaches it to dataDir.
func Open(dataDir string, opts ...Option) (types.Store, error) {
	store := sqlite.NewBackend(opts...)
	if err := store.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dataDir}); err != nil {
		return nil, err
	}
	return store, nil
}

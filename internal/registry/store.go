package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// Loader produces the versioned registry document from its source.
type Loader interface {
	Load(ctx context.Context) (Document, error)
}

// Store holds the current registry snapshot behind an atomically swappable
// reference. Readers never observe a half-updated registry: a reload either
// installs a complete new snapshot or leaves the old one serving.
type Store struct {
	current atomic.Pointer[Snapshot]
	loader  Loader
	logger  *slog.Logger
}

// NewStore loads the initial snapshot. A broken document is fatal here; the
// process must not serve decisions without a valid registry.
func NewStore(ctx context.Context, loader Loader, logger *slog.Logger) (*Store, error) {
	if loader == nil {
		return nil, errors.New("registry: loader required")
	}
	doc, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := NewSnapshot(doc)
	if err != nil {
		return nil, err
	}
	s := &Store{loader: loader, logger: logger}
	s.current.Store(snap)
	return s, nil
}

// Snapshot returns the current immutable registry view.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Reload re-reads the source and swaps in the new snapshot atomically.
// On any failure the previous snapshot keeps serving.
func (s *Store) Reload(ctx context.Context) error {
	doc, err := s.loader.Load(ctx)
	if err != nil {
		return err
	}
	snap, err := NewSnapshot(doc)
	if err != nil {
		return err
	}
	old := s.current.Swap(snap)
	if s.logger != nil {
		s.logger.Info("registry reloaded",
			slog.Int64("old_version", old.Version()),
			slog.Int64("new_version", snap.Version()))
	}
	return nil
}

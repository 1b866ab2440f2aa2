// Package configstore is a minimal shim standing in for the persisted
// configuration store that spec.md §6 names only by the interface the
// core consumes: atomic snapshot reads, atomic writes, and an observer
// registration invoked after each successful write. The store itself
// (durability engine, versioning, multi-writer arbitration) is out of
// scope — the controller is the single authoritative writer — so this
// package only needs to give pkg/control something real to depend on
// while it is wired up, development-run, and tested.
package configstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/wayneeseguin/convergent/internal/cerrors"
	"github.com/wayneeseguin/convergent/log"
	"github.com/wayneeseguin/convergent/pkg/tree"
)

// Observer is invoked after every successful Write, mirroring
// `configuration_service.register(self._schedule_broadcast_update)` in
// the original protocol implementation. pkg/control.Service.
// OnConfigurationChanged is the production observer.
type Observer func(tree.Value) error

// Store holds the authoritative Deployment tree on disk, behind an
// in-memory snapshot so Read never blocks on I/O and Write is atomic
// with respect to concurrent readers.
type Store struct {
	path string

	mu        sync.RWMutex
	snapshot  tree.Value
	observers []Observer
}

// New creates a Store backed by path. If path exists, its contents are
// loaded as the initial snapshot; if it does not, the store starts
// empty (an empty tree.Mapping) and the first Write creates it.
func New(path string) (*Store, error) {
	s := &Store{path: path, snapshot: tree.NewMapping(nil)}

	if _, err := os.Stat(path); err == nil {
		v, err := s.load()
		if err != nil {
			return nil, err
		}
		s.snapshot = v
	} else if !os.IsNotExist(err) {
		return nil, cerrors.Wrap(cerrors.Fatal, "statting configuration store path", err)
	}

	return s, nil
}

// Read returns an atomic snapshot of the current Deployment tree. The
// returned value is immutable, so callers may retain it across
// subsequent Writes without racing.
func (s *Store) Read() tree.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Write atomically persists v as the new Deployment tree and then
// invokes every registered observer in turn. A write is only visible to
// Read once the underlying file has been durably renamed into place; an
// observer failure is logged but does not roll back the write, matching
// the original's "the write already happened, the broadcast is best
// effort" semantics.
func (s *Store) Write(v tree.Value) error {
	if err := s.atomicPersist(v); err != nil {
		return err
	}

	s.mu.Lock()
	s.snapshot = v
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, obs := range observers {
		if err := obs(v); err != nil {
			log.NewAction("configstore_observer_failed").With("error", err.Error()).Log()
		}
	}

	return nil
}

// Register adds obs to the set of callbacks invoked after each
// successful Write. Registration order is preserved but not otherwise
// meaningful; observers are expected to be idempotent with respect to
// redundant notifications.
func (s *Store) Register(obs Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
}

// atomicPersist writes data to a temp file in the same directory as
// s.path and renames it into place, so a crash mid-write never leaves a
// truncated configuration document on disk.
func (s *Store) atomicPersist(v tree.Value) error {
	data, err := Encode(v)
	if err != nil {
		return cerrors.Wrap(cerrors.Fatal, "encoding configuration store document", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cerrors.Wrap(cerrors.Fatal, "creating configuration store directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".configstore-*.tmp")
	if err != nil {
		return cerrors.Wrap(cerrors.Fatal, "creating configuration store temp file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return cerrors.Wrap(cerrors.Fatal, "writing configuration store temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return cerrors.Wrap(cerrors.Fatal, "syncing configuration store temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return cerrors.Wrap(cerrors.Fatal, "closing configuration store temp file", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return cerrors.Wrap(cerrors.Fatal, fmt.Sprintf("renaming %s into place", s.path), err)
	}

	return nil
}

// load reads and decodes the document currently on disk at s.path.
func (s *Store) load() (tree.Value, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Fatal, "reading configuration store document", err)
	}
	v, err := Decode(data)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Fatal, "decoding configuration store document", err)
	}
	return v, nil
}

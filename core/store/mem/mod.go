// Package mem provides in-memory implementations of the store abstractions.
//
// The staging snapshot keeps the writes of an execution in an overlay on top
// of a base snapshot. The overlay is flushed to the base only when the
// execution succeeds, so a failed execution leaves the base untouched.
package mem

import (
	"github.com/hoststack/covenant/core/store"
	"golang.org/x/xerrors"
)

// Snapshot is an in-memory implementation of a store snapshot.
//
// - implements store.Snapshot
type Snapshot struct {
	values map[string][]byte
}

// NewSnapshot creates a new empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		values: make(map[string][]byte),
	}
}

// Get implements store.Readable. It returns nil if the key is not set.
func (snap *Snapshot) Get(key []byte) ([]byte, error) {
	return snap.values[string(key)], nil
}

// Set implements store.Writable.
func (snap *Snapshot) Set(key, value []byte) error {
	snap.values[string(key)] = value

	return nil
}

// Delete implements store.Writable.
func (snap *Snapshot) Delete(key []byte) error {
	delete(snap.values, string(key))

	return nil
}

// Staging is a snapshot that records the writes and deletions over a base
// snapshot and applies them only when flushed.
//
// - implements store.Snapshot
type Staging struct {
	base    store.Snapshot
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewStaging creates a new staging snapshot on top of the base.
func NewStaging(base store.Snapshot) *Staging {
	return &Staging{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// Get implements store.Readable. It looks up the overlay first and falls back
// to the base snapshot.
func (s *Staging) Get(key []byte) ([]byte, error) {
	str := string(key)

	if _, ok := s.deletes[str]; ok {
		return nil, nil
	}

	if value, ok := s.writes[str]; ok {
		return value, nil
	}

	value, err := s.base.Get(key)
	if err != nil {
		return nil, xerrors.Errorf("base snapshot: %v", err)
	}

	return value, nil
}

// Set implements store.Writable. The write stays in the overlay until the
// staging snapshot is flushed.
func (s *Staging) Set(key, value []byte) error {
	str := string(key)

	delete(s.deletes, str)
	s.writes[str] = value

	return nil
}

// Delete implements store.Writable.
func (s *Staging) Delete(key []byte) error {
	str := string(key)

	delete(s.writes, str)
	s.deletes[str] = struct{}{}

	return nil
}

// Flush applies the recorded writes and deletions to the base snapshot. The
// overlay is reset afterwards so the staging snapshot can be reused.
func (s *Staging) Flush() error {
	for key := range s.deletes {
		err := s.base.Delete([]byte(key))
		if err != nil {
			return xerrors.Errorf("failed to delete key: %v", err)
		}
	}

	for key, value := range s.writes {
		err := s.base.Set([]byte(key), value)
		if err != nil {
			return xerrors.Errorf("failed to set key: %v", err)
		}
	}

	s.writes = make(map[string][]byte)
	s.deletes = make(map[string]struct{})

	return nil
}

package kv

import "golang.org/x/xerrors"

// Snapshot is a store snapshot backed by a database bucket. It is valid only
// for the lifetime of the database transaction that opened the bucket.
//
// - implements store.Snapshot
type Snapshot struct {
	bucket Bucket
}

// NewSnapshot creates a snapshot over the given bucket.
func NewSnapshot(bucket Bucket) *Snapshot {
	return &Snapshot{bucket: bucket}
}

// Get implements store.Readable.
func (s *Snapshot) Get(key []byte) ([]byte, error) {
	return s.bucket.Get(key), nil
}

// Set implements store.Writable.
func (s *Snapshot) Set(key, value []byte) error {
	err := s.bucket.Set(key, value)
	if err != nil {
		return xerrors.Errorf("bucket failed: %v", err)
	}

	return nil
}

// Delete implements store.Writable.
func (s *Snapshot) Delete(key []byte) error {
	err := s.bucket.Delete(key)
	if err != nil {
		return xerrors.Errorf("bucket failed: %v", err)
	}

	return nil
}

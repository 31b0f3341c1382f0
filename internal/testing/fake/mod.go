// Package fake provides fake implementations for interfaces commonly used in
// the repository. The implementations offer configuration to return errors
// when it is needed by the unit test.
package fake

import (
	"github.com/hoststack/covenant/core/access"
	"github.com/hoststack/covenant/core/store"
	"golang.org/x/xerrors"
)

var fakeErr = xerrors.New("fake error")

// GetError returns the fake error.
func GetError() error {
	return fakeErr
}

// Err returns the expected format of a wrapped fake error.
func Err(msg string) string {
	return msg + ": fake error"
}

// PublicKey is a fake identity.
//
// - implements access.Identity
type PublicKey struct {
	err error
}

// NewBadPublicKey returns an identity that fails to marshal.
func NewBadPublicKey() PublicKey {
	return PublicKey{err: fakeErr}
}

// MarshalText implements encoding.TextMarshaler.
func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte("fake.PublicKey"), pk.err
}

// Equal implements access.Identity.
func (pk PublicKey) Equal(other access.Identity) bool {
	_, ok := other.(PublicKey)

	return ok
}

func (pk PublicKey) String() string {
	return "fake.PublicKey"
}

// AccessService is a fake access service.
//
// - implements access.Service
type AccessService struct {
	err error
}

// NewAccessService returns a new fake access service.
func NewAccessService() AccessService {
	return AccessService{}
}

// NewBadAccessService returns an access service that always returns an error.
func NewBadAccessService() AccessService {
	return AccessService{err: fakeErr}
}

// Match implements access.Service.
func (srvc AccessService) Match(store.Readable, access.Credential, ...access.Identity) error {
	return srvc.err
}

// Grant implements access.Service.
func (srvc AccessService) Grant(store.Snapshot, access.Credential, ...access.Identity) error {
	return srvc.err
}

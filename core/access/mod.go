// Package access defines the interfaces for the access rights control of the
// contracts.
package access

import (
	"encoding"

	"github.com/hoststack/covenant/core/store"
)

// Identity is an abstraction to uniquely identify a caller.
type Identity interface {
	encoding.TextMarshaler

	// Equal returns true when the other identity is the same.
	Equal(other Identity) bool
}

// Address is a plain-text identity provided by the host.
//
// - implements access.Identity
type Address string

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a), nil
}

// Equal implements access.Identity.
func (a Address) Equal(other Identity) bool {
	addr, ok := other.(Address)

	return ok && addr == a
}

func (a Address) String() string {
	return string(a)
}

// Credential is the abstraction of an access right to a rule.
type Credential interface {
	// GetID returns the identifier of the credential.
	GetID() []byte

	// GetRule returns the scope of the credential.
	GetRule() string
}

// Service is an access service that manages the identities allowed to use a
// given credential.
type Service interface {
	// Match returns nil when every identity is allowed for the credential.
	Match(store store.Readable, creds Credential, idents ...Identity) error

	// Grant updates the store so that the identities will match the
	// credential.
	Grant(store store.Snapshot, creds Credential, idents ...Identity) error
}

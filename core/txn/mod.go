// Package txn defines the abstraction of transactions.
//
// A transaction is a contract input. It carries the identity of the caller,
// the value amount attached to value-bearing calls and a set of named
// arguments. It is uniquely identifiable and can be ordered with the nonce
// that acts as a sequence number.
package txn

import "github.com/hoststack/covenant/core/access"

// Transaction is what triggers a contract execution by passing it as part of
// the input.
type Transaction interface {
	// GetID returns the unique identifier for the transaction.
	GetID() []byte

	// GetNonce returns the nonce of the transaction which corresponds to the
	// sequence number of a unique identity.
	GetNonce() uint64

	// GetIdentity returns the identity that created the transaction.
	GetIdentity() access.Identity

	// GetAmount returns the value attached to the transaction. It is zero for
	// calls that do not bear value.
	GetAmount() uint64

	// GetArg is a getter for the arguments of the transaction.
	GetArg(key string) []byte
}

// Arg is a generic argument that can be stored in a transaction.
type Arg struct {
	Key   string
	Value []byte
}

// Manager is a manager to create transactions. It keeps track of the nonce so
// that consecutive transactions are correctly ordered.
type Manager interface {
	Make(args ...Arg) (Transaction, error)
}

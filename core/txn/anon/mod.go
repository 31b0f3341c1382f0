// Package anon implements a plain transaction without a signature. The host
// runtime is trusted to have authenticated the identity beforehand.
package anon

import (
	"github.com/hoststack/covenant/core/access"
	"github.com/hoststack/covenant/core/txn"
	"github.com/rs/xid"
)

// Transaction is a transaction built locally by the host.
//
// - implements txn.Transaction
type Transaction struct {
	id       []byte
	nonce    uint64
	identity access.Identity
	amount   uint64
	args     map[string][]byte
}

// TransactionOption is the type of options to create a transaction.
type TransactionOption func(*Transaction)

// WithArg is an option to set an argument with the key and the value.
func WithArg(key string, value []byte) TransactionOption {
	return func(tx *Transaction) {
		tx.args[key] = value
	}
}

// WithAmount is an option to attach a value amount to the transaction.
func WithAmount(amount uint64) TransactionOption {
	return func(tx *Transaction) {
		tx.amount = amount
	}
}

// NewTransaction creates a new transaction with the provided nonce and
// identity. The identifier is globally unique.
func NewTransaction(nonce uint64, ident access.Identity, opts ...TransactionOption) Transaction {
	tx := Transaction{
		id:       xid.New().Bytes(),
		nonce:    nonce,
		identity: ident,
		args:     make(map[string][]byte),
	}

	for _, opt := range opts {
		opt(&tx)
	}

	return tx
}

// GetID implements txn.Transaction. It returns the ID of the transaction.
func (t Transaction) GetID() []byte {
	return append([]byte{}, t.id...)
}

// GetNonce implements txn.Transaction. It returns the nonce of the
// transaction.
func (t Transaction) GetNonce() uint64 {
	return t.nonce
}

// GetIdentity implements txn.Transaction. It returns the identity of the
// caller.
func (t Transaction) GetIdentity() access.Identity {
	return t.identity
}

// GetAmount implements txn.Transaction. It returns the value attached to the
// transaction.
func (t Transaction) GetAmount() uint64 {
	return t.amount
}

// GetArg implements txn.Transaction. It returns the value of the argument if
// it is set, otherwise nil.
func (t Transaction) GetArg(key string) []byte {
	return t.args[key]
}

// Manager is a manager to create transactions for a single identity. It
// manages the nonce by itself.
//
// - implements txn.Manager
type Manager struct {
	nonce    uint64
	identity access.Identity
}

// NewManager creates a new transaction manager for the identity.
func NewManager(ident access.Identity) *Manager {
	return &Manager{
		identity: ident,
	}
}

// Make implements txn.Manager. It creates a transaction populated with the
// arguments and increments the nonce.
func (mgr *Manager) Make(args ...txn.Arg) (txn.Transaction, error) {
	opts := make([]TransactionOption, len(args))
	for i, arg := range args {
		opts[i] = WithArg(arg.Key, arg.Value)
	}

	tx := NewTransaction(mgr.nonce, mgr.identity, opts...)

	mgr.nonce++

	return tx, nil
}

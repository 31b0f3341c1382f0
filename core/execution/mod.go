// Package execution defines the primitives to execute a transaction against a
// contract.
package execution

import (
	"time"

	"github.com/hoststack/covenant/core/ledger"
	"github.com/hoststack/covenant/core/store"
	"github.com/hoststack/covenant/core/txn"
)

// Step is the smallest unit of execution. It contains the transaction to
// process, the previous transactions of the same batch and the host clock
// value for this call. A contract must never read a local clock; temporal
// checks compare against the step timestamp only.
type Step struct {
	Previous []txn.Transaction
	Current  txn.Transaction

	// Timestamp is the current time provided by the host. It is expected to
	// be monotonically non-decreasing across the calls of an instance.
	Timestamp time.Time
}

// Result is the result of a transaction execution.
type Result struct {
	// Accepted is the success state of the transaction.
	Accepted bool

	// Message gives a chance to the execution to explain why a transaction
	// has failed.
	Message string

	// Transfers contains the value-transfer instructions emitted by an
	// accepted execution, for the host ledger to apply.
	Transfers []ledger.Transfer
}

// Service is the execution service that defines the primitives to execute a
// transaction.
type Service interface {
	// Execute must apply the transaction to the snapshot and return the
	// result of it.
	Execute(snap store.Snapshot, step Step) (Result, error)
}

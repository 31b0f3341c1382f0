// Package fault defines the typed failure conditions shared by the contracts.
//
// All conditions are local and recoverable by the caller: a failed transition
// leaves the instance state completely unchanged, and retrying is a caller
// decision after correcting the violated precondition. The contracts wrap
// these sentinels with context, so callers discriminate with errors.Is.
package fault

import "golang.org/x/xerrors"

var (
	// ErrInvalidParams indicates that a creation parameter violates the
	// divisibility or non-negativity constraints of the variant.
	ErrInvalidParams = xerrors.New("invalid parameters")

	// ErrWindowClosed indicates that the temporal window of the operation is
	// over.
	ErrWindowClosed = xerrors.New("window closed")

	// ErrTooEarly indicates that the temporal window has not elapsed yet.
	ErrTooEarly = xerrors.New("too early")

	// ErrInsufficientAmount indicates that the amount does not exceed the
	// current recorded best value.
	ErrInsufficientAmount = xerrors.New("insufficient amount")

	// ErrWrongAmount indicates that the amount does not match the exact
	// required value.
	ErrWrongAmount = xerrors.New("wrong amount")

	// ErrAlreadyFinalized indicates that the finality flag of the instance is
	// already set.
	ErrAlreadyFinalized = xerrors.New("already finalized")

	// ErrUnauthorized indicates that the caller is not the designated
	// identity for the operation.
	ErrUnauthorized = xerrors.New("unauthorized")

	// ErrAlreadyGranted indicates that the target already holds the
	// capability.
	ErrAlreadyGranted = xerrors.New("already granted")

	// ErrAlreadyVoted indicates that the caller has already exercised the
	// capability.
	ErrAlreadyVoted = xerrors.New("already voted")

	// ErrInvalidProposal indicates a proposal identifier out of the valid
	// range.
	ErrInvalidProposal = xerrors.New("invalid proposal")

	// ErrCyclicDelegation indicates that the delegation chain would revisit
	// the caller.
	ErrCyclicDelegation = xerrors.New("cyclic delegation")

	// ErrDelegationChainTooLong indicates that the delegation chain does not
	// terminate within the participant count.
	ErrDelegationChainTooLong = xerrors.New("delegation chain too long")

	// ErrNotRefundable indicates that the instance has left its initial
	// refundable state.
	ErrNotRefundable = xerrors.New("not refundable")

	// ErrNotPending indicates that the instance is not in the phase the
	// operation expects.
	ErrNotPending = xerrors.New("not pending")
)

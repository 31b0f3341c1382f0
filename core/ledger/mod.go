// Package ledger defines the value-transfer instructions emitted by the
// contracts and a simple account book the host can apply them to.
//
// A contract never moves money itself. It returns the transfer instructions
// as data and the host decides how to apply them, which keeps the state
// machines pure and testable without a real ledger.
package ledger

import "github.com/hoststack/covenant/core/access"

// Transfer is an instruction to move an amount to a recipient. It is emitted
// by a contract execution and applied by the host.
type Transfer struct {
	Recipient access.Identity
	Amount    uint64
}

// NewTransfer creates a new transfer instruction.
func NewTransfer(recipient access.Identity, amount uint64) Transfer {
	return Transfer{
		Recipient: recipient,
		Amount:    amount,
	}
}

package ledger

import (
	"sort"

	"github.com/hoststack/covenant/core/access"
	"golang.org/x/xerrors"
)

// Book is an in-memory account book. The host debits the caller when a
// value-bearing call is accepted and credits the recipients of the transfer
// instructions returned by the execution.
type Book struct {
	balances map[string]uint64
}

// NewBook creates an empty account book.
func NewBook() *Book {
	return &Book{
		balances: make(map[string]uint64),
	}
}

// Credit adds the amount to the holder's balance.
func (b *Book) Credit(holder access.Identity, amount uint64) error {
	name, err := holderName(holder)
	if err != nil {
		return err
	}

	b.balances[name] += amount

	return nil
}

// Debit removes the amount from the holder's balance. It fails when the
// balance is insufficient.
func (b *Book) Debit(holder access.Identity, amount uint64) error {
	name, err := holderName(holder)
	if err != nil {
		return err
	}

	if b.balances[name] < amount {
		return xerrors.Errorf("insufficient balance for '%s'", name)
	}

	b.balances[name] -= amount

	return nil
}

// Apply credits the recipient of each transfer instruction.
func (b *Book) Apply(instructions ...Transfer) error {
	for _, instruction := range instructions {
		err := b.Credit(instruction.Recipient, instruction.Amount)
		if err != nil {
			return xerrors.Errorf("failed to apply transfer: %v", err)
		}
	}

	return nil
}

// Balance returns the current balance of the holder, or zero if the holder is
// unknown.
func (b *Book) Balance(holder access.Identity) uint64 {
	name, err := holderName(holder)
	if err != nil {
		return 0
	}

	return b.balances[name]
}

// Holders returns the sorted list of the account holders.
func (b *Book) Holders() []string {
	holders := make([]string, 0, len(b.balances))
	for name := range b.balances {
		holders = append(holders, name)
	}

	sort.Strings(holders)

	return holders
}

func holderName(holder access.Identity) (string, error) {
	text, err := holder.MarshalText()
	if err != nil {
		return "", xerrors.Errorf("failed to marshal identity: %v", err)
	}

	return string(text), nil
}

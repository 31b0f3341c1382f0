// Package escrow implements a native contract running two-party safe remote
// purchases.
//
// The seller opens an instance by depositing twice the item price. The buyer
// locks the purchase with an equal deposit. Once the buyer confirms reception
// the contract releases the buyer's half of its deposit and the rest to the
// seller. The seller can abort and reclaim the deposit only while no buyer
// has committed.
package escrow

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hoststack/covenant"
	"github.com/hoststack/covenant/contracts/fault"
	"github.com/hoststack/covenant/core/access"
	"github.com/hoststack/covenant/core/execution"
	"github.com/hoststack/covenant/core/execution/native"
	"github.com/hoststack/covenant/core/ledger"
	"github.com/hoststack/covenant/core/store"
	"golang.org/x/xerrors"
)

// commands defines the commands of the escrow contract. This interface helps
// in testing the contract.
type commands interface {
	create(snap store.Snapshot, step execution.Step) error
	abort(snap store.Snapshot, step execution.Step) ([]ledger.Transfer, error)
	purchase(snap store.Snapshot, step execution.Step) error
	confirm(snap store.Snapshot, step execution.Step) ([]ledger.Transfer, error)
	read(snap store.Snapshot, step execution.Step) error
}

const (
	// ContractName is the name of the contract.
	ContractName = "github.com/hoststack/covenant.Escrow"

	// ContractUID is the unique 4-byte identifier of the contract.
	ContractUID = "ESCR"

	// InstanceArg is the argument's name in the transaction that contains the
	// key of the escrow instance.
	InstanceArg = "escrow:instance"

	// CmdArg is the argument's name to indicate the kind of command we want
	// to run on the contract. Should be one of the Command type.
	CmdArg = "escrow:command"

	// credentialAllCommand defines the credential command that is allowed to
	// perform all commands.
	credentialAllCommand = "all"
)

// Command defines a type of command for the escrow contract.
type Command string

const (
	// CmdCreate defines the command to open a new purchase.
	CmdCreate Command = "CREATE"

	// CmdAbort defines the command to cancel the purchase and reclaim the
	// seller's deposit.
	CmdAbort Command = "ABORT"

	// CmdPurchase defines the command to commit as buyer.
	CmdPurchase Command = "PURCHASE"

	// CmdConfirm defines the command to confirm reception and release the
	// funds.
	CmdConfirm Command = "CONFIRM"

	// CmdRead defines a command to display the escrow instance.
	CmdRead Command = "READ"
)

// Status defines the phase of a purchase.
type Status byte

const (
	// Created is the initial phase, waiting for a buyer.
	Created Status = iota

	// Locked is the phase after a buyer committed.
	Locked

	// Inactive is the terminal phase, after an abort or a confirmation.
	Inactive
)

// Escrow is the state record of one purchase instance.
type Escrow struct {
	Seller string `json:"seller"`
	Buyer  string `json:"buyer,omitempty"`
	Price  uint64 `json:"price"`
	Status Status `json:"status"`
}

// GetSeller returns the seller of the purchase.
func (e Escrow) GetSeller() string {
	return e.Seller
}

// GetBuyer returns the buyer, or the empty string while no buyer committed.
func (e Escrow) GetBuyer() string {
	return e.Buyer
}

// GetPrice returns the item price. Each party deposits twice this value.
func (e Escrow) GetPrice() uint64 {
	return e.Price
}

// GetStatus returns the phase of the purchase.
func (e Escrow) GetStatus() Status {
	return e.Status
}

// GetEscrow reads the escrow instance stored under the given key.
func GetEscrow(snap store.Readable, key []byte) (Escrow, error) {
	data, err := snap.Get(key)
	if err != nil {
		return Escrow{}, xerrors.Errorf("failed to get instance: %v", err)
	}

	if len(data) == 0 {
		return Escrow{}, xerrors.Errorf("instance '%s' not found", key)
	}

	escrow := Escrow{}
	err = json.Unmarshal(data, &escrow)
	if err != nil {
		return Escrow{}, xerrors.Errorf("failed to unmarshal instance: %v", err)
	}

	return escrow, nil
}

// NewCreds creates new credentials for an escrow contract execution.
func NewCreds(id []byte) access.Credential {
	return access.NewContractCreds(id, ContractName, credentialAllCommand)
}

// RegisterContract registers the escrow contract to the given execution
// service.
func RegisterContract(exec *native.Service, c Contract) {
	exec.Set(ContractName, c)
}

// Contract is a contract running two-party safe remote purchases.
//
// - implements native.Contract
type Contract struct {
	// access is the access control service managing this contract
	access access.Service

	// accessKey is the access identifier allowed to use this contract
	accessKey []byte

	// cmd provides the commands that can be executed by this contract
	cmd commands

	// printer is the output used by the READ command
	printer io.Writer
}

// NewContract creates a new escrow contract.
func NewContract(aKey []byte, srvc access.Service) Contract {
	contract := Contract{
		access:    srvc,
		accessKey: aKey,
		printer:   infoLog{},
	}

	contract.cmd = escrowCommand{Contract: &contract}

	return contract
}

// Execute implements native.Contract. It runs the appropriate command.
func (c Contract) Execute(snap store.Snapshot, step execution.Step) ([]ledger.Transfer, error) {
	creds := NewCreds(c.accessKey)

	err := c.access.Match(snap, creds, step.Current.GetIdentity())
	if err != nil {
		return nil, xerrors.Errorf("identity not authorized: %v (%v)",
			step.Current.GetIdentity(), err)
	}

	cmd := step.Current.GetArg(CmdArg)
	if len(cmd) == 0 {
		return nil, xerrors.Errorf("'%s' not found in tx arg", CmdArg)
	}

	switch Command(cmd) {
	case CmdCreate:
		err := c.cmd.create(snap, step)
		if err != nil {
			return nil, xerrors.Errorf("failed to CREATE: %w", err)
		}
	case CmdAbort:
		transfers, err := c.cmd.abort(snap, step)
		if err != nil {
			return nil, xerrors.Errorf("failed to ABORT: %w", err)
		}

		return transfers, nil
	case CmdPurchase:
		err := c.cmd.purchase(snap, step)
		if err != nil {
			return nil, xerrors.Errorf("failed to PURCHASE: %w", err)
		}
	case CmdConfirm:
		transfers, err := c.cmd.confirm(snap, step)
		if err != nil {
			return nil, xerrors.Errorf("failed to CONFIRM: %w", err)
		}

		return transfers, nil
	case CmdRead:
		err := c.cmd.read(snap, step)
		if err != nil {
			return nil, xerrors.Errorf("failed to READ: %w", err)
		}
	default:
		return nil, xerrors.Errorf("unknown command: %s", cmd)
	}

	return nil, nil
}

// UID implements native.Contract.
func (c Contract) UID() string {
	return ContractUID
}

// escrowCommand implements the commands of the escrow contract.
//
// - implements commands
type escrowCommand struct {
	*Contract
}

// create implements commands. It opens a new purchase funded by the caller's
// deposit. The deposit must be an even, positive amount; the item price is
// half of it.
func (c escrowCommand) create(snap store.Snapshot, step execution.Step) error {
	key := step.Current.GetArg(InstanceArg)
	if len(key) == 0 {
		return xerrors.Errorf("'%s' not found in tx arg", InstanceArg)
	}

	existing, err := snap.Get(key)
	if err != nil {
		return xerrors.Errorf("failed to get instance: %v", err)
	}

	if len(existing) > 0 {
		return xerrors.Errorf("instance '%s' already exists", key)
	}

	deposit := step.Current.GetAmount()
	if deposit == 0 || deposit%2 != 0 {
		return xerrors.Errorf("deposit %d is not an even positive value: %w",
			deposit, fault.ErrInvalidParams)
	}

	seller, err := callerText(step)
	if err != nil {
		return err
	}

	escrow := Escrow{
		Seller: seller,
		Price:  deposit / 2,
		Status: Created,
	}

	err = saveEscrow(snap, key, escrow)
	if err != nil {
		return err
	}

	covenant.Logger.Info().
		Str("contract", ContractName).
		Msgf("purchase %s open at price %d", key, escrow.Price)

	return nil
}

// abort implements commands. It cancels the purchase and refunds the
// seller's deposit. Only the seller can abort, and only while no buyer has
// committed.
func (c escrowCommand) abort(snap store.Snapshot, step execution.Step) ([]ledger.Transfer, error) {
	key := step.Current.GetArg(InstanceArg)
	if len(key) == 0 {
		return nil, xerrors.Errorf("'%s' not found in tx arg", InstanceArg)
	}

	escrow, err := GetEscrow(snap, key)
	if err != nil {
		return nil, err
	}

	if escrow.Status != Created {
		return nil, xerrors.Errorf("purchase is in phase %d: %w",
			escrow.Status, fault.ErrNotRefundable)
	}

	caller, err := callerText(step)
	if err != nil {
		return nil, err
	}

	if caller != escrow.Seller {
		return nil, xerrors.Errorf("only the seller aborts: %w",
			fault.ErrUnauthorized)
	}

	escrow.Status = Inactive

	err = saveEscrow(snap, key, escrow)
	if err != nil {
		return nil, err
	}

	refund := ledger.NewTransfer(access.Address(escrow.Seller), 2*escrow.Price)

	return []ledger.Transfer{refund}, nil
}

// purchase implements commands. It commits the caller as buyer. The deposit
// must match the seller's deposit exactly.
func (c escrowCommand) purchase(snap store.Snapshot, step execution.Step) error {
	key := step.Current.GetArg(InstanceArg)
	if len(key) == 0 {
		return xerrors.Errorf("'%s' not found in tx arg", InstanceArg)
	}

	escrow, err := GetEscrow(snap, key)
	if err != nil {
		return err
	}

	if escrow.Status != Created {
		return xerrors.Errorf("purchase is in phase %d: %w",
			escrow.Status, fault.ErrNotPending)
	}

	deposit := step.Current.GetAmount()
	if deposit != 2*escrow.Price {
		return xerrors.Errorf("deposit %d does not match %d: %w",
			deposit, 2*escrow.Price, fault.ErrWrongAmount)
	}

	buyer, err := callerText(step)
	if err != nil {
		return err
	}

	escrow.Buyer = buyer
	escrow.Status = Locked

	return saveEscrow(snap, key, escrow)
}

// confirm implements commands. It confirms reception and releases the funds:
// the buyer gets half of its deposit back, the seller gets the rest of the
// funds held by the instance.
func (c escrowCommand) confirm(snap store.Snapshot, step execution.Step) ([]ledger.Transfer, error) {
	key := step.Current.GetArg(InstanceArg)
	if len(key) == 0 {
		return nil, xerrors.Errorf("'%s' not found in tx arg", InstanceArg)
	}

	escrow, err := GetEscrow(snap, key)
	if err != nil {
		return nil, err
	}

	if escrow.Status != Locked {
		return nil, xerrors.Errorf("purchase is in phase %d: %w",
			escrow.Status, fault.ErrNotPending)
	}

	caller, err := callerText(step)
	if err != nil {
		return nil, err
	}

	if caller != escrow.Buyer {
		return nil, xerrors.Errorf("only the buyer confirms: %w",
			fault.ErrUnauthorized)
	}

	escrow.Status = Inactive

	err = saveEscrow(snap, key, escrow)
	if err != nil {
		return nil, err
	}

	transfers := []ledger.Transfer{
		ledger.NewTransfer(access.Address(escrow.Buyer), escrow.Price),
		ledger.NewTransfer(access.Address(escrow.Seller), 3*escrow.Price),
	}

	return transfers, nil
}

// read implements commands. It displays the escrow instance on the
// contract's printer.
func (c escrowCommand) read(snap store.Snapshot, step execution.Step) error {
	key := step.Current.GetArg(InstanceArg)
	if len(key) == 0 {
		return xerrors.Errorf("'%s' not found in tx arg", InstanceArg)
	}

	escrow, err := GetEscrow(snap, key)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.printer, "%s: price %d, seller '%s', buyer '%s', status %d",
		key, escrow.Price, escrow.Seller, escrow.Buyer, escrow.Status)

	return nil
}

func saveEscrow(snap store.Snapshot, key []byte, escrow Escrow) error {
	data, err := json.Marshal(escrow)
	if err != nil {
		return xerrors.Errorf("failed to marshal instance: %v", err)
	}

	err = snap.Set(key, data)
	if err != nil {
		return xerrors.Errorf("failed to set instance: %v", err)
	}

	return nil
}

func callerText(step execution.Step) (string, error) {
	ident := step.Current.GetIdentity()
	if ident == nil {
		return "", xerrors.New("transaction has no identity")
	}

	text, err := ident.MarshalText()
	if err != nil {
		return "", xerrors.Errorf("failed to marshal identity: %v", err)
	}

	return string(text), nil
}

// infoLog defines an output using zerolog
//
// - implements io.Writer
type infoLog struct{}

func (h infoLog) Write(p []byte) (int, error) {
	covenant.Logger.Info().Msg(string(p))

	return len(p), nil
}

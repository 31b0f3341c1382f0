package escrow

import (
	"bytes"
	"testing"
	"time"

	"github.com/hoststack/covenant/contracts/fault"
	"github.com/hoststack/covenant/core/access"
	"github.com/hoststack/covenant/core/execution"
	"github.com/hoststack/covenant/core/execution/native"
	"github.com/hoststack/covenant/core/ledger"
	"github.com/hoststack/covenant/core/store"
	"github.com/hoststack/covenant/core/txn/anon"
	"github.com/hoststack/covenant/internal/testing/fake"
	"github.com/stretchr/testify/require"
)

func TestExecute(t *testing.T) {
	contract := NewContract([]byte{}, fake.NewBadAccessService())

	_, err := contract.Execute(fake.NewSnapshot(), makeStep(t, "seller", 0))
	require.EqualError(t, err,
		"identity not authorized: seller (fake error)")

	contract = NewContract([]byte{}, fake.NewAccessService())

	_, err = contract.Execute(fake.NewSnapshot(), makeStep(t, "seller", 0))
	require.EqualError(t, err, "'escrow:command' not found in tx arg")

	contract.cmd = fakeCmd{err: fake.GetError()}

	_, err = contract.Execute(fake.NewSnapshot(), makeStep(t, "seller", 0, CmdArg, "CREATE"))
	require.EqualError(t, err, fake.Err("failed to CREATE"))

	_, err = contract.Execute(fake.NewSnapshot(), makeStep(t, "seller", 0, CmdArg, "ABORT"))
	require.EqualError(t, err, fake.Err("failed to ABORT"))

	_, err = contract.Execute(fake.NewSnapshot(), makeStep(t, "seller", 0, CmdArg, "PURCHASE"))
	require.EqualError(t, err, fake.Err("failed to PURCHASE"))

	_, err = contract.Execute(fake.NewSnapshot(), makeStep(t, "seller", 0, CmdArg, "CONFIRM"))
	require.EqualError(t, err, fake.Err("failed to CONFIRM"))

	_, err = contract.Execute(fake.NewSnapshot(), makeStep(t, "seller", 0, CmdArg, "READ"))
	require.EqualError(t, err, fake.Err("failed to READ"))

	_, err = contract.Execute(fake.NewSnapshot(), makeStep(t, "seller", 0, CmdArg, "fake"))
	require.EqualError(t, err, "unknown command: fake")

	contract.cmd = fakeCmd{}
	_, err = contract.Execute(fake.NewSnapshot(), makeStep(t, "seller", 0, CmdArg, "PURCHASE"))
	require.NoError(t, err)
}

func TestCommand_Create(t *testing.T) {
	contract := NewContract([]byte{}, fake.NewAccessService())

	cmd := escrowCommand{Contract: &contract}

	err := cmd.create(fake.NewSnapshot(), makeStep(t, "seller", 100))
	require.EqualError(t, err, "'escrow:instance' not found in tx arg")

	err = cmd.create(fake.NewBadSnapshot(), makeStep(t, "seller", 100, InstanceArg, "item"))
	require.EqualError(t, err, fake.Err("failed to get instance"))

	err = cmd.create(fake.NewSnapshot(), makeStep(t, "seller", 0, InstanceArg, "item"))
	require.ErrorIs(t, err, fault.ErrInvalidParams)

	// The deposit must be divisible in two equal halves.
	err = cmd.create(fake.NewSnapshot(), makeStep(t, "seller", 101, InstanceArg, "item"))
	require.ErrorIs(t, err, fault.ErrInvalidParams)

	snap := fake.NewSnapshot()
	err = cmd.create(snap, makeStep(t, "seller", 100, InstanceArg, "item"))
	require.NoError(t, err)

	escrow, err := GetEscrow(snap, []byte("item"))
	require.NoError(t, err)
	require.Equal(t, "seller", escrow.GetSeller())
	require.Equal(t, "", escrow.GetBuyer())
	require.Equal(t, uint64(50), escrow.GetPrice())
	require.Equal(t, Created, escrow.GetStatus())

	err = cmd.create(snap, makeStep(t, "seller", 100, InstanceArg, "item"))
	require.EqualError(t, err, "instance 'item' already exists")
}

func TestCommand_Abort(t *testing.T) {
	cmd, snap := makeEscrow(t, 100)

	_, err := cmd.abort(snap, makeStep(t, "seller", 0))
	require.EqualError(t, err, "'escrow:instance' not found in tx arg")

	_, err = cmd.abort(snap, makeStep(t, "seller", 0, InstanceArg, "none"))
	require.EqualError(t, err, "instance 'none' not found")

	_, err = cmd.abort(snap, makeStep(t, "mallory", 0, InstanceArg, "item"))
	require.ErrorIs(t, err, fault.ErrUnauthorized)

	transfers, err := cmd.abort(snap, makeStep(t, "seller", 0, InstanceArg, "item"))
	require.NoError(t, err)
	require.Equal(t, []ledger.Transfer{
		ledger.NewTransfer(access.Address("seller"), 100),
	}, transfers)

	escrow, err := GetEscrow(snap, []byte("item"))
	require.NoError(t, err)
	require.Equal(t, Inactive, escrow.GetStatus())

	// The refund happens at most once.
	_, err = cmd.abort(snap, makeStep(t, "seller", 0, InstanceArg, "item"))
	require.ErrorIs(t, err, fault.ErrNotRefundable)
}

func TestCommand_Abort_Locked(t *testing.T) {
	cmd, snap := makeEscrow(t, 100)

	err := cmd.purchase(snap, makeStep(t, "buyer", 100, InstanceArg, "item"))
	require.NoError(t, err)

	// The phase check comes before the caller check.
	_, err = cmd.abort(snap, makeStep(t, "seller", 0, InstanceArg, "item"))
	require.ErrorIs(t, err, fault.ErrNotRefundable)
}

func TestCommand_Purchase(t *testing.T) {
	cmd, snap := makeEscrow(t, 100)

	err := cmd.purchase(snap, makeStep(t, "buyer", 100))
	require.EqualError(t, err, "'escrow:instance' not found in tx arg")

	err = cmd.purchase(snap, makeStep(t, "buyer", 100, InstanceArg, "none"))
	require.EqualError(t, err, "instance 'none' not found")

	err = cmd.purchase(snap, makeStep(t, "buyer", 99, InstanceArg, "item"))
	require.ErrorIs(t, err, fault.ErrWrongAmount)

	err = cmd.purchase(snap, makeStep(t, "buyer", 101, InstanceArg, "item"))
	require.ErrorIs(t, err, fault.ErrWrongAmount)

	err = cmd.purchase(snap, makeStep(t, "buyer", 100, InstanceArg, "item"))
	require.NoError(t, err)

	escrow, err := GetEscrow(snap, []byte("item"))
	require.NoError(t, err)
	require.Equal(t, "buyer", escrow.GetBuyer())
	require.Equal(t, Locked, escrow.GetStatus())

	// A second buyer cannot commit on a locked purchase.
	err = cmd.purchase(snap, makeStep(t, "other", 100, InstanceArg, "item"))
	require.ErrorIs(t, err, fault.ErrNotPending)
}

func TestCommand_Confirm(t *testing.T) {
	cmd, snap := makeEscrow(t, 100)

	_, err := cmd.confirm(snap, makeStep(t, "buyer", 0))
	require.EqualError(t, err, "'escrow:instance' not found in tx arg")

	_, err = cmd.confirm(snap, makeStep(t, "buyer", 0, InstanceArg, "none"))
	require.EqualError(t, err, "instance 'none' not found")

	// Confirming before any buyer committed is a phase violation.
	_, err = cmd.confirm(snap, makeStep(t, "buyer", 0, InstanceArg, "item"))
	require.ErrorIs(t, err, fault.ErrNotPending)

	err = cmd.purchase(snap, makeStep(t, "buyer", 100, InstanceArg, "item"))
	require.NoError(t, err)

	_, err = cmd.confirm(snap, makeStep(t, "seller", 0, InstanceArg, "item"))
	require.ErrorIs(t, err, fault.ErrUnauthorized)

	transfers, err := cmd.confirm(snap, makeStep(t, "buyer", 0, InstanceArg, "item"))
	require.NoError(t, err)
	require.Equal(t, []ledger.Transfer{
		ledger.NewTransfer(access.Address("buyer"), 50),
		ledger.NewTransfer(access.Address("seller"), 150),
	}, transfers)

	escrow, err := GetEscrow(snap, []byte("item"))
	require.NoError(t, err)
	require.Equal(t, Inactive, escrow.GetStatus())

	// The release happens at most once.
	_, err = cmd.confirm(snap, makeStep(t, "buyer", 0, InstanceArg, "item"))
	require.ErrorIs(t, err, fault.ErrNotPending)
}

func TestCommand_Read(t *testing.T) {
	contract := NewContract([]byte{}, fake.NewAccessService())

	buf := &bytes.Buffer{}
	contract.printer = buf

	cmd := escrowCommand{Contract: &contract}

	err := cmd.read(fake.NewSnapshot(), makeStep(t, "seller", 0))
	require.EqualError(t, err, "'escrow:instance' not found in tx arg")

	snap := fake.NewSnapshot()
	err = cmd.create(snap, makeStep(t, "seller", 100, InstanceArg, "item"))
	require.NoError(t, err)

	err = cmd.read(snap, makeStep(t, "seller", 0, InstanceArg, "item"))
	require.NoError(t, err)
	require.Equal(t, "item: price 50, seller 'seller', buyer '', status 0", buf.String())
}

func TestGetEscrow(t *testing.T) {
	_, err := GetEscrow(fake.NewBadSnapshot(), []byte("item"))
	require.EqualError(t, err, fake.Err("failed to get instance"))

	snap := fake.NewSnapshot()
	require.NoError(t, snap.Set([]byte("item"), []byte("not json")))

	_, err = GetEscrow(snap, []byte("item"))
	require.Regexp(t, "^failed to unmarshal instance:", err.Error())
}

func TestInfoLog(t *testing.T) {
	log := infoLog{}

	n, err := log.Write([]byte{0b0, 0b1})
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestRegisterContract(t *testing.T) {
	RegisterContract(native.NewExecution(), Contract{})
}

// -----------------------------------------------------------------------------
// Utility functions

func makeStep(t *testing.T, caller string, amount uint64, args ...string) execution.Step {
	options := []anon.TransactionOption{anon.WithAmount(amount)}
	for i := 0; i < len(args)-1; i += 2 {
		options = append(options, anon.WithArg(args[i], []byte(args[i+1])))
	}

	tx := anon.NewTransaction(0, access.Address(caller), options...)

	return execution.Step{
		Current:   tx,
		Timestamp: time.Unix(0, 0),
	}
}

func makeEscrow(t *testing.T, deposit uint64) (escrowCommand, store.Snapshot) {
	contract := NewContract([]byte{}, fake.NewAccessService())

	cmd := escrowCommand{Contract: &contract}

	snap := fake.NewSnapshot()
	err := cmd.create(snap, makeStep(t, "seller", deposit, InstanceArg, "item"))
	require.NoError(t, err)

	return cmd, snap
}

type fakeCmd struct {
	err error
}

func (c fakeCmd) create(_ store.Snapshot, _ execution.Step) error {
	return c.err
}

func (c fakeCmd) abort(_ store.Snapshot, _ execution.Step) ([]ledger.Transfer, error) {
	return nil, c.err
}

func (c fakeCmd) purchase(_ store.Snapshot, _ execution.Step) error {
	return c.err
}

func (c fakeCmd) confirm(_ store.Snapshot, _ execution.Step) ([]ledger.Transfer, error) {
	return nil, c.err
}

func (c fakeCmd) read(_ store.Snapshot, _ execution.Step) error {
	return c.err
}

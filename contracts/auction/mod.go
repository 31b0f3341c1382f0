// Package auction implements a native contract running simple open auctions.
//
// An instance is bound to a beneficiary and a bidding window at creation.
// Bids must strictly exceed the recorded best bid; the previous best bidder
// is refunded through a transfer instruction. Once the window has elapsed
// the auction can be finalized exactly once, moving the best bid to the
// beneficiary.
package auction

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/hoststack/covenant"
	"github.com/hoststack/covenant/contracts/fault"
	"github.com/hoststack/covenant/core/access"
	"github.com/hoststack/covenant/core/execution"
	"github.com/hoststack/covenant/core/execution/native"
	"github.com/hoststack/covenant/core/ledger"
	"github.com/hoststack/covenant/core/store"
	"golang.org/x/xerrors"
)

// commands defines the commands of the auction contract. This interface helps
// in testing the contract.
type commands interface {
	create(snap store.Snapshot, step execution.Step) ([]ledger.Transfer, error)
	bid(snap store.Snapshot, step execution.Step) ([]ledger.Transfer, error)
	finalize(snap store.Snapshot, step execution.Step) ([]ledger.Transfer, error)
	read(snap store.Snapshot, step execution.Step) error
}

const (
	// ContractName is the name of the contract.
	ContractName = "github.com/hoststack/covenant.Auction"

	// ContractUID is the unique 4-byte identifier of the contract.
	ContractUID = "AUCT"

	// InstanceArg is the argument's name in the transaction that contains the
	// key of the auction instance.
	InstanceArg = "auction:instance"

	// DurationArg is the argument's name in the transaction that contains the
	// length of the bidding window in seconds.
	DurationArg = "auction:duration"

	// BeneficiaryArg is the argument's name in the transaction that contains
	// the identity receiving the best bid. It defaults to the creator.
	BeneficiaryArg = "auction:beneficiary"

	// CmdArg is the argument's name to indicate the kind of command we want
	// to run on the contract. Should be one of the Command type.
	CmdArg = "auction:command"

	// credentialAllCommand defines the credential command that is allowed to
	// perform all commands.
	credentialAllCommand = "all"
)

// Command defines a type of command for the auction contract.
type Command string

const (
	// CmdCreate defines the command to open a new auction.
	CmdCreate Command = "CREATE"

	// CmdBid defines the command to submit a bid.
	CmdBid Command = "BID"

	// CmdFinalize defines the command to close an elapsed auction.
	CmdFinalize Command = "FINALIZE"

	// CmdRead defines a command to display an auction instance.
	CmdRead Command = "READ"
)

// Status is the lifecycle tag of an auction instance. The transition to Ended
// is one-way.
type Status byte

const (
	// Open means the auction accepts bids while the window lasts.
	Open Status = iota

	// Ended means the auction has been finalized. No further transition is
	// accepted.
	Ended
)

// Auction is the state record of one auction instance.
type Auction struct {
	Beneficiary   string `json:"beneficiary"`
	Start         int64  `json:"start"`
	End           int64  `json:"end"`
	HighestBidder string `json:"highest_bidder,omitempty"`
	HighestBid    uint64 `json:"highest_bid"`
	Status        Status `json:"status"`
}

// GetBeneficiary returns the identity receiving the best bid.
func (a Auction) GetBeneficiary() string {
	return a.Beneficiary
}

// GetWindow returns the start and end of the bidding window as Unix seconds.
func (a Auction) GetWindow() (int64, int64) {
	return a.Start, a.End
}

// GetHighestBid returns the current best bidder and amount. The bidder is
// empty as long as no bid passed validation.
func (a Auction) GetHighestBid() (string, uint64) {
	return a.HighestBidder, a.HighestBid
}

// GetStatus returns the lifecycle tag of the instance.
func (a Auction) GetStatus() Status {
	return a.Status
}

// GetAuction reads the auction instance stored under the given key.
func GetAuction(snap store.Readable, key []byte) (Auction, error) {
	data, err := snap.Get(key)
	if err != nil {
		return Auction{}, xerrors.Errorf("failed to get instance: %v", err)
	}

	if len(data) == 0 {
		return Auction{}, xerrors.Errorf("instance '%s' not found", key)
	}

	auction := Auction{}
	err = json.Unmarshal(data, &auction)
	if err != nil {
		return Auction{}, xerrors.Errorf("failed to unmarshal instance: %v", err)
	}

	return auction, nil
}

// NewCreds creates new credentials for an auction contract execution.
func NewCreds(id []byte) access.Credential {
	return access.NewContractCreds(id, ContractName, credentialAllCommand)
}

// RegisterContract registers the auction contract to the given execution
// service.
func RegisterContract(exec *native.Service, c Contract) {
	exec.Set(ContractName, c)
}

// Contract is a contract running open auctions.
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

// NewContract creates a new auction contract.
func NewContract(aKey []byte, srvc access.Service) Contract {
	contract := Contract{
		access:    srvc,
		accessKey: aKey,
		printer:   infoLog{},
	}

	contract.cmd = auctionCommand{Contract: &contract}

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
		transfers, err := c.cmd.create(snap, step)
		if err != nil {
			return nil, xerrors.Errorf("failed to CREATE: %w", err)
		}

		return transfers, nil
	case CmdBid:
		transfers, err := c.cmd.bid(snap, step)
		if err != nil {
			return nil, xerrors.Errorf("failed to BID: %w", err)
		}

		return transfers, nil
	case CmdFinalize:
		transfers, err := c.cmd.finalize(snap, step)
		if err != nil {
			return nil, xerrors.Errorf("failed to FINALIZE: %w", err)
		}

		return transfers, nil
	case CmdRead:
		err := c.cmd.read(snap, step)
		if err != nil {
			return nil, xerrors.Errorf("failed to READ: %w", err)
		}

		return nil, nil
	default:
		return nil, xerrors.Errorf("unknown command: %s", cmd)
	}
}

// UID implements native.Contract.
func (c Contract) UID() string {
	return ContractUID
}

// auctionCommand implements the commands of the auction contract.
//
// - implements commands
type auctionCommand struct {
	*Contract
}

// create implements commands. It opens a new auction instance with the window
// starting at the step timestamp.
func (c auctionCommand) create(snap store.Snapshot, step execution.Step) ([]ledger.Transfer, error) {
	key := step.Current.GetArg(InstanceArg)
	if len(key) == 0 {
		return nil, xerrors.Errorf("'%s' not found in tx arg", InstanceArg)
	}

	existing, err := snap.Get(key)
	if err != nil {
		return nil, xerrors.Errorf("failed to get instance: %v", err)
	}

	if len(existing) > 0 {
		return nil, xerrors.Errorf("instance '%s' already exists", key)
	}

	duration, err := strconv.ParseInt(string(step.Current.GetArg(DurationArg)), 10, 64)
	if err != nil || duration <= 0 {
		return nil, xerrors.Errorf("bidding duration '%s': %w",
			step.Current.GetArg(DurationArg), fault.ErrInvalidParams)
	}

	beneficiary := string(step.Current.GetArg(BeneficiaryArg))
	if beneficiary == "" {
		beneficiary, err = callerText(step)
		if err != nil {
			return nil, err
		}
	}

	start := step.Timestamp.Unix()

	auction := Auction{
		Beneficiary: beneficiary,
		Start:       start,
		End:         start + duration,
		Status:      Open,
	}

	err = saveAuction(snap, key, auction)
	if err != nil {
		return nil, err
	}

	covenant.Logger.Info().
		Str("contract", ContractName).
		Msgf("auction %s open until %d", key, auction.End)

	return nil, nil
}

// bid implements commands. It records a new best bid and refunds the previous
// best bidder.
func (c auctionCommand) bid(snap store.Snapshot, step execution.Step) ([]ledger.Transfer, error) {
	key := step.Current.GetArg(InstanceArg)
	if len(key) == 0 {
		return nil, xerrors.Errorf("'%s' not found in tx arg", InstanceArg)
	}

	auction, err := GetAuction(snap, key)
	if err != nil {
		return nil, err
	}

	if auction.Status == Ended || step.Timestamp.Unix() >= auction.End {
		return nil, xerrors.Errorf("bidding is over: %w", fault.ErrWindowClosed)
	}

	amount := step.Current.GetAmount()
	if amount <= auction.HighestBid {
		return nil, xerrors.Errorf("bid of %d does not exceed %d: %w",
			amount, auction.HighestBid, fault.ErrInsufficientAmount)
	}

	bidder, err := callerText(step)
	if err != nil {
		return nil, err
	}

	transfers := []ledger.Transfer{}
	if auction.HighestBidder != "" {
		transfers = append(transfers,
			ledger.NewTransfer(access.Address(auction.HighestBidder), auction.HighestBid))
	}

	auction.HighestBidder = bidder
	auction.HighestBid = amount

	err = saveAuction(snap, key, auction)
	if err != nil {
		return nil, err
	}

	return transfers, nil
}

// finalize implements commands. It sets the one-way ended flag and moves the
// best bid to the beneficiary.
func (c auctionCommand) finalize(snap store.Snapshot, step execution.Step) ([]ledger.Transfer, error) {
	key := step.Current.GetArg(InstanceArg)
	if len(key) == 0 {
		return nil, xerrors.Errorf("'%s' not found in tx arg", InstanceArg)
	}

	auction, err := GetAuction(snap, key)
	if err != nil {
		return nil, err
	}

	if auction.Status == Ended {
		return nil, xerrors.Errorf("auction is closed: %w", fault.ErrAlreadyFinalized)
	}

	if step.Timestamp.Unix() < auction.End {
		return nil, xerrors.Errorf("bidding ends at %d: %w",
			auction.End, fault.ErrTooEarly)
	}

	auction.Status = Ended

	err = saveAuction(snap, key, auction)
	if err != nil {
		return nil, err
	}

	transfers := []ledger.Transfer{
		ledger.NewTransfer(access.Address(auction.Beneficiary), auction.HighestBid),
	}

	covenant.Logger.Info().
		Str("contract", ContractName).
		Msgf("auction %s won by %s at %d", key, auction.HighestBidder, auction.HighestBid)

	return transfers, nil
}

// read implements commands. It displays the auction instance.
func (c auctionCommand) read(snap store.Snapshot, step execution.Step) error {
	key := step.Current.GetArg(InstanceArg)
	if len(key) == 0 {
		return xerrors.Errorf("'%s' not found in tx arg", InstanceArg)
	}

	auction, err := GetAuction(snap, key)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.printer, "%s: best %d by '%s', window [%d, %d), status %d",
		key, auction.HighestBid, auction.HighestBidder,
		auction.Start, auction.End, auction.Status)

	return nil
}

func saveAuction(snap store.Snapshot, key []byte, auction Auction) error {
	data, err := json.Marshal(auction)
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

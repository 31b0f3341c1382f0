// Package ballot implements a native contract running delegated votes.
//
// The creator of an instance becomes its chairperson and is the only identity
// allowed to hand out voting rights. A participant votes at most once, either
// directly on a proposal or by delegating to another participant. Delegation
// chains are followed to their final holder and must stay acyclic; the walk
// is bounded by the participant count.
package ballot

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hoststack/covenant"
	"github.com/hoststack/covenant/contracts/fault"
	"github.com/hoststack/covenant/core/access"
	"github.com/hoststack/covenant/core/execution"
	"github.com/hoststack/covenant/core/execution/native"
	"github.com/hoststack/covenant/core/ledger"
	"github.com/hoststack/covenant/core/store"
	"golang.org/x/xerrors"
)

// commands defines the commands of the ballot contract. This interface helps
// in testing the contract.
type commands interface {
	create(snap store.Snapshot, step execution.Step) error
	grant(snap store.Snapshot, step execution.Step) error
	delegate(snap store.Snapshot, step execution.Step) error
	vote(snap store.Snapshot, step execution.Step) error
	winner(snap store.Snapshot, step execution.Step) error
}

const (
	// ContractName is the name of the contract.
	ContractName = "github.com/hoststack/covenant.Ballot"

	// ContractUID is the unique 4-byte identifier of the contract.
	ContractUID = "BALL"

	// InstanceArg is the argument's name in the transaction that contains the
	// key of the ballot instance.
	InstanceArg = "ballot:instance"

	// ProposalsArg is the argument's name in the transaction that contains
	// the comma-separated list of proposal names at creation.
	ProposalsArg = "ballot:proposals"

	// VoterArg is the argument's name in the transaction that contains the
	// identity targeted by the GRANT and DELEGATE commands.
	VoterArg = "ballot:voter"

	// ProposalArg is the argument's name in the transaction that contains the
	// index of the proposal to vote for.
	ProposalArg = "ballot:proposal"

	// CmdArg is the argument's name to indicate the kind of command we want
	// to run on the contract. Should be one of the Command type.
	CmdArg = "ballot:command"

	// credentialAllCommand defines the credential command that is allowed to
	// perform all commands.
	credentialAllCommand = "all"
)

// Command defines a type of command for the ballot contract.
type Command string

const (
	// CmdCreate defines the command to open a new ballot.
	CmdCreate Command = "CREATE"

	// CmdGrant defines the command to give an identity the right to vote.
	CmdGrant Command = "GRANT"

	// CmdDelegate defines the command to delegate one's vote.
	CmdDelegate Command = "DELEGATE"

	// CmdVote defines the command to cast a vote on a proposal.
	CmdVote Command = "VOTE"

	// CmdWinner defines a command to display the winning proposal.
	CmdWinner Command = "WINNER"
)

// Proposal is a named proposal with its tally. The tally only ever increases.
type Proposal struct {
	Name      string `json:"name"`
	VoteCount uint64 `json:"vote_count"`
}

// Voter is the record of one participant. Voted is one-way: once set, the
// participant cannot vote or delegate again.
type Voter struct {
	Weight   uint64 `json:"weight"`
	Voted    bool   `json:"voted"`
	Delegate string `json:"delegate,omitempty"`
	Vote     int    `json:"vote"`
}

// Ballot is the state record of one ballot instance.
type Ballot struct {
	Chairperson string           `json:"chairperson"`
	Proposals   []Proposal       `json:"proposals"`
	Voters      map[string]Voter `json:"voters"`
}

// GetChairperson returns the identity allowed to hand out voting rights.
func (b Ballot) GetChairperson() string {
	return b.Chairperson
}

// GetProposals returns the proposals with their current tallies.
func (b Ballot) GetProposals() []Proposal {
	return append([]Proposal{}, b.Proposals...)
}

// GetVoter returns the record of the given participant. An unknown
// participant has zero weight and has not voted.
func (b Ballot) GetVoter(name string) Voter {
	return b.Voters[name]
}

// WinningProposal returns the index of the proposal with the strictly
// greatest tally. Ties resolve to the lowest index. The scan covers the full
// proposal list.
func (b Ballot) WinningProposal() int {
	winner := 0
	best := uint64(0)

	for i, proposal := range b.Proposals {
		if proposal.VoteCount > best {
			best = proposal.VoteCount
			winner = i
		}
	}

	return winner
}

// GetBallot reads the ballot instance stored under the given key.
func GetBallot(snap store.Readable, key []byte) (Ballot, error) {
	data, err := snap.Get(key)
	if err != nil {
		return Ballot{}, xerrors.Errorf("failed to get instance: %v", err)
	}

	if len(data) == 0 {
		return Ballot{}, xerrors.Errorf("instance '%s' not found", key)
	}

	ballot := Ballot{}
	err = json.Unmarshal(data, &ballot)
	if err != nil {
		return Ballot{}, xerrors.Errorf("failed to unmarshal instance: %v", err)
	}

	return ballot, nil
}

// NewCreds creates new credentials for a ballot contract execution.
func NewCreds(id []byte) access.Credential {
	return access.NewContractCreds(id, ContractName, credentialAllCommand)
}

// RegisterContract registers the ballot contract to the given execution
// service.
func RegisterContract(exec *native.Service, c Contract) {
	exec.Set(ContractName, c)
}

// Contract is a contract running delegated votes.
//
// - implements native.Contract
type Contract struct {
	// access is the access control service managing this contract
	access access.Service

	// accessKey is the access identifier allowed to use this contract
	accessKey []byte

	// cmd provides the commands that can be executed by this contract
	cmd commands

	// printer is the output used by the WINNER command
	printer io.Writer
}

// NewContract creates a new ballot contract.
func NewContract(aKey []byte, srvc access.Service) Contract {
	contract := Contract{
		access:    srvc,
		accessKey: aKey,
		printer:   infoLog{},
	}

	contract.cmd = ballotCommand{Contract: &contract}

	return contract
}

// Execute implements native.Contract. It runs the appropriate command. The
// ballot never emits transfer instructions.
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
	case CmdGrant:
		err := c.cmd.grant(snap, step)
		if err != nil {
			return nil, xerrors.Errorf("failed to GRANT: %w", err)
		}
	case CmdDelegate:
		err := c.cmd.delegate(snap, step)
		if err != nil {
			return nil, xerrors.Errorf("failed to DELEGATE: %w", err)
		}
	case CmdVote:
		err := c.cmd.vote(snap, step)
		if err != nil {
			return nil, xerrors.Errorf("failed to VOTE: %w", err)
		}
	case CmdWinner:
		err := c.cmd.winner(snap, step)
		if err != nil {
			return nil, xerrors.Errorf("failed to WINNER: %w", err)
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

// ballotCommand implements the commands of the ballot contract.
//
// - implements commands
type ballotCommand struct {
	*Contract
}

// create implements commands. It opens a new ballot with the creator as
// chairperson.
func (c ballotCommand) create(snap store.Snapshot, step execution.Step) error {
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

	names := string(step.Current.GetArg(ProposalsArg))
	if names == "" {
		return xerrors.Errorf("empty proposal list: %w", fault.ErrInvalidParams)
	}

	proposals := []Proposal{}
	for _, name := range strings.Split(names, ",") {
		proposals = append(proposals, Proposal{Name: name})
	}

	chairperson, err := callerText(step)
	if err != nil {
		return err
	}

	ballot := Ballot{
		Chairperson: chairperson,
		Proposals:   proposals,
		Voters: map[string]Voter{
			chairperson: {Weight: 1},
		},
	}

	err = saveBallot(snap, key, ballot)
	if err != nil {
		return err
	}

	covenant.Logger.Info().
		Str("contract", ContractName).
		Msgf("ballot %s open with %d proposals", key, len(proposals))

	return nil
}

// grant implements commands. It gives the target the right to vote.
func (c ballotCommand) grant(snap store.Snapshot, step execution.Step) error {
	key := step.Current.GetArg(InstanceArg)
	if len(key) == 0 {
		return xerrors.Errorf("'%s' not found in tx arg", InstanceArg)
	}

	ballot, err := GetBallot(snap, key)
	if err != nil {
		return err
	}

	caller, err := callerText(step)
	if err != nil {
		return err
	}

	if caller != ballot.Chairperson {
		return xerrors.Errorf("only the chairperson grants rights: %w",
			fault.ErrUnauthorized)
	}

	target := string(step.Current.GetArg(VoterArg))
	if target == "" {
		return xerrors.Errorf("'%s' not found in tx arg", VoterArg)
	}

	voter := ballot.Voters[target]
	if voter.Voted || voter.Weight > 0 {
		return xerrors.Errorf("voter '%s': %w", target, fault.ErrAlreadyGranted)
	}

	voter.Weight = 1
	ballot.Voters[target] = voter

	return saveBallot(snap, key, ballot)
}

// delegate implements commands. It transfers the caller's weight to the final
// holder of the delegation chain starting at the target.
func (c ballotCommand) delegate(snap store.Snapshot, step execution.Step) error {
	key := step.Current.GetArg(InstanceArg)
	if len(key) == 0 {
		return xerrors.Errorf("'%s' not found in tx arg", InstanceArg)
	}

	ballot, err := GetBallot(snap, key)
	if err != nil {
		return err
	}

	caller, err := callerText(step)
	if err != nil {
		return err
	}

	voter := ballot.Voters[caller]
	if voter.Voted {
		return xerrors.Errorf("voter '%s': %w", caller, fault.ErrAlreadyVoted)
	}

	target := string(step.Current.GetArg(VoterArg))
	if target == "" {
		return xerrors.Errorf("'%s' not found in tx arg", VoterArg)
	}

	if target == caller {
		return xerrors.Errorf("self-delegation: %w", fault.ErrCyclicDelegation)
	}

	// Follow the chain of existing delegations. The walk is bounded by the
	// participant count so a malformed chain cannot loop forever.
	final := target
	for hops := 0; ballot.Voters[final].Delegate != ""; hops++ {
		if hops >= len(ballot.Voters) {
			return xerrors.Errorf("no final holder after %d hops: %w",
				hops, fault.ErrDelegationChainTooLong)
		}

		final = ballot.Voters[final].Delegate

		if final == caller {
			return xerrors.Errorf("chain revisits '%s': %w",
				caller, fault.ErrCyclicDelegation)
		}
	}

	voter.Voted = true
	voter.Delegate = final
	ballot.Voters[caller] = voter

	holder := ballot.Voters[final]
	if holder.Voted {
		ballot.Proposals[holder.Vote].VoteCount += voter.Weight
	} else {
		holder.Weight += voter.Weight
		ballot.Voters[final] = holder
	}

	return saveBallot(snap, key, ballot)
}

// vote implements commands. It adds the caller's weight to the proposal's
// tally.
func (c ballotCommand) vote(snap store.Snapshot, step execution.Step) error {
	key := step.Current.GetArg(InstanceArg)
	if len(key) == 0 {
		return xerrors.Errorf("'%s' not found in tx arg", InstanceArg)
	}

	ballot, err := GetBallot(snap, key)
	if err != nil {
		return err
	}

	caller, err := callerText(step)
	if err != nil {
		return err
	}

	voter := ballot.Voters[caller]
	if voter.Voted {
		return xerrors.Errorf("voter '%s': %w", caller, fault.ErrAlreadyVoted)
	}

	index, err := strconv.Atoi(string(step.Current.GetArg(ProposalArg)))
	if err != nil || index < 0 || index >= len(ballot.Proposals) {
		return xerrors.Errorf("proposal '%s': %w",
			step.Current.GetArg(ProposalArg), fault.ErrInvalidProposal)
	}

	voter.Voted = true
	voter.Vote = index
	ballot.Voters[caller] = voter

	ballot.Proposals[index].VoteCount += voter.Weight

	return saveBallot(snap, key, ballot)
}

// winner implements commands. It displays the winning proposal.
func (c ballotCommand) winner(snap store.Snapshot, step execution.Step) error {
	key := step.Current.GetArg(InstanceArg)
	if len(key) == 0 {
		return xerrors.Errorf("'%s' not found in tx arg", InstanceArg)
	}

	ballot, err := GetBallot(snap, key)
	if err != nil {
		return err
	}

	index := ballot.WinningProposal()
	proposal := ballot.Proposals[index]

	fmt.Fprintf(c.printer, "%s: proposal %d '%s' with %d votes",
		key, index, proposal.Name, proposal.VoteCount)

	return nil
}

func saveBallot(snap store.Snapshot, key []byte, ballot Ballot) error {
	data, err := json.Marshal(ballot)
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

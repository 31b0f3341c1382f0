package main

import (
	"os"
	"time"

	"github.com/hoststack/covenant/contracts/auction"
	"github.com/hoststack/covenant/contracts/ballot"
	"github.com/hoststack/covenant/contracts/escrow"
	"github.com/hoststack/covenant/core/access"
	"github.com/hoststack/covenant/core/execution"
	"github.com/hoststack/covenant/core/execution/native"
	"github.com/hoststack/covenant/core/ledger"
	"github.com/hoststack/covenant/core/store"
	"github.com/hoststack/covenant/core/txn"
	"github.com/hoststack/covenant/core/txn/anon"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// Scenario is a replayable sequence of transactions against the contracts.
type Scenario struct {
	Name string `yaml:"name"`

	// Balances funds the identities before the first step runs.
	Balances map[string]uint64 `yaml:"balances"`

	Steps []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one transaction of a scenario. At is the host clock of the
// step, in seconds.
type ScenarioStep struct {
	Contract string            `yaml:"contract"`
	Command  string            `yaml:"command"`
	Identity string            `yaml:"identity"`
	Amount   uint64            `yaml:"amount"`
	At       int64             `yaml:"at"`
	Args     map[string]string `yaml:"args"`

	// Rejected marks a step the scenario expects to fail. A mismatch in
	// either direction stops the run.
	Rejected bool `yaml:"rejected"`
}

// variants maps the short contract names usable in a scenario file to the
// registered contract name and its command argument.
var variants = map[string]struct {
	name   string
	cmdArg string
}{
	"auction": {auction.ContractName, auction.CmdArg},
	"ballot":  {ballot.ContractName, ballot.CmdArg},
	"escrow":  {escrow.ContractName, escrow.CmdArg},
}

// LoadScenario reads and decodes a scenario file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, xerrors.Errorf("failed to read scenario: %v", err)
	}

	scenario := Scenario{}
	err = yaml.Unmarshal(data, &scenario)
	if err != nil {
		return Scenario{}, xerrors.Errorf("failed to decode scenario: %v", err)
	}

	for i, step := range scenario.Steps {
		_, found := variants[step.Contract]
		if !found {
			return Scenario{}, xerrors.Errorf("step %d: unknown contract '%s'",
				i, step.Contract)
		}
	}

	return scenario, nil
}

// runner executes scenario steps over a snapshot and keeps the book of
// balances in sync with the accepted executions.
type runner struct {
	exec   *native.Service
	book   *ledger.Book
	nonces map[string]uint64
	prev   []txn.Transaction
}

func newRunner(exec *native.Service) *runner {
	return &runner{
		exec:   exec,
		book:   ledger.NewBook(),
		nonces: map[string]uint64{},
	}
}

// run executes every step of the scenario in order. The caller's deposit is
// debited only when the execution is accepted, then the emitted transfer
// instructions are applied.
func (r *runner) run(snap store.Snapshot, scenario Scenario) error {
	for holder, amount := range scenario.Balances {
		err := r.book.Credit(access.Address(holder), amount)
		if err != nil {
			return xerrors.Errorf("failed to fund '%s': %v", holder, err)
		}
	}

	for i, step := range scenario.Steps {
		res, err := r.runStep(snap, step)
		if err != nil {
			return xerrors.Errorf("step %d: %v", i, err)
		}

		if res.Accepted == step.Rejected {
			return xerrors.Errorf("step %d: accepted %v, expected %v: %s",
				i, res.Accepted, !step.Rejected, res.Message)
		}
	}

	return nil
}

func (r *runner) runStep(snap store.Snapshot, step ScenarioStep) (execution.Result, error) {
	variant := variants[step.Contract]

	options := []anon.TransactionOption{
		anon.WithAmount(step.Amount),
		anon.WithArg(native.ContractArg, []byte(variant.name)),
		anon.WithArg(variant.cmdArg, []byte(step.Command)),
	}

	for key, value := range step.Args {
		options = append(options, anon.WithArg(key, []byte(value)))
	}

	ident := access.Address(step.Identity)

	tx := anon.NewTransaction(r.nonces[step.Identity], ident, options...)
	r.nonces[step.Identity]++

	res, err := r.exec.Execute(snap, execution.Step{
		Previous:  r.prev,
		Current:   tx,
		Timestamp: time.Unix(step.At, 0),
	})
	if err != nil {
		return execution.Result{}, xerrors.Errorf("execution failed: %v", err)
	}

	if !res.Accepted {
		return res, nil
	}

	r.prev = append(r.prev, tx)

	if step.Amount > 0 {
		err = r.book.Debit(ident, step.Amount)
		if err != nil {
			return execution.Result{}, xerrors.Errorf("failed to debit: %v", err)
		}
	}

	err = r.book.Apply(res.Transfers...)
	if err != nil {
		return execution.Result{}, xerrors.Errorf("failed to apply: %v", err)
	}

	return res, nil
}

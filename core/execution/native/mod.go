// Package native implements an execution service to run native contracts.
//
// A native contract is written in Go and packaged with the application. The
// service stages the writes of an execution and flushes them only when the
// contract succeeds, so a failed transition leaves the snapshot untouched and
// emits no transfer.
package native

import (
	"sync"

	"github.com/hoststack/covenant/core/execution"
	"github.com/hoststack/covenant/core/ledger"
	"github.com/hoststack/covenant/core/store"
	"github.com/hoststack/covenant/core/store/mem"
	"github.com/hoststack/covenant/core/store/prefixed"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/xerrors"
)

const (
	// ContractArg is the argument key in the transaction to look up a
	// contract.
	ContractArg = "github.com/hoststack/covenant.ContractArg"
)

// defines prometheus metrics
var (
	promAccepted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "covenant_native_accepted_total",
		Help: "total number of accepted transactions",
	}, []string{"contract"})

	promRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "covenant_native_rejected_total",
		Help: "total number of rejected transactions",
	}, []string{"contract"})
)

func init() {
	prometheus.MustRegister(promAccepted, promRejected)
}

// Contract is the interface to implement to register a contract that will be
// executed natively.
type Contract interface {
	// Execute runs the transition described by the step on the snapshot and
	// returns the transfer instructions for the host ledger.
	Execute(store.Snapshot, execution.Step) ([]ledger.Transfer, error)

	// UID returns the unique 4-byte identifier of the contract, used to
	// isolate its keys in the snapshot.
	UID() string
}

// Service is an execution service for contracts packaged with the
// application. Calls are serialized: no two executions run concurrently.
//
// - implements execution.Service
type Service struct {
	sync.Mutex

	contracts    map[string]Contract
	contractUIDs map[string]struct{}
	watcher      *execution.Watcher
}

// NewExecution returns a new native execution service.
func NewExecution() *Service {
	return &Service{
		contracts:    map[string]Contract{},
		contractUIDs: map[string]struct{}{},
		watcher:      execution.NewWatcher(),
	}
}

// Watch registers the observer to be notified after every execution attempt.
func (ns *Service) Watch(obs execution.Observer) {
	ns.watcher.Add(obs)
}

// Unwatch removes the observer.
func (ns *Service) Unwatch(obs execution.Observer) {
	ns.watcher.Remove(obs)
}

// Set stores the contract using the name as the key. A transaction can
// trigger this contract by using the same name as the contract argument.
func (ns *Service) Set(name string, contract Contract) {
	if _, ok := ns.contracts[name]; ok {
		panic(xerrors.Errorf("contract '%s' already registered", name))
	}

	uid := contract.UID()

	// UIDs are expected to be 4 bytes long, always.
	if len(uid) != 4 {
		panic(xerrors.Errorf("contract UID '%x' for '%s' is not 4 bytes long", uid, name))
	}

	if _, ok := ns.contractUIDs[uid]; ok {
		panic(xerrors.Errorf("contract UID '%x' for '%s' already registered", uid, name))
	}

	ns.contracts[name] = contract
	ns.contractUIDs[uid] = struct{}{}
}

// Execute implements execution.Service. It stages the snapshot, runs the
// contract the transaction refers to, and flushes the writes only when the
// contract accepts the transition.
func (ns *Service) Execute(snap store.Snapshot, step execution.Step) (execution.Result, error) {
	ns.Lock()
	defer ns.Unlock()

	name := string(step.Current.GetArg(ContractArg))

	contract := ns.contracts[name]
	if contract == nil {
		return execution.Result{}, xerrors.Errorf("unknown contract '%s'", name)
	}

	staging := mem.NewStaging(snap)

	transfers, err := contract.Execute(prefixed.NewSnapshot(contract.UID(), staging), step)
	if err != nil {
		promRejected.WithLabelValues(name).Inc()

		ns.watcher.Notify(execution.Event{
			TxID:     step.Current.GetID(),
			Contract: name,
			Message:  err.Error(),
		})

		return execution.Result{
			Accepted: false,
			Message:  err.Error(),
		}, nil
	}

	err = staging.Flush()
	if err != nil {
		return execution.Result{}, xerrors.Errorf("failed to flush: %v", err)
	}

	promAccepted.WithLabelValues(name).Inc()

	ns.watcher.Notify(execution.Event{
		TxID:     step.Current.GetID(),
		Contract: name,
		Accepted: true,
	})

	return execution.Result{
		Accepted:  true,
		Transfers: transfers,
	}, nil
}

// Package main implements a command line tool to replay contract scenarios
// over a persistent key/value store.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/hoststack/covenant"
	"github.com/hoststack/covenant/contracts/auction"
	"github.com/hoststack/covenant/contracts/ballot"
	"github.com/hoststack/covenant/contracts/escrow"
	"github.com/hoststack/covenant/core/access"
	"github.com/hoststack/covenant/core/access/simple"
	"github.com/hoststack/covenant/core/execution/native"
	"github.com/hoststack/covenant/core/store"
	"github.com/hoststack/covenant/core/store/kv"
	"github.com/hoststack/covenant/core/store/prefixed"
	urfave "github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
)

// accessKey identifies the credentials granted to the scenario identities.
var accessKey = []byte("covenant:access")

func main() {
	err := makeApp(os.Stdout).Run(os.Args)
	if err != nil {
		covenant.Logger.Fatal().Err(err).Msg("command aborted")
	}
}

func makeApp(out io.Writer) *urfave.App {
	return &urfave.App{
		Name:  "covenant",
		Usage: "replay state-gated transfer contract scenarios",
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:  "db",
				Usage: "path of the key/value database",
				Value: "covenant.db",
			},
		},
		Commands: []*urfave.Command{
			{
				Name:  "run",
				Usage: "execute a scenario file against the store",
				Flags: []urfave.Flag{
					&urfave.StringFlag{
						Name:     "scenario",
						Usage:    "path of the scenario file",
						Required: true,
					},
				},
				Action: func(ctx *urfave.Context) error {
					return runAction(ctx, out)
				},
			},
		},
	}
}

func runAction(ctx *urfave.Context, out io.Writer) error {
	scenario, err := LoadScenario(ctx.String("scenario"))
	if err != nil {
		return xerrors.Errorf("failed to load scenario: %v", err)
	}

	db, err := kv.New(ctx.String("db"))
	if err != nil {
		return xerrors.Errorf("failed to open db: %v", err)
	}

	defer db.Close()

	srvc := simple.NewService()

	exec := native.NewExecution()
	auction.RegisterContract(exec, auction.NewContract(accessKey, srvc))
	ballot.RegisterContract(exec, ballot.NewContract(accessKey, srvc))
	escrow.RegisterContract(exec, escrow.NewContract(accessKey, srvc))

	runner := newRunner(exec)

	err = db.Update(func(tx kv.WritableTx) error {
		bucket, err := tx.GetBucketOrCreate([]byte("covenant"))
		if err != nil {
			return xerrors.Errorf("failed to get bucket: %v", err)
		}

		snap := kv.NewSnapshot(bucket)

		err = grantAll(snap, srvc, scenario)
		if err != nil {
			return xerrors.Errorf("failed to grant: %v", err)
		}

		return runner.run(snap, scenario)
	})
	if err != nil {
		return xerrors.Errorf("scenario '%s' failed: %v", scenario.Name, err)
	}

	covenant.Logger.Info().
		Str("scenario", scenario.Name).
		Int("steps", len(scenario.Steps)).
		Msg("scenario done")

	for _, holder := range runner.book.Holders() {
		fmt.Fprintf(out, "%s: %d\n",
			holder, runner.book.Balance(access.Address(holder)))
	}

	return nil
}

// grantAll allows every identity of the scenario to run every contract. The
// grants live in each contract's own region of the store.
func grantAll(snap store.Snapshot, srvc simple.Service, scenario Scenario) error {
	idents := []access.Identity{}
	seen := map[string]bool{}

	for _, step := range scenario.Steps {
		if !seen[step.Identity] {
			seen[step.Identity] = true
			idents = append(idents, access.Address(step.Identity))
		}
	}

	grants := []struct {
		uid   string
		creds access.Credential
	}{
		{auction.ContractUID, auction.NewCreds(accessKey)},
		{ballot.ContractUID, ballot.NewCreds(accessKey)},
		{escrow.ContractUID, escrow.NewCreds(accessKey)},
	}

	for _, grant := range grants {
		err := srvc.Grant(prefixed.NewSnapshot(grant.uid, snap), grant.creds, idents...)
		if err != nil {
			return xerrors.Errorf("failed to grant '%s': %v", grant.creds.GetRule(), err)
		}
	}

	return nil
}

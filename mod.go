// Package covenant implements state-gated value-transfer contracts that are
// executed by a hosting runtime.
//
// A contract instance is a typed state record stored in a key/value snapshot.
// Every transition validates its preconditions against the time, identity and
// amount provided by the host, then either commits the full mutation and
// returns the transfer instructions for the host ledger, or leaves the state
// untouched and reports a typed failure.
package covenant

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	With().Caller().Logger().
	Level(zerolog.InfoLevel)

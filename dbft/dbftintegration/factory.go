// Package dbftintegration runs whole networks of drivers
// against pluggable transports and stores.
//
// Transport and store packages provide a [Factory]
// and call [RunIntegrationTest] from their own tests.
package dbftintegration

import (
	"context"
	"log/slog"
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus/dbftconsensustest"
	"github.com/r3e-network/neodbft/dbft/dbftp2p/dbftp2ptest"
	"github.com/r3e-network/neodbft/dbft/dbftstore"
)

// Env is handed to a [NewFactoryFunc] for each sub-test.
type Env struct {
	// Logger scoped to the running sub-test.
	RootLogger *slog.Logger

	tb interface {
		Cleanup(func())

		TempDir() string
	}
}

// TempDir returns a fresh directory that is removed after the sub-test.
func (e *Env) TempDir() string {
	return e.tb.TempDir()
}

// Cleanup registers fn to run when the sub-test finishes.
func (e *Env) Cleanup(fn func()) {
	e.tb.Cleanup(fn)
}

type NewFactoryFunc func(e *Env) Factory

// Factory supplies the transport and storage for [RunIntegrationTest].
//
// Each sub-test builds a new Factory and calls NewNetwork once.
// NewStores is called for every validator the sub-test starts;
// a restarted validator keeps the stores it was first given.
type Factory interface {
	// NewNetwork returns the transport and the validator fixture.
	// ctx is canceled no later than the end of the sub-test.
	NewNetwork(t *testing.T, ctx context.Context, nVals int) (
		dbftp2ptest.Network, *dbftconsensustest.Fixture, error,
	)

	NewStores(ctx context.Context, idx int) (dbftstore.BlockStore, dbftstore.SnapshotStore, error)
}

// Package dbftlibp2pintegration runs the driver integration suite over libp2p.
package dbftlibp2pintegration

import (
	"context"
	"fmt"
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus/dbftconsensustest"
	"github.com/r3e-network/neodbft/dbft/dbftintegration"
	"github.com/r3e-network/neodbft/dbft/dbftp2p/dbftlibp2p"
	"github.com/r3e-network/neodbft/dbft/dbftp2p/dbftlibp2p/dbftlibp2ptest"
	"github.com/r3e-network/neodbft/dbft/dbftp2p/dbftp2ptest"
)

// Libp2pFactory provides a libp2p Network for integration tests.
// It is meant to be embedded alongside a store factory.
type Libp2pFactory struct {
	e *dbftintegration.Env
}

func NewLibp2pFactory(e *dbftintegration.Env) Libp2pFactory {
	return Libp2pFactory{e: e}
}

func (f Libp2pFactory) NewNetwork(t *testing.T, ctx context.Context, nVals int) (
	dbftp2ptest.Network, *dbftconsensustest.Fixture, error,
) {
	n, err := dbftlibp2ptest.NewNetwork(ctx, f.e.RootLogger.With("sys", "libp2p"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build network: %w", err)
	}

	return &dbftp2ptest.GenericNetwork[*dbftlibp2p.Connection]{
		Network: n,
	}, dbftconsensustest.NewEd25519Fixture(nVals), nil
}

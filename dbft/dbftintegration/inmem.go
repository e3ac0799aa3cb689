package dbftintegration

import (
	"context"
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus/dbftconsensustest"
	"github.com/r3e-network/neodbft/dbft/dbftp2p/dbftp2ptest"
	"github.com/r3e-network/neodbft/dbft/dbftstore"
	"github.com/r3e-network/neodbft/dbft/dbftstore/dbftmemstore"
	"github.com/r3e-network/neodbft/internal/dtest"
)

// InmemStoreFactory is meant to be embedded in another [Factory]
// to provide in-memory implementations of stores.
type InmemStoreFactory struct{}

func (InmemStoreFactory) NewStores(context.Context, int) (dbftstore.BlockStore, dbftstore.SnapshotStore, error) {
	return dbftmemstore.NewBlockStore(), dbftmemstore.NewSnapshotStore(), nil
}

// LoopbackNetworkFactory is meant to be embedded in another [Factory]
// to connect validators over a [dbftp2ptest.LoopbackNetwork].
type LoopbackNetworkFactory struct{}

func (LoopbackNetworkFactory) NewNetwork(t *testing.T, ctx context.Context, nVals int) (
	dbftp2ptest.Network, *dbftconsensustest.Fixture, error,
) {
	n := dbftp2ptest.NewLoopbackNetwork(ctx, dtest.NewLogger(t).With("sys", "net"))
	return &dbftp2ptest.GenericNetwork[*dbftp2ptest.LoopbackConnection]{
		Network: n,
	}, dbftconsensustest.NewEd25519Fixture(nVals), nil
}

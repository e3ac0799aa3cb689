package dbftlibp2ptest_test

import (
	"context"
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftp2p/dbftlibp2p"
	"github.com/r3e-network/neodbft/dbft/dbftp2p/dbftlibp2p/dbftlibp2ptest"
	"github.com/r3e-network/neodbft/dbft/dbftp2p/dbftp2ptest"
	"github.com/r3e-network/neodbft/internal/dtest"
)

func TestLibp2pNetwork_Compliance(t *testing.T) {
	t.Parallel()

	dbftp2ptest.TestNetworkCompliance(
		t,
		func(t *testing.T, ctx context.Context) (dbftp2ptest.Network, error) {
			n, err := dbftlibp2ptest.NewNetwork(ctx, dtest.NewLogger(t))
			if err != nil {
				return nil, err
			}
			return &dbftp2ptest.GenericNetwork[*dbftlibp2p.Connection]{
				Network: n,
			}, nil
		},
	)
}

package dbftlibp2pintegration_test

import (
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftintegration"
	"github.com/r3e-network/neodbft/dbft/dbftp2p/dbftlibp2p/dbftlibp2pintegration"
)

// Libp2pInmemFactory uses a libp2p network with in-memory stores.
type Libp2pInmemFactory struct {
	dbftlibp2pintegration.Libp2pFactory

	dbftintegration.InmemStoreFactory
}

func TestLibp2pInmem(t *testing.T) {
	dbftintegration.RunIntegrationTest(t, func(e *dbftintegration.Env) dbftintegration.Factory {
		return Libp2pInmemFactory{
			Libp2pFactory: dbftlibp2pintegration.NewLibp2pFactory(e),
		}
	})
}

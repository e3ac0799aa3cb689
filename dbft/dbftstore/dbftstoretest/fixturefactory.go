package dbftstoretest

import "github.com/r3e-network/neodbft/dbft/dbftconsensus/dbftconsensustest"

// FixtureFactory is used in every store compliance test,
// to produce validators and signed blocks.
//
// [dbftconsensustest.NewEd25519Fixture] should be used by default,
// but taking it as a parameter makes it possible to assert
// that a store is compatible with other key schemes.
type FixtureFactory func(nVals int) *dbftconsensustest.Fixture

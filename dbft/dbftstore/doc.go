// Package dbftstore defines the persistence interfaces used around the dBFT engine.
//
// A [BlockStore] is the ledger collaborator:
// finalized blocks are handed to it and it acknowledges each commit.
// A [SnapshotStore] holds the latest encoded consensus state,
// so that a restarted node resumes within its height
// instead of voting twice.
//
// Implementations live in subpackages
// (see [github.com/r3e-network/neodbft/dbft/dbftstore/dbftmemstore]
// and [github.com/r3e-network/neodbft/dbft/dbftsqlite]),
// and are expected to pass the compliance suites in
// [github.com/r3e-network/neodbft/dbft/dbftstore/dbftstoretest].
package dbftstore

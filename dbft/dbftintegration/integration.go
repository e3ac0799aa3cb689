package dbftintegration

import (
	"context"
	"sync"
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus/dbftconsensustest"
	"github.com/r3e-network/neodbft/dbft/dbftdriver"
	"github.com/r3e-network/neodbft/dbft/dbftengine"
	"github.com/r3e-network/neodbft/dbft/dbftmempool"
	"github.com/r3e-network/neodbft/dbft/dbftp2p"
	"github.com/r3e-network/neodbft/dbft/dbftstore"
	"github.com/r3e-network/neodbft/internal/dtest"
	"github.com/stretchr/testify/require"
)

// GenesisHash is the previous hash of the first block in every integration network.
var GenesisHash = dbftconsensus.Hash{0x67, 0x65, 0x6e, 0x65, 0x73, 0x69, 0x73}

type node struct {
	idx int

	pool      *dbftmempool.Pool
	blocks    dbftstore.BlockStore
	snapshots dbftstore.SnapshotStore
	finalized chan dbftconsensus.Block

	d *dbftdriver.Driver
}

type networkOpts struct {
	nVals int

	// Validators that are never started.
	offline map[int]bool

	timeouts dbftdriver.TimeoutStrategy

	// Seeded into every node's mempool.
	txs []dbftconsensus.Hash

	// When set, the mempool never answers at or above this height.
	haltAt uint64

	heights int

	// Stores from an earlier run, by validator index.
	// Validators without an entry get new stores from the factory.
	reuse map[int]*node
}

// haltingMempool stops block production at a fixed height,
// so every node settles on the same last block.
type haltingMempool struct {
	*dbftmempool.Pool

	haltAt uint64
}

func (m haltingMempool) RequestTransactions(ctx context.Context, height uint64, max int) ([]dbftconsensus.Hash, error) {
	if m.haltAt > 0 && height >= m.haltAt {
		<-ctx.Done()
		return nil, context.Cause(ctx)
	}
	return m.Pool.RequestTransactions(ctx, height, max)
}

type network struct {
	fx    *dbftconsensustest.Fixture
	nodes []*node

	stop func()
}

// startNetwork starts a driver for every online validator.
// Each driver resumes after the last block in its store,
// or starts at height 1 on an empty store.
// All background work is stopped by the returned stop function,
// which is also registered as test cleanup.
func startNetwork(t *testing.T, f Factory, o networkOpts) *network {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	log := dtest.NewLogger(t)

	n, fx, err := f.NewNetwork(t, ctx, o.nVals)
	require.NoError(t, err)

	net := &network{fx: fx}
	var once sync.Once
	net.stop = func() {
		once.Do(func() {
			cancel()
			for _, nd := range net.nodes {
				nd.d.Wait()
			}
			n.Wait()
		})
	}
	t.Cleanup(net.stop)

	conns := make(map[int]dbftp2p.Connection, o.nVals)
	for i := range o.nVals {
		if o.offline[i] {
			continue
		}
		c, err := n.Connect(ctx)
		require.NoError(t, err)
		conns[i] = c
	}

	stabilizeCtx, stabilizeCancel := context.WithTimeout(ctx, dtest.ScaleMs(10_000))
	defer stabilizeCancel()
	require.NoError(t, n.Stabilize(stabilizeCtx))

	for i := range o.nVals {
		conn, ok := conns[i]
		if !ok {
			continue
		}

		nlog := log.With("idx", i)

		nd := &node{
			idx: i,

			// Large enough that the kernel never blocks
			// on a test that has stopped reading.
			finalized: make(chan dbftconsensus.Block, o.heights+8),
		}
		if prev, ok := o.reuse[i]; ok {
			nd.pool = prev.pool
			nd.blocks = prev.blocks
			nd.snapshots = prev.snapshots
		} else {
			nd.blocks, nd.snapshots, err = f.NewStores(ctx, i)
			require.NoError(t, err)

			nd.pool = dbftmempool.NewPool(nlog.With("sys", "mempool"), 0)
			for j, tx := range o.txs {
				nd.pool.Add(tx, int64(j))
			}
		}

		nd.d, err = dbftdriver.New(ctx, nlog.With("sys", "driver"), dbftdriver.Config{
			Engine: dbftengine.Config{
				Validators: fx.Vals,
				Height:     1,
				PrevHash:   GenesisHash,
				Signer:     fx.PrivVals[i].Signer,
			},
			Connection:    conn,
			Mempool:       haltingMempool{Pool: nd.pool, haltAt: o.haltAt},
			BlockStore:    nd.blocks,
			SnapshotStore: nd.snapshots,

			TimeoutStrategy: o.timeouts,

			FinalizedBlocks: nd.finalized,
		})
		require.NoError(t, err)

		net.nodes = append(net.nodes, nd)
	}

	return net
}

// collectBlocks reads finalized blocks for heights first through last
// from every node and requires that all nodes finalized the same chain.
func collectBlocks(t *testing.T, nodes []*node, first, last uint64) []dbftconsensus.Block {
	t.Helper()

	var chain []dbftconsensus.Block
	for h := first; h <= last; h++ {
		t.Logf("Waiting for height %d", h)

		var want dbftconsensus.Block
		for i, nd := range nodes {
			got := dtest.ReceiveOrTimeout(t, nd.finalized, dtest.ScaleMs(10_000))
			require.Equal(t, h, got.Height())

			if i == 0 {
				want = got
				continue
			}
			require.Equal(t, want, got, "node %d disagrees at height %d", nd.idx, h)
		}
		chain = append(chain, want)
	}
	return chain
}

// requireLinkedChain requires that each block builds on prev and the block before it.
func requireLinkedChain(t *testing.T, fx *dbftconsensustest.Fixture, prev dbftconsensus.Hash, chain []dbftconsensus.Block) {
	t.Helper()

	for _, b := range chain {
		require.Equal(t, prev, b.Header.PrevHash, "height %d", b.Height())
		require.Len(t, b.Witnesses, fx.Vals.Quorum())
		require.Equal(t, fx.Vals.NextConsensus(), b.Header.NextConsensus)
		prev = b.Hash()
	}
}

func requireStored(t *testing.T, ctx context.Context, nodes []*node, chain []dbftconsensus.Block) {
	t.Helper()

	for _, nd := range nodes {
		for _, want := range chain {
			got, err := nd.blocks.LoadBlock(ctx, want.Height())
			require.NoError(t, err)
			require.Equal(t, want, got, "node %d store at height %d", nd.idx, want.Height())
		}
	}
}

// RunIntegrationTest runs the integration suite
// against networks and stores built by nf.
func RunIntegrationTest(t *testing.T, nf NewFactoryFunc) {
	t.Run("validators finalize identical blocks", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		const heights = 5
		txs := dbftconsensustest.TxHashes(1, 6)

		f := nf(&Env{RootLogger: dtest.NewLogger(t), tb: t})
		net := startNetwork(t, f, networkOpts{
			nVals: 4,

			// Long enough that no timeout fires on a healthy network.
			timeouts: dbftdriver.LinearTimeoutStrategy{Base: dtest.ScaleMs(5_000)},

			txs:     txs,
			heights: heights,
		})

		chain := collectBlocks(t, net.nodes, 1, heights)
		requireLinkedChain(t, net.fx, GenesisHash, chain)
		requireStored(t, ctx, net.nodes, chain)

		// Each seeded transaction lands in exactly one block.
		seen := make(map[dbftconsensus.Hash]uint64)
		for _, b := range chain {
			for _, tx := range b.TxHashes {
				prev, dup := seen[tx]
				require.False(t, dup, "tx %s in blocks %d and %d", tx, prev, b.Height())
				seen[tx] = b.Height()
			}
		}
		require.Len(t, seen, len(txs))

		for _, nd := range net.nodes {
			require.Zero(t, nd.pool.Len(), "node %d still holds committed transactions", nd.idx)

			st, err := nd.d.Status(ctx)
			require.NoError(t, err)
			require.Greater(t, st.Height, uint64(heights))
		}
	})

	t.Run("view change replaces an offline primary", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		const heights = 3

		f := nf(&Env{RootLogger: dtest.NewLogger(t), tb: t})
		net := startNetwork(t, f, networkOpts{
			nVals:   4,
			offline: map[int]bool{1: true},

			timeouts: dbftdriver.LinearTimeoutStrategy{
				Base:    dtest.ScaleMs(300),
				PerView: dtest.ScaleMs(300),
			},

			heights: heights,
		})
		require.Len(t, net.nodes, 3)

		// Validator 1 is the primary for height 1 at view 0.
		require.Equal(t, dbftconsensus.ValidatorID(1), net.fx.Vals.PrimaryFor(1, 0).ID)

		chain := collectBlocks(t, net.nodes, 1, heights)
		requireLinkedChain(t, net.fx, GenesisHash, chain)
		requireStored(t, ctx, net.nodes, chain)

		// The block at height 1 was proposed after a view change.
		require.NotEqual(t, uint8(1), chain[0].Header.PrimaryIndex)

		for _, b := range chain {
			for _, w := range b.Witnesses {
				require.NotEqual(t, dbftconsensus.ValidatorID(1), w.Validator)
			}
		}
	})

	t.Run("network resumes after a full restart", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		f := nf(&Env{RootLogger: dtest.NewLogger(t), tb: t})

		// Every node stores blocks 1 through 3 and then waits at height 4.
		const haltAt = 4
		first := startNetwork(t, f, networkOpts{
			nVals:    4,
			timeouts: dbftdriver.LinearTimeoutStrategy{Base: dtest.ScaleMs(5_000)},
			txs:      dbftconsensustest.TxHashes(2, 4),
			haltAt:   haltAt,
			heights:  haltAt,
		})
		before := collectBlocks(t, first.nodes, 1, haltAt-1)
		first.stop()

		reuse := make(map[int]*node, len(first.nodes))
		for _, nd := range first.nodes {
			last, err := nd.blocks.LastBlock(ctx)
			require.NoError(t, err)
			require.Equal(t, before[len(before)-1], last)

			reuse[nd.idx] = nd
		}

		second := startNetwork(t, f, networkOpts{
			nVals:    4,
			timeouts: dbftdriver.LinearTimeoutStrategy{Base: dtest.ScaleMs(5_000)},
			heights:  2,
			reuse:    reuse,
		})

		for _, nd := range second.nodes {
			st, err := nd.d.Status(ctx)
			require.NoError(t, err)
			require.GreaterOrEqual(t, st.Height, uint64(haltAt))
		}

		after := collectBlocks(t, second.nodes, haltAt, haltAt+1)
		requireLinkedChain(t, second.fx, before[len(before)-1].Hash(), after)
		requireStored(t, ctx, second.nodes, append(before, after...))
	})
}

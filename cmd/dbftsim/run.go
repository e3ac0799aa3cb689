package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftdebug"
	"github.com/r3e-network/neodbft/dbft/dbftdriver"
	"github.com/r3e-network/neodbft/dbft/dbftengine"
	"github.com/r3e-network/neodbft/dbft/dbftmempool"
	"github.com/r3e-network/neodbft/dbft/dbftp2p"
	"github.com/r3e-network/neodbft/dbft/dbftp2p/dbftlibp2p"
	"github.com/r3e-network/neodbft/dbft/dbftp2p/dbftp2ptest"
	"github.com/r3e-network/neodbft/dbft/dbftsqlite"
	"github.com/r3e-network/neodbft/dbft/dbftstore"
	"github.com/r3e-network/neodbft/dbft/dbftstore/dbftmemstore"
	"github.com/spf13/cobra"
)

// genesisHash is the previous hash of the first simulated block.
var genesisHash dbftconsensus.Hash

func newRunCmd(logger loggerFunc) *cobra.Command {
	var (
		configPath string

		heights   uint64
		transport string
		dataDir   string
		httpAddr  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulated validator network",
		Long: `Run every validator from the config in this process.

Each finalized block is printed as the first online validator commits it.
The network stops after the configured number of heights, or on interrupt.`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logger(cmd)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("heights") {
				cfg.Heights = heights
			}
			if flags.Changed("transport") {
				cfg.Transport = transport
			}
			if flags.Changed("data-dir") {
				cfg.DataDir = dataDir
			}
			if flags.Changed("http") {
				cfg.HTTPAddr = httpAddr
			}
			if err := cfg.setDefaults(); err != nil {
				return err
			}

			return runSim(cmd.Context(), log, cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "dbftsim.yaml", "path to the network config")
	f.Uint64Var(&heights, "heights", 0, "number of blocks to finalize; 0 runs until interrupted")
	f.StringVar(&transport, "transport", transportLoopback, "validator transport (loopback or libp2p)")
	f.StringVar(&dataDir, "data-dir", "", "directory for per-validator SQLite stores")
	f.StringVar(&httpAddr, "http", "", "address for the first validator's debug HTTP server (host:port or unix:PATH)")

	return cmd
}

type simNode struct {
	idx   int
	alias string

	pool   *dbftmempool.Pool
	blocks dbftstore.BlockStore

	d *dbftdriver.Driver
}

// runSim starts every online validator in cfg and reports finalized blocks to out.
func runSim(ctx context.Context, log *slog.Logger, cfg simConfig, out io.Writer) error {
	vals, signers, err := cfg.roster()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tr, err := newTransport(ctx, log.With("sys", "transport"), cfg.Transport)
	if err != nil {
		return err
	}
	defer tr.Wait()
	defer cancel()

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	var (
		nodes   []*simNode
		closers []io.Closer
	)
	defer func() {
		cancel()
		for _, n := range nodes {
			n.d.Wait()
		}
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Warn("Failed to close store", "err", err)
			}
		}
	}()

	var finalized chan dbftconsensus.Block
	for i, vc := range cfg.Validators {
		if cfg.isOffline(i) {
			log.Info("Leaving validator offline", "val", vc.Alias)
			continue
		}

		nlog := log.With("val", vc.Alias)

		conn, err := tr.Connect(ctx)
		if err != nil {
			return fmt.Errorf("failed to connect %s: %w", vc.Alias, err)
		}

		blocks, snapshots, err := openStores(ctx, nlog, cfg.DataDir, vc.Alias)
		if err != nil {
			return err
		}
		if c, ok := blocks.(io.Closer); ok {
			closers = append(closers, c)
		}

		n := &simNode{
			idx:    i,
			alias:  vc.Alias,
			pool:   dbftmempool.NewPool(nlog.With("sys", "mempool"), 0),
			blocks: blocks,
		}

		// Only the first online validator reports blocks.
		var fin chan<- dbftconsensus.Block
		if finalized == nil {
			finalized = make(chan dbftconsensus.Block, 16)
			fin = finalized
		}

		n.d, err = dbftdriver.New(ctx, nlog.With("sys", "driver"), dbftdriver.Config{
			Engine: dbftengine.Config{
				Validators: vals,
				Height:     1,
				PrevHash:   genesisHash,
				Signer:     signers[i],
			},
			Connection:    conn,
			Mempool:       n.pool,
			BlockStore:    blocks,
			SnapshotStore: snapshots,

			TimeoutStrategy: dbftdriver.LinearTimeoutStrategy{
				Base:    cfg.Timeout,
				PerView: cfg.TimeoutPerView,
			},
			ProposalDelay: cfg.BlockTime,

			FinalizedBlocks: fin,
		})
		if err != nil {
			return fmt.Errorf("failed to start %s: %w", vc.Alias, err)
		}
		nodes = append(nodes, n)
	}

	if err := tr.Stabilize(ctx, len(nodes)); err != nil {
		return err
	}

	if cfg.HTTPAddr != "" {
		ln, err := listenHTTP(cfg.HTTPAddr)
		if err != nil {
			return err
		}
		srv := dbftdebug.NewHTTPServer(ctx, log.With("sys", "http"), dbftdebug.HTTPServerConfig{
			Listener: ln,
			Status:   nodes[0].d,
			Blocks:   nodes[0].blocks,
		})
		defer srv.Wait()
		defer cancel()

		fmt.Fprintf(out, "debug server for %s listening on %s\n", nodes[0].alias, listenerURL(ln))
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()
	if cfg.TxPerBlock > 0 {
		wg.Add(1)
		go feedTransactions(ctx, &wg, log, nodes, cfg.TxPerBlock, cfg.BlockTime)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case blk := <-finalized:
			fmt.Fprintf(
				out, "height=%d hash=%s primary=%s txs=%d witnesses=%d\n",
				blk.Height(), blk.Hash(), vals.At(int(blk.Header.PrimaryIndex)).Alias,
				len(blk.TxHashes), len(blk.Witnesses),
			)
			if cfg.Heights > 0 && blk.Height() >= cfg.Heights {
				return nil
			}
		}
	}
}

func openStores(
	ctx context.Context, log *slog.Logger, dataDir, alias string,
) (dbftstore.BlockStore, dbftstore.SnapshotStore, error) {
	if dataDir == "" {
		return dbftmemstore.NewBlockStore(), dbftmemstore.NewSnapshotStore(), nil
	}

	path := filepath.Join(dataDir, alias+".sqlite")
	s, err := dbftsqlite.NewOnDiskStore(ctx, log.With("sys", "sqlite"), path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store for %s: %w", alias, err)
	}
	return s, s, nil
}

// feedTransactions adds n random transactions to every mempool
// once per interval, standing in for transaction gossip.
func feedTransactions(
	ctx context.Context, wg *sync.WaitGroup, log *slog.Logger,
	nodes []*simNode, n int, interval time.Duration,
) {
	defer wg.Done()

	tick := time.NewTicker(interval)
	defer tick.Stop()

	var priority int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}

		for range n {
			var tx dbftconsensus.Hash
			_, _ = rand.Read(tx[:])
			priority++
			for _, node := range nodes {
				if !node.pool.Add(tx, priority) {
					log.Debug("Mempool full; dropped transaction", "val", node.alias, "tx", tx)
				}
			}
		}
	}
}

// transport connects simulated validators.
type transport interface {
	Connect(context.Context) (dbftp2p.Connection, error)

	// Stabilize blocks until n connections can reach each other.
	Stabilize(ctx context.Context, n int) error

	Wait()
}

func newTransport(ctx context.Context, log *slog.Logger, kind string) (transport, error) {
	switch kind {
	case transportLoopback:
		return loopbackTransport{
			GenericNetwork: &dbftp2ptest.GenericNetwork[*dbftp2ptest.LoopbackConnection]{
				Network: dbftp2ptest.NewLoopbackNetwork(ctx, log),
			},
		}, nil
	case transportLibp2p:
		return &libp2pTransport{ctx: ctx, log: log}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

type loopbackTransport struct {
	*dbftp2ptest.GenericNetwork[*dbftp2ptest.LoopbackConnection]
}

func (t loopbackTransport) Stabilize(ctx context.Context, _ int) error {
	return t.GenericNetwork.Stabilize(ctx)
}

// simTopic is the gossip network name shared by simulated libp2p validators.
const simTopic = "dbftsim"

// libp2pTransport runs one libp2p host per validator on the loopback interface.
// The first host is the DHT bootstrap node,
// and later hosts find the rest of the network through it.
type libp2pTransport struct {
	ctx context.Context
	log *slog.Logger

	mu    sync.Mutex
	conns []*dbftlibp2p.Connection
	discs []*dbftlibp2p.Discovery
}

func (t *libp2pTransport) Connect(context.Context) (dbftp2p.Connection, error) {
	h, err := dbftlibp2p.NewHost(nil)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := len(t.conns)
	log := t.log.With("idx", idx)

	c, err := dbftlibp2p.NewConnection(t.ctx, log, h, simTopic)
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	var boot []peer.AddrInfo
	if idx > 0 {
		bh := t.conns[0].Host()
		boot = []peer.AddrInfo{{ID: bh.ID(), Addrs: bh.Addrs()}}
	}
	d, err := dbftlibp2p.NewDiscovery(t.ctx, log.With("sys", "discovery"), h, dbftlibp2p.DiscoveryConfig{
		Network:   simTopic,
		Bootstrap: boot,
		Interval:  250 * time.Millisecond,
	})
	if err != nil {
		c.Disconnect()
		return nil, err
	}

	t.log.Info("Started host", "idx", idx, "addrs", dbftlibp2p.HostAddrs(h))

	t.conns = append(t.conns, c)
	t.discs = append(t.discs, d)
	return c, nil
}

func (t *libp2pTransport) Stabilize(ctx context.Context, n int) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		if t.stable(n) {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.New("libp2p hosts did not discover each other")
		case <-tick.C:
		}
	}
}

func (t *libp2pTransport) stable(n int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, c := range t.conns {
		if len(c.TopicPeers()) < n-1 {
			return false
		}
	}
	return true
}

// Wait disconnects every host once the simulation context is done.
func (t *libp2pTransport) Wait() {
	<-t.ctx.Done()

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range t.discs {
		if err := d.Close(); err != nil {
			t.log.Debug("Failed to close discovery", "err", err)
		}
	}
	for _, c := range t.conns {
		c.Disconnect()
	}
}

package dbftdriver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/r3e-network/neodbft/dbft/dbftcodec"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftengine"
	"github.com/r3e-network/neodbft/dbft/dbftmempool"
	"github.com/r3e-network/neodbft/dbft/dbftp2p"
	"github.com/r3e-network/neodbft/dbft/dbftstore"
)

// Driver runs one engine. See the package documentation.
type Driver struct {
	log *slog.Logger

	e      *dbftengine.Engine
	scheme dbftconsensus.SignatureScheme

	conn      dbftp2p.Connection
	mempool   dbftmempool.Mempool
	blocks    dbftstore.BlockStore
	snapshots dbftstore.SnapshotStore
	finalized chan<- dbftconsensus.Block

	timeouts         TimeoutStrategy
	recoveryAfter    int
	proposalDelay    time.Duration
	ledgerRetryDelay time.Duration

	txResults      chan txResult
	commitResults  chan commitResult
	statusRequests chan statusRequest

	// Fields below are owned by the kernel goroutine.

	backlog *backlog

	curH uint64
	curV dbftconsensus.ViewNumber

	timer          *time.Timer
	timerC         <-chan time.Time
	timeoutsInView int

	commitAttempts map[uint64]int

	lastSnapshot []byte

	wg   sync.WaitGroup
	done chan struct{}
}

type txResult struct {
	Height uint64
	View   dbftconsensus.ViewNumber
	Txs    []dbftconsensus.Hash
	Err    error
}

type commitResult struct {
	Block dbftconsensus.Block
	Err   error
}

type statusRequest struct {
	Resp chan statusResponse
}

type statusResponse struct {
	Status   dbftengine.Status
	Snapshot []byte
}

// New builds the engine described by cfg, resuming from the block store
// and snapshot store when they hold state,
// and starts the kernel goroutine.
// The driver stops when ctx is canceled or the connection is disconnected;
// use [Driver.Wait] to block until it has stopped.
func New(ctx context.Context, log *slog.Logger, cfg Config) (*Driver, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, fmt.Errorf("invalid driver config: %w", err)
	}

	engCfg := cfg.Engine
	last, err := cfg.BlockStore.LastBlock(ctx)
	switch {
	case err == nil:
		engCfg.Height = last.Height() + 1
		engCfg.View = 0
		engCfg.PrevHash = last.Hash()
		engCfg.PrevTimestampMS = last.Header.TimestampMS
		log.Info("Resuming after stored block", "h", last.Height(), "hash", last.Hash())
	case errors.Is(err, dbftstore.ErrNoBlocks):
		// Start from the configured height.
	default:
		return nil, fmt.Errorf("failed to load last block: %w", err)
	}

	e, err := dbftengine.New(log.With("sys", "engine"), engCfg)
	if err != nil {
		return nil, err
	}

	scheme := engCfg.SignatureScheme
	if scheme == nil {
		scheme = dbftcodec.SignatureScheme{}
	}

	d := &Driver{
		log: log,

		e:      e,
		scheme: scheme,

		conn:      cfg.Connection,
		mempool:   cfg.Mempool,
		blocks:    cfg.BlockStore,
		snapshots: cfg.SnapshotStore,
		finalized: cfg.FinalizedBlocks,

		timeouts:         cfg.TimeoutStrategy,
		recoveryAfter:    cfg.RecoveryAfterTimeouts,
		proposalDelay:    cfg.ProposalDelay,
		ledgerRetryDelay: cfg.LedgerRetryDelay,

		txResults:      make(chan txResult),
		commitResults:  make(chan commitResult),
		statusRequests: make(chan statusRequest),

		backlog: newBacklog(cfg.BacklogPerValidator),

		commitAttempts: make(map[uint64]int),

		done: make(chan struct{}),
	}

	if err := d.restoreSnapshot(ctx); err != nil {
		return nil, err
	}

	e.Start()

	go d.kernel(ctx)
	return d, nil
}

func (d *Driver) restoreSnapshot(ctx context.Context) error {
	if d.snapshots == nil {
		return nil
	}

	h, b, err := d.snapshots.LoadSnapshot(ctx)
	if errors.Is(err, dbftstore.ErrSnapshotNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	if h != d.e.Height() {
		d.log.Info("Ignoring snapshot for another height", "snapshot_h", h, "h", d.e.Height())
		return nil
	}

	if err := d.e.Restore(ctx, b); err != nil {
		d.log.Warn("Failed to restore snapshot; starting round fresh", "h", h, "err", err)
		return nil
	}
	d.lastSnapshot = b
	return nil
}

// Wait blocks until the kernel and all of its helper goroutines have returned.
func (d *Driver) Wait() {
	<-d.done
	d.wg.Wait()
}

// Status returns the engine's current status.
func (d *Driver) Status(ctx context.Context) (dbftengine.Status, error) {
	resp, err := d.request(ctx)
	return resp.Status, err
}

// Snapshot returns the engine's current encoded snapshot.
func (d *Driver) Snapshot(ctx context.Context) ([]byte, error) {
	resp, err := d.request(ctx)
	return resp.Snapshot, err
}

func (d *Driver) request(ctx context.Context) (statusResponse, error) {
	req := statusRequest{Resp: make(chan statusResponse, 1)}

	select {
	case <-ctx.Done():
		return statusResponse{}, context.Cause(ctx)
	case <-d.done:
		return statusResponse{}, errors.New("driver stopped")
	case d.statusRequests <- req:
	}

	select {
	case <-ctx.Done():
		return statusResponse{}, context.Cause(ctx)
	case resp := <-req.Resp:
		return resp, nil
	}
}

func (d *Driver) kernel(ctx context.Context) {
	defer close(d.done)
	defer d.stopTimer()

	d.curH, d.curV = d.e.Height(), d.e.View()
	d.armTimer()
	d.settle(ctx)

	for {
		select {
		case <-ctx.Done():
			d.log.Info("Stopping due to context cancellation", "cause", context.Cause(ctx))
			return

		case <-d.conn.Disconnected():
			d.log.Info("Stopping due to disconnected transport")
			return

		case env := <-d.conn.Incoming():
			d.handleEnvelope(ctx, env)

		case <-d.timerC:
			d.handleTimeout(ctx)

		case r := <-d.txResults:
			d.handleTransactions(ctx, r)

		case r := <-d.commitResults:
			if !d.handleCommitResult(ctx, r) {
				return
			}

		case req := <-d.statusRequests:
			req.Resp <- statusResponse{
				Status:   d.e.Status(),
				Snapshot: d.e.Snapshot(),
			}
			continue
		}

		d.settle(ctx)
	}
}

// settle persists state, carries out pending actions,
// and replays backlogged messages, until the engine stops changing round.
func (d *Driver) settle(ctx context.Context) {
	for {
		d.persistSnapshot(ctx)
		d.runActions(ctx)

		h, v := d.e.Height(), d.e.View()
		if h == d.curH && v == d.curV {
			return
		}

		d.curH, d.curV = h, v
		d.timeoutsInView = 0
		d.armTimer()

		for _, sm := range d.backlog.Ready(h, v) {
			if err := d.e.Deliver(ctx, sm); err != nil {
				d.log.Debug(
					"Dropped backlogged message",
					"h", sm.Height, "v", sm.View, "kind", sm.Kind(), "from", sm.Validator, "err", err,
				)
			}
		}
	}
}

func (d *Driver) persistSnapshot(ctx context.Context) {
	if d.snapshots == nil {
		return
	}

	snap := d.e.Snapshot()
	if string(snap) == string(d.lastSnapshot) {
		return
	}

	if err := d.snapshots.SaveSnapshot(ctx, d.e.Height(), snap); err != nil {
		d.log.Warn("Failed to save snapshot", "h", d.e.Height(), "err", err)
		return
	}
	d.lastSnapshot = snap
}

func (d *Driver) runActions(ctx context.Context) {
	for _, a := range d.e.TakeActions() {
		switch a := a.(type) {
		case dbftengine.BroadcastAction:
			if err := d.conn.Broadcast(ctx, dbftp2p.ConsensusEnvelope(a.Message)); err != nil {
				d.log.Warn("Failed to broadcast", "kind", a.Message.Kind(), "err", err)
			}

		case dbftengine.RequestTransactionsAction:
			d.wg.Add(1)
			go d.requestTransactions(ctx, a)

		case dbftengine.CommitBlockAction:
			h := a.Block.Height()
			var delay time.Duration
			if d.commitAttempts[h] > 0 {
				delay = d.ledgerRetryDelay
			}
			d.commitAttempts[h]++

			d.wg.Add(1)
			go d.commitBlock(ctx, a.Block, delay)

		default:
			panic(fmt.Errorf("BUG: unhandled engine action %T", a))
		}
	}
}

func (d *Driver) requestTransactions(ctx context.Context, a dbftengine.RequestTransactionsAction) {
	defer d.wg.Done()

	if !sleepCtx(ctx, d.proposalDelay) {
		return
	}

	txs, err := d.mempool.RequestTransactions(ctx, a.Height, a.MaxCount)
	select {
	case <-ctx.Done():
	case d.txResults <- txResult{Height: a.Height, View: a.View, Txs: txs, Err: err}:
	}
}

func (d *Driver) handleTransactions(ctx context.Context, r txResult) {
	if r.Err != nil {
		d.log.Warn("Mempool failed; proposing empty block", "h", r.Height, "v", r.View, "err", r.Err)
		r.Txs = nil
	}

	if err := d.e.HandleTransactions(ctx, r.Height, r.View, r.Txs); err != nil {
		d.log.Warn("Failed to propose", "h", r.Height, "v", r.View, "err", err)
	}
}

func (d *Driver) commitBlock(ctx context.Context, blk dbftconsensus.Block, delay time.Duration) {
	defer d.wg.Done()

	if !sleepCtx(ctx, delay) {
		return
	}

	err := d.blocks.CommitBlock(ctx, blk)
	if err == nil {
		if c, ok := d.mempool.(dbftmempool.Committer); ok {
			c.MarkCommitted(ctx, blk)
		}
	}

	select {
	case <-ctx.Done():
	case d.commitResults <- commitResult{Block: blk, Err: err}:
	}
}

// handleCommitResult reports false if the kernel must stop.
func (d *Driver) handleCommitResult(ctx context.Context, r commitResult) bool {
	h := r.Block.Height()
	if err := d.e.HandleBlockCommitted(ctx, h, r.Err); err != nil {
		d.log.Error("Failed to advance after commit", "h", h, "err", err)
		return false
	}
	if r.Err != nil {
		return true
	}

	delete(d.commitAttempts, h)
	d.log.Info(
		"Committed block",
		"h", h, "hash", r.Block.Hash(), "txs", len(r.Block.TxHashes), "witnesses", len(r.Block.Witnesses),
	)

	if d.finalized != nil {
		select {
		case <-ctx.Done():
			return false
		case d.finalized <- r.Block:
		}
	}
	return true
}

func (d *Driver) handleEnvelope(ctx context.Context, env dbftp2p.Envelope) {
	switch env.Type {
	case dbftp2p.EnvelopeTypeConsensus:
		d.handleMessage(ctx, env.Message)

	case dbftp2p.EnvelopeTypeRecoveryRequest:
		d.handleRecoveryRequest(ctx, env.Request)

	case dbftp2p.EnvelopeTypeRecoveryResponse:
		d.handleRecoveryResponse(ctx, env.Response)

	default:
		d.log.Debug("Ignoring envelope of unknown type", "type", env.Type)
	}
}

func (d *Driver) handleMessage(ctx context.Context, sm dbftconsensus.SignedMessage) {
	h, v := d.e.Height(), d.e.View()

	switch {
	case sm.Height < h:
		return

	case sm.Height > h || sm.View > v:
		// Verify before holding, so forged messages cannot evict real ones.
		if err := dbftconsensus.VerifySignature(d.e.Validators(), d.scheme, sm); err != nil {
			d.log.Debug("Dropped future message", "h", sm.Height, "v", sm.View, "from", sm.Validator, "err", err)
			return
		}
		if d.backlog.Add(sm) {
			d.log.Debug(
				"Holding future message",
				"h", sm.Height, "v", sm.View, "kind", sm.Kind(), "from", sm.Validator,
			)
		}
		return
	}

	if err := d.e.Deliver(ctx, sm); err != nil {
		d.log.Debug(
			"Rejected message",
			"h", sm.Height, "v", sm.View, "kind", sm.Kind(), "from", sm.Validator, "err", err,
		)
	}
}

func (d *Driver) handleTimeout(ctx context.Context) {
	h, v := d.curH, d.curV
	d.timeoutsInView++

	if err := d.e.HandleTimeout(ctx, h, v); err != nil {
		d.log.Warn("Failed to handle timeout", "h", h, "v", v, "err", err)
	}

	if d.timeoutsInView >= d.recoveryAfter {
		st := d.e.Status()
		req := dbftp2p.RecoveryRequest{Height: h, View: v, Validator: st.Validator}
		if err := d.conn.Broadcast(ctx, dbftp2p.RecoveryRequestEnvelope(req)); err != nil {
			d.log.Warn("Failed to request recovery", "h", h, "v", v, "err", err)
		} else {
			d.log.Info("Requested recovery", "h", h, "v", v, "timeouts", d.timeoutsInView)
		}
	}

	d.armTimer()
}

func (d *Driver) handleRecoveryRequest(ctx context.Context, req dbftp2p.RecoveryRequest) {
	if req.Height != d.e.Height() {
		return
	}

	rec := d.e.RecoveryData()
	resp := dbftp2p.RecoveryResponse{
		Height:      req.Height,
		From:        d.e.Status().Validator,
		Snapshot:    rec.Snapshot,
		ViewChanges: rec.ViewChanges,
	}
	if err := d.conn.Broadcast(ctx, dbftp2p.RecoveryResponseEnvelope(resp)); err != nil {
		d.log.Warn("Failed to answer recovery request", "h", req.Height, "err", err)
		return
	}
	d.log.Debug("Answered recovery request", "h", req.Height, "v", req.View, "to", req.Validator)
}

func (d *Driver) handleRecoveryResponse(ctx context.Context, resp dbftp2p.RecoveryResponse) {
	if resp.Height != d.e.Height() {
		return
	}

	n, err := d.e.Recover(ctx, dbftengine.Recovery{
		Snapshot:    resp.Snapshot,
		ViewChanges: resp.ViewChanges,
	})
	if err != nil {
		d.log.Debug("Failed to recover from peer", "from", resp.From, "err", err)
		return
	}
	if n > 0 {
		d.log.Info("Recovered from peer", "from", resp.From, "h", d.e.Height(), "v", d.e.View(), "n", n)
	}
}

func (d *Driver) armTimer() {
	d.stopTimer()
	d.timer = time.NewTimer(d.timeouts.Timeout(d.curV))
	d.timerC = d.timer.C
}

func (d *Driver) stopTimer() {
	if d.timer != nil {
		d.timer.Stop()
	}
}

// sleepCtx waits for dur, reporting false if ctx ends first.
func sleepCtx(ctx context.Context, dur time.Duration) bool {
	if dur <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

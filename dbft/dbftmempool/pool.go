package dbftmempool

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
)

// Pool is a thread-safe in-memory [Mempool].
//
// Transactions are handed out by descending priority,
// and in arrival order among equal priorities.
// Handing out a transaction does not remove it;
// only [Pool.MarkCommitted] does,
// so a proposal abandoned by a view change loses nothing.
type Pool struct {
	log *slog.Logger

	mu    sync.Mutex
	items txHeap
	byTx  map[dbftconsensus.Hash]*entry
	seq   uint64

	capacity int

	stats Stats
}

// Stats are counters over the lifetime of a [Pool].
type Stats struct {
	Added     uint64
	Rejected  uint64
	Committed uint64
	Requests  uint64
}

type entry struct {
	tx       dbftconsensus.Hash
	priority int64
	seq      uint64
	idx      int
}

// NewPool returns an empty pool holding at most capacity transactions.
// A capacity of zero or less means unbounded.
func NewPool(log *slog.Logger, capacity int) *Pool {
	return &Pool{
		log:      log,
		byTx:     make(map[dbftconsensus.Hash]*entry),
		capacity: capacity,
	}
}

// Add inserts tx with the given priority.
// It reports false if tx is already present or the pool is full.
func (p *Pool) Add(tx dbftconsensus.Hash, priority int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byTx[tx]; ok {
		atomic.AddUint64(&p.stats.Rejected, 1)
		return false
	}
	if p.capacity > 0 && len(p.items) >= p.capacity {
		atomic.AddUint64(&p.stats.Rejected, 1)
		p.log.Debug("Mempool full; dropping transaction", "tx", tx, "cap", p.capacity)
		return false
	}

	p.seq++
	e := &entry{tx: tx, priority: priority, seq: p.seq}
	heap.Push(&p.items, e)
	p.byTx[tx] = e

	atomic.AddUint64(&p.stats.Added, 1)
	return true
}

// Len returns the number of pending transactions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Has reports whether tx is pending.
func (p *Pool) Has(tx dbftconsensus.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byTx[tx]
	return ok
}

// RequestTransactions implements [Mempool].
func (p *Pool) RequestTransactions(ctx context.Context, height uint64, max int) ([]dbftconsensus.Hash, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	atomic.AddUint64(&p.stats.Requests, 1)

	p.mu.Lock()
	defer p.mu.Unlock()

	n := min(max, len(p.items))
	if n <= 0 {
		return nil, nil
	}

	// Pop the best n and push them back, leaving the pool unchanged.
	popped := make([]*entry, n)
	for i := range popped {
		popped[i] = heap.Pop(&p.items).(*entry)
	}
	out := make([]dbftconsensus.Hash, n)
	for i, e := range popped {
		out[i] = e.tx
		heap.Push(&p.items, e)
	}

	p.log.Debug("Supplied transactions", "h", height, "n", n, "pending", len(p.items))
	return out, nil
}

// MarkCommitted removes every transaction in blk from the pool.
func (p *Pool) MarkCommitted(_ context.Context, blk dbftconsensus.Block) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var n uint64
	for _, tx := range blk.TxHashes {
		e, ok := p.byTx[tx]
		if !ok {
			continue
		}
		heap.Remove(&p.items, e.idx)
		delete(p.byTx, tx)
		n++
	}
	atomic.AddUint64(&p.stats.Committed, n)
}

// Stats returns a copy of the pool's counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Added:     atomic.LoadUint64(&p.stats.Added),
		Rejected:  atomic.LoadUint64(&p.stats.Rejected),
		Committed: atomic.LoadUint64(&p.stats.Committed),
		Requests:  atomic.LoadUint64(&p.stats.Requests),
	}
}

// txHeap implements heap.Interface, highest priority first.
type txHeap []*entry

func (h txHeap) Len() int { return len(h) }

func (h txHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h txHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx = i
	h[j].idx = j
}

func (h *txHeap) Push(x any) {
	e := x.(*entry)
	e.idx = len(*h)
	*h = append(*h, e)
}

func (h *txHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

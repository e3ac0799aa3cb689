package dbftp2ptest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/r3e-network/neodbft/dbft/dbftp2p"
)

// Filter decides whether an envelope from the connection at index from
// is delivered to the connection at index to.
type Filter func(from, to int, env dbftp2p.Envelope) bool

// LoopbackNetwork connects any number of in-process [LoopbackConnection] values.
//
// Every broadcast envelope passes through the wire encoding,
// so receivers never share memory with the sender.
// Delivery queues are unbounded, so a slow receiver never blocks a broadcaster.
type LoopbackNetwork struct {
	log *slog.Logger
	ctx context.Context

	mu     sync.RWMutex
	conns  []*LoopbackConnection
	filter Filter

	wg sync.WaitGroup
}

// NewLoopbackNetwork returns an empty network.
// Background work stops when ctx is canceled.
func NewLoopbackNetwork(ctx context.Context, log *slog.Logger) *LoopbackNetwork {
	return &LoopbackNetwork{log: log, ctx: ctx}
}

// Connect adds a new connection to the network.
func (n *LoopbackNetwork) Connect(ctx context.Context) (*LoopbackConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	idx := len(n.conns)
	c := &LoopbackConnection{
		n:   n,
		idx: idx,
		log: n.log.With("conn", idx),

		notify:       make(chan struct{}, 1),
		incoming:     make(chan dbftp2p.Envelope, 16),
		disconnectCh: make(chan struct{}),
		disconnected: make(chan struct{}),
	}
	n.conns = append(n.conns, c)

	n.wg.Add(1)
	go c.pump(n.ctx)

	return c, nil
}

// Stabilize is a no-op; loopback connections are reachable immediately.
func (n *LoopbackNetwork) Stabilize(context.Context) error {
	return nil
}

// SetFilter installs f, replacing any previous filter.
// A nil filter delivers everything.
func (n *LoopbackNetwork) SetFilter(f Filter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.filter = f
}

// Wait blocks until every connection's background goroutine has returned.
func (n *LoopbackNetwork) Wait() {
	n.wg.Wait()
}

func (n *LoopbackNetwork) broadcast(from int, b []byte) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, c := range n.conns {
		if c.idx == from {
			continue
		}

		env, err := dbftp2p.DecodeEnvelope(b)
		if err != nil {
			return fmt.Errorf("failed to decode broadcast envelope: %w", err)
		}
		if n.filter != nil && !n.filter(from, c.idx, env) {
			continue
		}
		c.enqueue(env)
	}
	return nil
}

// LoopbackConnection is a [dbftp2p.Connection] within a [LoopbackNetwork].
type LoopbackConnection struct {
	n   *LoopbackNetwork
	idx int
	log *slog.Logger

	mu     sync.Mutex
	queue  []dbftp2p.Envelope
	closed bool

	notify   chan struct{}
	incoming chan dbftp2p.Envelope

	disconnectOnce sync.Once
	disconnectCh   chan struct{}
	disconnected   chan struct{}
}

var _ dbftp2p.Connection = (*LoopbackConnection)(nil)

// Index is the order in which the connection joined its network.
func (c *LoopbackConnection) Index() int {
	return c.idx
}

func (c *LoopbackConnection) Broadcast(ctx context.Context, env dbftp2p.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.disconnectCh:
		return fmt.Errorf("connection %d is disconnected", c.idx)
	default:
	}

	return c.n.broadcast(c.idx, dbftp2p.EncodeEnvelope(env))
}

func (c *LoopbackConnection) Incoming() <-chan dbftp2p.Envelope {
	return c.incoming
}

func (c *LoopbackConnection) Disconnect() {
	c.disconnectOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.queue = nil
		c.mu.Unlock()

		close(c.disconnectCh)
	})
	<-c.disconnected
}

func (c *LoopbackConnection) Disconnected() <-chan struct{} {
	return c.disconnected
}

func (c *LoopbackConnection) enqueue(env dbftp2p.Envelope) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, env)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *LoopbackConnection) pump(ctx context.Context) {
	defer c.n.wg.Done()
	defer close(c.disconnected)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.disconnectCh:
			return
		case <-c.notify:
		}

		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		c.mu.Unlock()

		for _, env := range batch {
			select {
			case <-ctx.Done():
				return
			case <-c.disconnectCh:
				return
			case c.incoming <- env:
			}
		}
	}
}

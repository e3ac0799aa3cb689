// Package dbftlibp2ptest contains a [dbftp2ptest.Network] of libp2p hosts
// on the loopback interface.
package dbftlibp2ptest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/r3e-network/neodbft/dbft/dbftp2p/dbftlibp2p"
)

// Network is a fully connected set of libp2p connections
// sharing one gossip topic.
type Network struct {
	log  *slog.Logger
	ctx  context.Context
	name string

	mu    sync.Mutex
	conns []*dbftlibp2p.Connection

	wg sync.WaitGroup
}

// NewNetwork returns an empty network.
// All connections are disconnected once ctx is canceled.
func NewNetwork(ctx context.Context, log *slog.Logger) (*Network, error) {
	n := &Network{log: log, ctx: ctx, name: "test"}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		<-ctx.Done()

		n.mu.Lock()
		defer n.mu.Unlock()
		for _, c := range n.conns {
			c.Disconnect()
		}
	}()

	return n, nil
}

// Connect starts a new host, joins the topic,
// and dials every host already in the network.
func (n *Network) Connect(ctx context.Context) (*dbftlibp2p.Connection, error) {
	h, err := dbftlibp2p.NewHost(nil)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	idx := len(n.conns)
	c, err := dbftlibp2p.NewConnection(n.ctx, n.log.With("idx", idx), h, n.name)
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	for _, other := range n.conns {
		oh := other.Host()
		if err := c.ConnectPeer(ctx, peer.AddrInfo{ID: oh.ID(), Addrs: oh.Addrs()}); err != nil {
			c.Disconnect()
			return nil, err
		}
	}

	n.conns = append(n.conns, c)
	return c, nil
}

// Stabilize blocks until every connection sees every other
// as a subscriber of the topic.
func (n *Network) Stabilize(ctx context.Context) error {
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

	for {
		if n.stable() {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("network did not stabilize: %w", context.Cause(ctx))
		case <-tick.C:
		}
	}
}

func (n *Network) stable() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, c := range n.conns {
		select {
		case <-c.Disconnected():
			continue
		default:
		}
		if len(c.TopicPeers()) < len(n.conns)-1 {
			return false
		}
	}
	return true
}

// Wait blocks until every connection has been disconnected.
func (n *Network) Wait() {
	n.wg.Wait()
}

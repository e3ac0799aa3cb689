// Package dbftp2ptest contains an in-process network
// and a compliance suite for [dbftp2p.Connection] implementations.
package dbftp2ptest

import (
	"context"

	"github.com/r3e-network/neodbft/dbft/dbftp2p"
)

// Network is the test harness's view of a set of connectable nodes.
type Network interface {
	// Connect adds a node to the network.
	Connect(context.Context) (dbftp2p.Connection, error)

	// Stabilize blocks until every connection can reach every other.
	Stabilize(context.Context) error

	// Wait blocks until all background work has completed,
	// after the network's context is canceled.
	Wait()
}

// GenericNetwork adapts a network returning a concrete connection type
// to the [Network] interface.
type GenericNetwork[C dbftp2p.Connection] struct {
	Network interface {
		Connect(context.Context) (C, error)
		Stabilize(context.Context) error
		Wait()
	}
}

func (n *GenericNetwork[C]) Connect(ctx context.Context) (dbftp2p.Connection, error) {
	c, err := n.Network.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (n *GenericNetwork[C]) Stabilize(ctx context.Context) error {
	return n.Network.Stabilize(ctx)
}

func (n *GenericNetwork[C]) Wait() {
	n.Network.Wait()
}

// Package dbftp2p defines the transport boundary of a dBFT node:
// the [Envelope] exchanged between peers, its wire encoding,
// and the [Connection] a node uses to broadcast and receive envelopes.
//
// The transport is best effort.
// Consensus messages are signed, so a Connection needs no authentication
// and may deliver duplicates or drop messages;
// the engine tolerates both, and the recovery exchange repairs gaps.
package dbftp2p

import "context"

// Connection is one node's attachment to the network.
type Connection interface {
	// Broadcast sends env to every other connected node.
	// Envelopes are never delivered back to their sender.
	Broadcast(ctx context.Context, env Envelope) error

	// Incoming returns the channel of envelopes received from peers.
	// It is never closed; select on Disconnected as well.
	Incoming() <-chan Envelope

	// Disconnect leaves the network and releases resources.
	// It is safe to call more than once.
	Disconnect()

	// Disconnected is closed once Disconnect has completed.
	Disconnected() <-chan struct{}
}

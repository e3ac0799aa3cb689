// Package dbftlibp2p is a [dbftp2p.Connection] over libp2p GossipSub.
//
// Every node joins a single pubsub topic.
// Envelopes are published in their [dbftp2p.EncodeEnvelope] form,
// and messages that fail to decode are rejected by a topic validator
// before they are propagated further.
package dbftlibp2p

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/r3e-network/neodbft/dbft/dbftp2p"
)

// TopicName returns the pubsub topic used for the named network.
func TopicName(network string) string {
	return "/dbft/" + network + "/envelopes/1"
}

// Connection is a [dbftp2p.Connection] backed by a libp2p host.
type Connection struct {
	log *slog.Logger

	h     host.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	incoming chan dbftp2p.Envelope

	cancel context.CancelFunc

	disconnectOnce sync.Once
	disconnected   chan struct{}
}

var _ dbftp2p.Connection = (*Connection)(nil)

// NewConnection starts GossipSub on h and joins the topic for network.
// The connection owns h and closes it on [Connection.Disconnect].
func NewConnection(ctx context.Context, log *slog.Logger, h host.Host, network string) (*Connection, error) {
	ctx, cancel := context.WithCancel(ctx)

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start gossipsub: %w", err)
	}

	topicName := TopicName(network)
	if err := ps.RegisterTopicValidator(topicName, validateEnvelope); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register topic validator: %w", err)
	}

	topic, err := ps.Join(topicName)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to join topic %q: %w", topicName, err)
	}

	sub, err := topic.Subscribe()
	if err != nil {
		_ = topic.Close()
		cancel()
		return nil, fmt.Errorf("failed to subscribe to topic %q: %w", topicName, err)
	}

	c := &Connection{
		log: log.With("peer", h.ID().String()),

		h:     h,
		ps:    ps,
		topic: topic,
		sub:   sub,

		incoming: make(chan dbftp2p.Envelope, 64),

		cancel: cancel,

		disconnected: make(chan struct{}),
	}
	go c.readLoop(ctx)

	return c, nil
}

func validateEnvelope(_ context.Context, _ peer.ID, msg *pubsub.Message) bool {
	_, err := dbftp2p.DecodeEnvelope(msg.Data)
	return err == nil
}

// Host returns the underlying libp2p host.
func (c *Connection) Host() host.Host {
	return c.h
}

// ConnectPeer dials the peer described by info.
func (c *Connection) ConnectPeer(ctx context.Context, info peer.AddrInfo) error {
	if err := c.h.Connect(ctx, info); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", info.ID, err)
	}
	return nil
}

// TopicPeers returns the peers currently known to be subscribed to the topic.
func (c *Connection) TopicPeers() []peer.ID {
	return c.topic.ListPeers()
}

func (c *Connection) Broadcast(ctx context.Context, env dbftp2p.Envelope) error {
	select {
	case <-c.disconnected:
		return errors.New("connection is disconnected")
	default:
	}

	if err := c.topic.Publish(ctx, dbftp2p.EncodeEnvelope(env)); err != nil {
		return fmt.Errorf("failed to publish %s envelope: %w", env.Type, err)
	}
	return nil
}

func (c *Connection) Incoming() <-chan dbftp2p.Envelope {
	return c.incoming
}

func (c *Connection) Disconnect() {
	c.disconnectOnce.Do(func() {
		c.cancel()
		c.sub.Cancel()
		if err := c.topic.Close(); err != nil {
			c.log.Debug("Failed to close topic", "err", err)
		}
		if err := c.h.Close(); err != nil {
			c.log.Debug("Failed to close host", "err", err)
		}
		close(c.disconnected)
	})
}

func (c *Connection) Disconnected() <-chan struct{} {
	return c.disconnected
}

func (c *Connection) readLoop(ctx context.Context) {
	self := c.h.ID()
	for {
		msg, err := c.sub.Next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, pubsub.ErrSubscriptionCancelled) {
				c.log.Info("Subscription ended", "err", err)
			}
			return
		}

		if msg.ReceivedFrom == self {
			continue
		}

		env, err := dbftp2p.DecodeEnvelope(msg.Data)
		if err != nil {
			// The topic validator should have rejected it.
			c.log.Warn("Dropping undecodable envelope", "from", msg.ReceivedFrom, "err", err)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case c.incoming <- env:
		}
	}
}

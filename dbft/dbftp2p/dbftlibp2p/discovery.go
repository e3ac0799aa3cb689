package dbftlibp2p

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
)

// dhtPrefix keeps the validator DHT separate from the public IPFS DHT.
const dhtPrefix = "/dbft"

// DefaultDiscoveryInterval is used when [DiscoveryConfig.Interval] is zero.
const DefaultDiscoveryInterval = 5 * time.Second

// DiscoveryConfig is the configuration for [NewDiscovery].
type DiscoveryConfig struct {
	// Network is the name passed to [NewConnection].
	// Hosts only find peers advertising the same network.
	Network string

	// Bootstrap peers are dialed before the DHT starts.
	// At least one is needed unless this host is itself the bootstrap node.
	Bootstrap []peer.AddrInfo

	// How often to re-advertise and search for peers.
	Interval time.Duration
}

// Discovery finds validators on the same network through a Kademlia DHT
// and keeps the host connected to them,
// so that gossip does not depend on a full mesh of static dials.
type Discovery struct {
	log *slog.Logger

	h   host.Host
	dht *dht.IpfsDHT
	rd  *drouting.RoutingDiscovery

	ns       string
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDiscovery starts a DHT server on h and begins advertising and searching
// in the background until ctx is canceled or [Discovery.Close] is called.
func NewDiscovery(ctx context.Context, log *slog.Logger, h host.Host, cfg DiscoveryConfig) (*Discovery, error) {
	for _, p := range cfg.Bootstrap {
		if p.ID == h.ID() {
			continue
		}
		if err := h.Connect(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to connect to bootstrap peer %s: %w", p.ID, err)
		}
	}

	kad, err := dht.New(
		ctx, h,
		dht.Mode(dht.ModeServer),
		dht.ProtocolPrefix(dhtPrefix),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start DHT: %w", err)
	}

	if err := kad.Bootstrap(ctx); err != nil {
		_ = kad.Close()
		return nil, fmt.Errorf("failed to bootstrap DHT: %w", err)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultDiscoveryInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	d := &Discovery{
		log: log,

		h:   h,
		dht: kad,
		rd:  drouting.NewRoutingDiscovery(kad),

		ns:       TopicName(cfg.Network),
		interval: interval,

		cancel: cancel,
		done:   make(chan struct{}),
	}
	go d.mainLoop(ctx)

	return d, nil
}

func (d *Discovery) mainLoop(ctx context.Context) {
	defer close(d.done)

	tick := time.NewTicker(d.interval)
	defer tick.Stop()

	var advertisedUntil time.Time
	for {
		if time.Now().After(advertisedUntil) {
			// Advertising fails while the routing table is still empty;
			// leaving advertisedUntil unset retries on the next tick.
			ttl, err := d.rd.Advertise(ctx, d.ns)
			if err != nil {
				d.log.Debug("Failed to advertise", "err", err)
			} else {
				advertisedUntil = time.Now().Add(ttl / 2)
			}
		}

		d.findPeers(ctx)

		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

func (d *Discovery) findPeers(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, d.interval)
	defer cancel()

	peers, err := d.rd.FindPeers(ctx, d.ns)
	if err != nil {
		d.log.Debug("Failed to search for peers", "err", err)
		return
	}

	for p := range peers {
		if p.ID == d.h.ID() || len(p.Addrs) == 0 {
			continue
		}
		if d.h.Network().Connectedness(p.ID) == network.Connected {
			continue
		}

		if err := d.h.Connect(ctx, p); err != nil {
			d.log.Debug("Failed to connect to discovered peer", "peer", p.ID, "err", err)
			continue
		}
		d.log.Info("Connected to discovered peer", "peer", p.ID)
	}
}

// RoutingTableSize reports how many DHT servers this host currently knows.
func (d *Discovery) RoutingTableSize() int {
	return d.dht.RoutingTable().Size()
}

// Close stops the background search and shuts down the DHT.
// The host itself is left open.
func (d *Discovery) Close() error {
	d.cancel()
	<-d.done
	return d.dht.Close()
}

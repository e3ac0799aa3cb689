package dbftlibp2p_test

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/r3e-network/neodbft/dbft/dbftp2p/dbftlibp2p"
	"github.com/r3e-network/neodbft/internal/dtest"
	"github.com/stretchr/testify/require"
)

func TestDiscovery_findsPeersThroughBootstrap(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := dtest.NewLogger(t)

	hosts := make([]host.Host, 3)
	for i := range hosts {
		h, err := dbftlibp2p.NewHost(nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = h.Close() })
		hosts[i] = h
	}

	boot := peer.AddrInfo{ID: hosts[0].ID(), Addrs: hosts[0].Addrs()}

	for i, h := range hosts {
		d, err := dbftlibp2p.NewDiscovery(ctx, log.With("idx", i), h, dbftlibp2p.DiscoveryConfig{
			Network:   "discovery-test",
			Bootstrap: []peer.AddrInfo{boot},
			Interval:  100 * time.Millisecond,
		})
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, d.Close()) })
	}

	// Hosts 1 and 2 were only given host 0, so they must find each other.
	require.Eventually(t, func() bool {
		return hosts[1].Network().Connectedness(hosts[2].ID()) == network.Connected
	}, 10*time.Second, 50*time.Millisecond)
}

func TestDiscovery_failsOnUnreachableBootstrap(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := dbftlibp2p.NewHost(nil)
	require.NoError(t, err)
	defer h.Close()

	gone, err := dbftlibp2p.NewHost(nil)
	require.NoError(t, err)
	info := peer.AddrInfo{ID: gone.ID(), Addrs: gone.Addrs()}
	require.NoError(t, gone.Close())

	_, err = dbftlibp2p.NewDiscovery(ctx, dtest.NewLogger(t), h, dbftlibp2p.DiscoveryConfig{
		Network:   "discovery-test",
		Bootstrap: []peer.AddrInfo{info},
	})
	require.Error(t, err)
}

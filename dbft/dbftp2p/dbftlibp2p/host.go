package dbftlibp2p

import (
	"fmt"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// NewHost returns a libp2p host listening on the given multiaddrs.
// With no addresses it listens on an ephemeral loopback TCP port.
// A nil identity generates a fresh ed25519 key.
func NewHost(identity crypto.PrivKey, listenAddrs ...string) (host.Host, error) {
	if len(listenAddrs) == 0 {
		listenAddrs = []string{"/ip4/127.0.0.1/tcp/0"}
	}

	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(listenAddrs...),
	}
	if identity != nil {
		opts = append(opts, libp2p.Identity(identity))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}
	return h, nil
}

// HostAddrs returns the full p2p multiaddrs of h, including its peer ID,
// in the form accepted by [ParsePeerAddr].
func HostAddrs(h host.Host) []string {
	info := peer.AddrInfo{ID: h.ID(), Addrs: h.Addrs()}
	mas, err := peer.AddrInfoToP2pAddrs(&info)
	if err != nil {
		return nil
	}
	out := make([]string, len(mas))
	for i, ma := range mas {
		out[i] = ma.String()
	}
	return out
}

// ParsePeerAddr parses a multiaddr ending in /p2p/<peer id>.
func ParsePeerAddr(s string) (peer.AddrInfo, error) {
	ma, err := multiaddr.NewMultiaddr(s)
	if err != nil {
		return peer.AddrInfo{}, fmt.Errorf("invalid multiaddr %q: %w", s, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		return peer.AddrInfo{}, fmt.Errorf("multiaddr %q has no peer ID: %w", s, err)
	}
	return *info, nil
}

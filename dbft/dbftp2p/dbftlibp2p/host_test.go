package dbftlibp2p_test

import (
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftp2p/dbftlibp2p"
	"github.com/stretchr/testify/require"
)

func TestHostAddrs_roundTrip(t *testing.T) {
	t.Parallel()

	h, err := dbftlibp2p.NewHost(nil)
	require.NoError(t, err)
	defer h.Close()

	addrs := dbftlibp2p.HostAddrs(h)
	require.NotEmpty(t, addrs)

	info, err := dbftlibp2p.ParsePeerAddr(addrs[0])
	require.NoError(t, err)
	require.Equal(t, h.ID(), info.ID)
	require.Len(t, info.Addrs, 1)
}

func TestParsePeerAddr_invalid(t *testing.T) {
	t.Parallel()

	_, err := dbftlibp2p.ParsePeerAddr("not a multiaddr")
	require.Error(t, err)

	_, err = dbftlibp2p.ParsePeerAddr("/ip4/127.0.0.1/tcp/4001")
	require.Error(t, err)
}

func TestTopicName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/dbft/devnet/envelopes/1", dbftlibp2p.TopicName("devnet"))
}

package link

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestConnectionURIParse is S1.
func TestConnectionURIParse(t *testing.T) {
	mgr := NewManager(newFakeEnumerator(1))

	c, err := NewConnection("radio://0/80/2M/E7E7E7E7E7", withManager(mgr), WithSafelink(false))
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, Address(0xE7E7E7E7E7), c.state.address)
	require.Equal(t, 80, c.state.channel)
	require.Equal(t, DataRate2M, c.state.datarate)
	require.Equal(t, 0, c.dongleIndex)
}

// TestConnectionURIReject is S2: an invalid datarate token fails
// construction.
func TestConnectionURIReject(t *testing.T) {
	_, err := NewConnection("radio://0/80/3M/E7E7E7E7E7")
	require.ErrorIs(t, err, ErrURIMalformed)
}

// TestConnectionURIRoundTrip is invariant 7.
func TestConnectionURIRoundTrip(t *testing.T) {
	mgr := NewManager(newFakeEnumerator(1))
	const uri = "radio://0/42/1M/AABBCCDDEE"

	c, err := NewConnection(uri, withManager(mgr))
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, uri, c.URI())
}

func TestConnectionSendEnqueues(t *testing.T) {
	mgr := NewManager(newFakeEnumerator(1))
	c, err := NewConnection("radio://0/10/2M/E7E7E7E7E7", withManager(mgr))
	require.NoError(t, err)
	defer c.Close()

	p, err := NewPacket(2, 0, []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, c.Send(p))
	require.Equal(t, uint64(1), c.Statistics().EnqueuedCount())
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	mgr := NewManager(newFakeEnumerator(1))
	c, err := NewConnection("radio://0/10/2M/E7E7E7E7E7", withManager(mgr))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

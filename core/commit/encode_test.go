package commit

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Commit{
		NewProcessCreated(1, "init"),
		NewProcessTerminated(1, -1),
		NewProcessFaulted(2, "bad syscall"),
		NewProcessReaped(2),
		NewEndpointCreated(5, 1),
		NewEndpointClosed(5),
		NewCapabilityInserted(1, 0, 1, 5, 3, 1),
		NewCapabilityRevoked(1, 0),
		NewMessageSent(1, 5, 0x100, 12),
		NewMessageDelivered(5, 2, 0x100),
		NewMessageRejected(1, 5, "grant attempted without grant right"),
		NewCallTimedOut(3),
	}

	for _, c := range cases {
		payload := Encode(c)
		decoded, err := decodePayload(c.Kind, payload)
		require.NoError(t, err)
		if diff := cmp.Diff(c, decoded); diff != "" {
			t.Errorf("%s round-trip mismatch (-want +got):\n%s", c.Kind, diff)
		}
	}
}

func TestChainHashDeterministic(t *testing.T) {
	c := NewProcessCreated(1, "init")
	var prev Hash256

	h1 := ChainHash(prev, 1000, c)
	h2 := ChainHash(prev, 1000, c)
	require.Equal(t, h1, h2, "ChainHash must be a pure function of its inputs")

	h3 := ChainHash(prev, 1001, c)
	require.NotEqual(t, h1, h3, "changing the timestamp must change the hash")

	h4 := ChainHash(h1, 1000, c)
	require.NotEqual(t, h1, h4, "changing the previous hash must change the hash")
}

func TestChainHashSensitiveToPayload(t *testing.T) {
	var prev Hash256
	h1 := ChainHash(prev, 0, NewProcessCreated(1, "init"))
	h2 := ChainHash(prev, 0, NewProcessCreated(1, "inot"))
	require.NotEqual(t, h1, h2)
}

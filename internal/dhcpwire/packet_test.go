package dhcpwire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func testDiscover(t *testing.T) *Packet {
	t.Helper()
	mac, err := net.ParseMAC("08:00:27:e7:de:fe")
	require.NoError(t, err)

	p := &Packet{
		Op:     OpBootRequest,
		HType:  1,
		HLen:   6,
		Hops:   0,
		XID:    0xAABBCCDD,
		Secs:   0,
		Flags:  0x8000,
		CIAddr: net.IPv4zero,
		YIAddr: net.IPv4zero,
		SIAddr: net.IPv4zero,
		GIAddr: net.IPv4zero,
		CHAddr: mac,
		Options: Options{
			OptMessageType:     {byte(MsgDiscover)},
			OptClassIdentifier: []byte("PXEClient:Arch:00007:UNDI:003000"),
		},
	}
	return p
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	p := testDiscover(t)

	raw, err := p.Marshal()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), minFrameSize)

	got, err := Unmarshal(raw)
	require.NoError(t, err)

	require.Equal(t, p.XID, got.XID)
	require.Equal(t, p.Flags, got.Flags)
	require.Equal(t, p.CHAddr, got.CHAddr)
	require.Equal(t, p.Options[OptMessageType], got.Options[OptMessageType])
	require.Equal(t, p.Options[OptClassIdentifier], got.Options[OptClassIdentifier])
}

// TestDecodeEncodeByteIdentical asserts §8: decoding then encoding a
// well-formed frame reproduces the same bytes for every option, with
// options canonicalized by ascending code.
func TestDecodeEncodeByteIdentical(t *testing.T) {
	p := testDiscover(t)
	p.Options.SetByte(OptHopCountTestOnly(), 1) // out-of-order insert
	raw, err := p.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(raw)
	require.NoError(t, err)

	reencoded, err := decoded.Marshal()
	require.NoError(t, err)

	require.Equal(t, raw, reencoded)
}

// OptHopCountTestOnly returns an option code unused by the core, solely to
// exercise canonical-ordering behavior without relying on map ordering.
func OptHopCountTestOnly() uint8 { return 2 }

func TestUnmarshalRejectsShortFrame(t *testing.T) {
	_, err := Unmarshal(make([]byte, 100))
	require.Error(t, err)
}

func TestUnmarshalRejectsBadCookie(t *testing.T) {
	b := make([]byte, headerSize)
	b[236], b[237], b[238], b[239] = 1, 2, 3, 4
	_, err := Unmarshal(b)
	require.Error(t, err)
}

func TestBroadcastFlag(t *testing.T) {
	p := testDiscover(t)
	require.True(t, p.Broadcast())
	p.Flags = 0
	require.False(t, p.Broadcast())
}

func TestMessageType(t *testing.T) {
	p := testDiscover(t)
	require.Equal(t, MsgDiscover, p.MessageType())
}

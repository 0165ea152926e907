package dhcpproxy

import (
	"net"
	"testing"
	"time"

	"github.com/alexculea/preboot-oxide/internal/dhcpwire"
	"github.com/alexculea/preboot-oxide/internal/netconf"
	"github.com/alexculea/preboot-oxide/internal/poerr"
	"github.com/alexculea/preboot-oxide/internal/session"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func mustResolver(t *testing.T, cfg netconf.Config) *netconf.Resolver {
	r, err := netconf.Compile(cfg)
	require.NoError(t, err)
	return r
}

func discoverPacket(xid uint32, mac net.HardwareAddr, classID string, broadcast bool) *dhcpwire.Packet {
	p := &dhcpwire.Packet{
		Op:      dhcpwire.OpBootRequest,
		HType:   1,
		HLen:    6,
		XID:     xid,
		CHAddr:  mac,
		Options: make(dhcpwire.Options),
	}
	if broadcast {
		p.Flags = 0x8000
	}
	p.Options.SetByte(dhcpwire.OptMessageType, byte(dhcpwire.MsgDiscover))
	p.Options.SetString(dhcpwire.OptClassIdentifier, classID)
	return p
}

func offerPacket(xid uint32, yiaddr, subnet, serverID net.IP, lease uint32) *dhcpwire.Packet {
	p := &dhcpwire.Packet{
		Op:      dhcpwire.OpBootReply,
		XID:     xid,
		YIAddr:  yiaddr,
		Options: make(dhcpwire.Options),
	}
	p.Options.SetByte(dhcpwire.OptMessageType, byte(dhcpwire.MsgOffer))
	p.Options.SetIP(dhcpwire.OptSubnetMask, subnet)
	p.Options.SetIP(dhcpwire.OptServerIdentifier, serverID)
	p.Options.SetUint32(dhcpwire.OptLeaseTime, lease)
	return p
}

func requestPacket(xid uint32, mac net.HardwareAddr, classID string) *dhcpwire.Packet {
	p := &dhcpwire.Packet{
		Op:      dhcpwire.OpBootRequest,
		XID:     xid,
		CHAddr:  mac,
		Options: make(dhcpwire.Options),
	}
	p.Options.SetByte(dhcpwire.OptMessageType, byte(dhcpwire.MsgRequest))
	p.Options.SetString(dhcpwire.OptClassIdentifier, classID)
	return p
}

// TestHappyPxeProxy mirrors end-to-end scenario 1.
func TestHappyPxeProxy(t *testing.T) {
	resolver := mustResolver(t, netconf.Config{Default: netconf.BootConf{BootFile: strp("bootx64.efi")}})
	mac, _ := net.ParseMAC("08:00:27:e7:de:fe")
	rx := RxInfo{IfaceName: "eth0", IfaceIPv4: net.ParseIP("10.0.0.5")}
	now := time.Unix(0, 0)

	discover := discoverPacket(0xAABBCCDD, mac, "PXEClient:Arch:00007:UNDI:003000", true)
	res, err := Reduce(nil, discover, rx, now, resolver, true)
	require.NoError(t, err)
	require.Empty(t, res.Out, "no proxy OFFER until the authoritative OFFER arrives")
	require.Equal(t, session.AwaitingAuthoritativeOffer, res.Next.State)

	offer := offerPacket(0xAABBCCDD, net.ParseIP("10.0.0.42"), net.ParseIP("255.255.255.0"), net.ParseIP("10.0.0.1"), 600)
	res, err = Reduce(res.Next, offer, rx, now, resolver, true)
	require.NoError(t, err)
	require.Len(t, res.Out, 1)
	require.Equal(t, session.OfferSent, res.Next.State)

	out := res.Out[0]
	require.Equal(t, net.IPv4bcast.String(), out.Dest.IP.String())
	require.Equal(t, 68, out.Dest.Port)
	require.Equal(t, "10.0.0.42", out.Packet.YIAddr.String())
	require.Equal(t, "10.0.0.5", out.Packet.SIAddr.String())
	require.Equal(t, "bootx64.efi", out.Packet.File)

	mt, _ := out.Packet.Options.Byte(dhcpwire.OptMessageType)
	require.Equal(t, byte(dhcpwire.MsgOffer), mt)
	serverID, _ := out.Packet.Options.IP(dhcpwire.OptServerIdentifier)
	require.Equal(t, "10.0.0.5", serverID.String())
	tftpName, _ := out.Packet.Options.String(dhcpwire.OptTFTPServerName)
	require.Equal(t, "10.0.0.5", tftpName)
	bootfile, _ := out.Packet.Options.String(dhcpwire.OptBootfileName)
	require.Equal(t, "bootx64.efi", bootfile)
	classID, _ := out.Packet.Options.String(dhcpwire.OptClassIdentifier)
	require.Equal(t, "PXEClient", classID)

	request := requestPacket(0xAABBCCDD, mac, "PXEClient:Arch:00007:UNDI:003000")
	res, err = Reduce(res.Next, request, rx, now, resolver, true)
	require.NoError(t, err)
	require.Nil(t, res.Next, "session is removed once the ACK is sent")
	require.Len(t, res.Out, 1)
	require.NotNil(t, res.Removed)
	require.Equal(t, session.AckSent, res.Removed.State)

	mt, _ = res.Out[0].Packet.Options.Byte(dhcpwire.OptMessageType)
	require.Equal(t, byte(dhcpwire.MsgAck), mt)
	require.Equal(t, "10.0.0.42", res.Out[0].Packet.YIAddr.String())
}

func TestReduceDiscoverRetransmitIsIdempotent(t *testing.T) {
	resolver := mustResolver(t, netconf.Config{Default: netconf.BootConf{BootFile: strp("bootx64.efi")}})
	mac, _ := net.ParseMAC("08:00:27:e7:de:fe")
	rx := RxInfo{IfaceName: "eth0", IfaceIPv4: net.ParseIP("10.0.0.5")}
	now := time.Unix(0, 0)

	discover := discoverPacket(1, mac, "PXEClient", true)
	res, _ := Reduce(nil, discover, rx, now, resolver, true)
	offer := offerPacket(1, net.ParseIP("10.0.0.42"), nil, nil, 0)
	res, _ = Reduce(res.Next, offer, rx, now, resolver, true)
	require.Equal(t, session.OfferSent, res.Next.State)

	// Client retransmits DISCOVER; must not create a new session, and must
	// reply again from cached materials.
	res2, err := Reduce(res.Next, discover, rx, now, resolver, true)
	require.NoError(t, err)
	require.Equal(t, session.OfferSent, res2.Next.State)
	require.Len(t, res2.Out, 1)
}

func TestReduceNoBootFileError(t *testing.T) {
	resolver := mustResolver(t, netconf.Config{})
	mac, _ := net.ParseMAC("08:00:27:e7:de:fe")
	rx := RxInfo{IfaceName: "eth0", IfaceIPv4: net.ParseIP("10.0.0.5")}
	now := time.Unix(0, 0)

	discover := discoverPacket(1, mac, "PXEClient", true)
	res, _ := Reduce(nil, discover, rx, now, resolver, true)
	offer := offerPacket(1, net.ParseIP("10.0.0.42"), nil, nil, 0)

	_, err := Reduce(res.Next, offer, rx, now, resolver, true)
	require.ErrorIs(t, err, poerr.ErrNoBootFile)
}

func TestReduceNoTftpError(t *testing.T) {
	resolver := mustResolver(t, netconf.Config{Default: netconf.BootConf{BootFile: strp("bootx64.efi")}})
	mac, _ := net.ParseMAC("08:00:27:e7:de:fe")
	rx := RxInfo{IfaceName: "eth0", IfaceIPv4: net.ParseIP("10.0.0.5")}
	now := time.Unix(0, 0)

	discover := discoverPacket(1, mac, "PXEClient", true)
	res, _ := Reduce(nil, discover, rx, now, resolver, true)
	offer := offerPacket(1, net.ParseIP("10.0.0.42"), nil, nil, 0)

	_, err := Reduce(res.Next, offer, rx, now, resolver, false /* no local tftp, no boot_server_ipv4 resolved */)
	require.ErrorIs(t, err, poerr.ErrNoTftp)
}

func TestReduceDeclineRemovesSession(t *testing.T) {
	resolver := mustResolver(t, netconf.Config{Default: netconf.BootConf{BootFile: strp("bootx64.efi")}})
	mac, _ := net.ParseMAC("08:00:27:e7:de:fe")
	rx := RxInfo{IfaceName: "eth0", IfaceIPv4: net.ParseIP("10.0.0.5")}
	now := time.Unix(0, 0)

	discover := discoverPacket(1, mac, "PXEClient", true)
	res, _ := Reduce(nil, discover, rx, now, resolver, true)

	decline := &dhcpwire.Packet{Op: dhcpwire.OpBootRequest, XID: 1, Options: make(dhcpwire.Options)}
	decline.Options.SetByte(dhcpwire.OptMessageType, byte(dhcpwire.MsgDecline))

	res, err := Reduce(res.Next, decline, rx, now, resolver, true)
	require.NoError(t, err)
	require.Nil(t, res.Next)
	require.Equal(t, session.Declined, res.Removed.State)
}

func TestReduceNakAndAckAreIgnored(t *testing.T) {
	resolver := mustResolver(t, netconf.Config{Default: netconf.BootConf{BootFile: strp("bootx64.efi")}})
	rx := RxInfo{IfaceName: "eth0", IfaceIPv4: net.ParseIP("10.0.0.5")}
	now := time.Unix(0, 0)

	prev := &session.Session{XID: 1, State: session.OfferSent}

	nak := &dhcpwire.Packet{Op: dhcpwire.OpBootReply, XID: 1, Options: make(dhcpwire.Options)}
	nak.Options.SetByte(dhcpwire.OptMessageType, byte(dhcpwire.MsgNak))
	res, err := Reduce(prev, nak, rx, now, resolver, true)
	require.NoError(t, err)
	require.Equal(t, session.OfferSent, res.Next.State)
	require.Empty(t, res.Out)

	ack := &dhcpwire.Packet{Op: dhcpwire.OpBootReply, XID: 1, Options: make(dhcpwire.Options)}
	ack.Options.SetByte(dhcpwire.OptMessageType, byte(dhcpwire.MsgAck))
	res, err = Reduce(prev, ack, rx, now, resolver, true)
	require.NoError(t, err)
	require.Equal(t, session.OfferSent, res.Next.State)
	require.Empty(t, res.Out)
}

// TestArchSpecificRule mirrors end-to-end scenario 2.
func TestArchSpecificRule(t *testing.T) {
	resolver := mustResolver(t, netconf.Config{
		Default: netconf.BootConf{BootFile: strp("/b.efi")},
		Match: []netconf.MatchRule{
			{Select: map[string]string{"ClassIdentifier": "Arch:00011"}, Regex: true, Conf: netconf.BootConf{BootFile: strp("/a.efi")}},
		},
	})
	mac, _ := net.ParseMAC("08:00:27:e7:de:fe")
	rx := RxInfo{IfaceName: "eth0", IfaceIPv4: net.ParseIP("10.0.0.5")}
	now := time.Unix(0, 0)

	discover := discoverPacket(1, mac, "PXEClient:Arch:00011:UNDI:003000", true)
	res, _ := Reduce(nil, discover, rx, now, resolver, true)
	offer := offerPacket(1, net.ParseIP("10.0.0.42"), nil, nil, 0)
	res, err := Reduce(res.Next, offer, rx, now, resolver, true)
	require.NoError(t, err)
	require.Equal(t, "/a.efi", res.Out[0].Packet.File)
}

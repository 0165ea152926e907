package dhcpproxy

import (
	"net"
	"strings"

	"github.com/alexculea/preboot-oxide/internal/dhcpwire"
	"github.com/alexculea/preboot-oxide/internal/netconf"
	"github.com/alexculea/preboot-oxide/internal/session"
)

// defaultLeaseTime is used when the authoritative OFFER didn't carry one
// (§4.4: "51=lease-time (mirror authoritative, else 600 s)").
const defaultLeaseTime = 600

// archX86PC is PXE architecture type 0 (RFC 4578): legacy BIOS.
const archX86PC = 0

// Outbound is one proxy packet the reactor must send, plus where and
// through which bound interface.
type Outbound struct {
	Packet    *dhcpwire.Packet
	Dest      net.UDPAddr
	IfaceName string
}

// siaddrFor chooses the boot server address: the resolved config's
// boot_server_ipv4 if set, else the receiving interface's own IPv4
// (§4.4: "falling back to the IPv4 of the receiving interface").
func siaddrFor(s *session.Session, resolved netconf.Resolved) net.IP {
	if resolved.BootServerIPv4 != nil {
		return resolved.BootServerIPv4
	}
	return s.IfaceIPv4
}

// buildOffer synthesizes the proxy OFFER per §4.4.
func buildOffer(s *session.Session, resolved netconf.Resolved) *dhcpwire.Packet {
	siaddr := siaddrFor(s, resolved)

	p := &dhcpwire.Packet{
		Op:      dhcpwire.OpBootReply,
		HType:   1,
		HLen:    6,
		Hops:    0,
		XID:     s.XID,
		Secs:    0,
		Flags:   s.DiscoverFlags,
		YIAddr:  s.AuthoritativeOffer.YIAddr,
		SIAddr:  siaddr,
		GIAddr:  s.DiscoverGIAddr,
		CHAddr:  s.ClientMac,
		File:    resolved.BootFile,
		Options: make(dhcpwire.Options),
	}

	p.Options.SetByte(dhcpwire.OptMessageType, byte(dhcpwire.MsgOffer))
	p.Options.SetIP(dhcpwire.OptServerIdentifier, s.IfaceIPv4)

	lease := uint32(defaultLeaseTime)
	if s.AuthoritativeOffer.LeaseTime != nil {
		lease = *s.AuthoritativeOffer.LeaseTime
	}
	p.Options.SetUint32(dhcpwire.OptLeaseTime, lease)

	if s.AuthoritativeOffer.SubnetMask != nil {
		p.Options.SetIP(dhcpwire.OptSubnetMask, s.AuthoritativeOffer.SubnetMask)
	}

	if siaddr != nil {
		p.Options.SetString(dhcpwire.OptTFTPServerName, siaddr.String())
	}
	p.Options.SetString(dhcpwire.OptBootfileName, resolved.BootFile)

	if clientIsPXE(s) {
		p.Options.SetString(dhcpwire.OptClassIdentifier, "PXEClient")
	}

	if s.ClientArch != nil && *s.ClientArch == archX86PC {
		// Legacy BIOS PXE ROMs want vendor-encapsulated option 43 with
		// suboption 6 (PXE Boot Server Discovery Control) set to 8
		// ("bypass, just boot from filename"), mirroring this
		// repository's offerDHCP FirmwareX86PC branch.
		p.Options[dhcpwire.OptVendorSpecific] = []byte{6, 1, 8, 255}
	}

	return p
}

// buildAck synthesizes the proxy ACK per §4.4: same PXE-steering options
// as OFFER, but message type 53=ACK and yiaddr taken from the session's
// already-recorded authoritative offer, never re-derived, so it cannot
// contradict the authoritative ACK.
func buildAck(s *session.Session, resolved netconf.Resolved) *dhcpwire.Packet {
	siaddr := siaddrFor(s, resolved)

	p := &dhcpwire.Packet{
		Op:      dhcpwire.OpBootReply,
		HType:   1,
		HLen:    6,
		Hops:    0,
		XID:     s.XID,
		Secs:    0,
		Flags:   s.DiscoverFlags,
		YIAddr:  s.AuthoritativeOffer.YIAddr,
		SIAddr:  siaddr,
		GIAddr:  s.DiscoverGIAddr,
		CHAddr:  s.ClientMac,
		File:    resolved.BootFile,
		Options: make(dhcpwire.Options),
	}

	p.Options.SetByte(dhcpwire.OptMessageType, byte(dhcpwire.MsgAck))
	if siaddr != nil {
		p.Options.SetString(dhcpwire.OptTFTPServerName, siaddr.String())
	}
	p.Options.SetString(dhcpwire.OptBootfileName, resolved.BootFile)
	if clientIsPXE(s) {
		p.Options.SetString(dhcpwire.OptClassIdentifier, "PXEClient")
	}

	return p
}

func clientIsPXE(s *session.Session) bool {
	return strings.HasPrefix(s.LastObserved.ClassIdentifier, "PXEClient")
}

// egressFor selects the destination address per §4.4's rules.
func egressFor(s *session.Session) net.UDPAddr {
	broadcast := s.DiscoverFlags&0x8000 != 0
	giZero := s.DiscoverGIAddr == nil || s.DiscoverGIAddr.IsUnspecified()
	ciZero := s.DiscoverCIAddr == nil || s.DiscoverCIAddr.IsUnspecified()

	switch {
	case broadcast || (giZero && ciZero):
		return net.UDPAddr{IP: net.IPv4bcast, Port: 68}
	case !giZero:
		return net.UDPAddr{IP: s.DiscoverGIAddr, Port: 67}
	case !ciZero:
		return net.UDPAddr{IP: s.DiscoverCIAddr, Port: 68}
	default:
		return net.UDPAddr{IP: net.IPv4bcast, Port: 68}
	}
}

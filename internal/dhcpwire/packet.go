// Package dhcpwire implements the BOOTP/DHCP wire format (RFC 2131, RFC 2132).
//
// It knows nothing about proxying, sessions, or boot configuration — it only
// turns bytes into a Packet and back. That separation mirrors this
// repository's own dhcp/options.go: the reducer that decides what to do with
// a Packet lives elsewhere (internal/dhcpproxy).
package dhcpwire

import (
	"encoding/binary"
	"fmt"
	"net"
)

// MagicCookie is the fixed 4-byte value that marks the start of the DHCP
// option stream (RFC 2131 §3).
var MagicCookie = [4]byte{0x63, 0x82, 0x53, 0x63}

// Op codes (RFC 2131 §2).
const (
	OpBootRequest uint8 = 1
	OpBootReply   uint8 = 2
)

// MessageType is the value of option 53.
type MessageType uint8

const (
	MsgDiscover MessageType = 1
	MsgOffer    MessageType = 2
	MsgRequest  MessageType = 3
	MsgDecline  MessageType = 4
	MsgAck      MessageType = 5
	MsgNak      MessageType = 6
	MsgRelease  MessageType = 7
	MsgInform   MessageType = 8
)

func (m MessageType) String() string {
	switch m {
	case MsgDiscover:
		return "DISCOVER"
	case MsgOffer:
		return "OFFER"
	case MsgRequest:
		return "REQUEST"
	case MsgDecline:
		return "DECLINE"
	case MsgAck:
		return "ACK"
	case MsgNak:
		return "NAK"
	case MsgRelease:
		return "RELEASE"
	case MsgInform:
		return "INFORM"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(m))
	}
}

// Option codes consumed or emitted by the PXE-assist core (RFC 2132,
// RFC 4578, RFC 5970).
const (
	OptSubnetMask            = 1
	OptRequestedIPAddress    = 50
	OptMessageType           = 53
	OptServerIdentifier      = 54
	OptParameterRequestList  = 55
	OptMaxMessageSize        = 57
	OptRenewalTime           = 58
	OptRebindingTime         = 59
	OptClassIdentifier       = 60
	OptClientIdentifier      = 61
	OptTFTPServerName        = 66
	OptBootfileName          = 67
	OptVendorSpecific        = 43
	OptClientSystemArch      = 93
	OptClientNetworkIfaceID  = 94
	OptClientMachineID       = 97
	OptLeaseTime             = 51
	optPad                   = 0
	optEnd                   = 255
)

// minFrameSize is the padded minimum encoded size (§4.1): some legacy PXE
// ROMs misbehave when a DHCP reply is shorter than a classic BOOTP frame.
const minFrameSize = 300

// headerSize is the fixed BOOTP header length up to and including the magic
// cookie (RFC 2131 §2): 236 bytes of fixed fields + 4 bytes cookie.
const headerSize = 240

// Packet is a decoded BOOTP/DHCP frame.
type Packet struct {
	Op     uint8
	HType  uint8
	HLen   uint8
	Hops   uint8
	XID    uint32
	Secs   uint16
	Flags  uint16
	CIAddr net.IP // always a 4-byte (or nil) address
	YIAddr net.IP
	SIAddr net.IP
	GIAddr net.IP
	CHAddr net.HardwareAddr
	SName  string
	File   string

	Options Options
}

// Broadcast reports whether the client set the broadcast flag (RFC 2131
// §4.1, bit 0 of Flags, network byte order bit 15).
func (p *Packet) Broadcast() bool {
	return p.Flags&0x8000 != 0
}

// MessageType returns option 53, or 0 if absent or malformed.
func (p *Packet) MessageType() MessageType {
	v, ok := p.Options.Byte(OptMessageType)
	if !ok {
		return 0
	}
	return MessageType(v)
}

// Unmarshal parses a raw UDP payload into a Packet.
//
// Per §4.1: frames shorter than 240 bytes or missing the magic cookie are
// rejected. Option parsing stops at the terminating option 255; unknown
// option codes are preserved (not interpreted, not dropped) so that a
// decode-then-encode round trip reproduces every option the sender included.
func Unmarshal(b []byte) (*Packet, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("dhcpwire: frame too short: %d bytes (minimum %d)", len(b), headerSize)
	}

	p := &Packet{
		Op:    b[0],
		HType: b[1],
		HLen:  b[2],
		Hops:  b[3],
		XID:   binary.BigEndian.Uint32(b[4:8]),
		Secs:  binary.BigEndian.Uint16(b[8:10]),
		Flags: binary.BigEndian.Uint16(b[10:12]),
	}
	p.CIAddr = ipCopy(b[12:16])
	p.YIAddr = ipCopy(b[16:20])
	p.SIAddr = ipCopy(b[20:24])
	p.GIAddr = ipCopy(b[24:28])

	hlen := int(p.HLen)
	if hlen > 16 {
		hlen = 16
	}
	chaddr := make(net.HardwareAddr, hlen)
	copy(chaddr, b[28:28+hlen])
	p.CHAddr = chaddr

	p.SName = trimNulString(b[44:108])
	p.File = trimNulString(b[108:236])

	var cookie [4]byte
	copy(cookie[:], b[236:240])
	if cookie != MagicCookie {
		return nil, fmt.Errorf("dhcpwire: bad magic cookie: %x", cookie)
	}

	opts, err := UnmarshalOptions(b[240:])
	if err != nil {
		return nil, fmt.Errorf("dhcpwire: options: %w", err)
	}
	p.Options = opts

	return p, nil
}

// Marshal serializes p to its wire form, padding to at least minFrameSize
// bytes (§4.1) so legacy BOOTP-era clients that assume a fixed frame size
// don't choke on a short reply.
func (p *Packet) Marshal() ([]byte, error) {
	buf := make([]byte, headerSize)
	buf[0] = p.Op
	buf[1] = p.HType
	buf[2] = p.HLen
	buf[3] = p.Hops
	binary.BigEndian.PutUint32(buf[4:8], p.XID)
	binary.BigEndian.PutUint16(buf[8:10], p.Secs)
	binary.BigEndian.PutUint16(buf[10:12], p.Flags)

	putIP(buf[12:16], p.CIAddr)
	putIP(buf[16:20], p.YIAddr)
	putIP(buf[20:24], p.SIAddr)
	putIP(buf[24:28], p.GIAddr)

	copy(buf[28:44], p.CHAddr) // zero-padded to 16 bytes per §4.1
	putNulString(buf[44:108], p.SName)
	putNulString(buf[108:236], p.File)
	copy(buf[236:240], MagicCookie[:])

	optBytes := p.Options.Marshal()
	buf = append(buf, optBytes...)

	if len(buf) < minFrameSize {
		pad := make([]byte, minFrameSize-len(buf))
		// Insert padding before the trailing end-option byte that
		// Options.Marshal already appended.
		buf = append(buf[:len(buf)-1], append(pad, optEnd)...)
	}

	return buf, nil
}

func ipCopy(b []byte) net.IP {
	ip := make(net.IP, 4)
	copy(ip, b)
	return ip
}

func putIP(dst []byte, ip net.IP) {
	if ip == nil {
		return
	}
	v4 := ip.To4()
	if v4 == nil {
		return
	}
	copy(dst, v4)
}

func trimNulString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func putNulString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

package ifacebind

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// Socket is a single UDP socket bound to the wildcard address on one
// port, shared by every configured interface. Binding one wildcard socket
// per port rather than one per interface avoids "address already in use"
// on the second and subsequent interfaces, since nothing in this pack
// sets SO_REUSEPORT before bind. Interfaces are instead disambiguated
// with an IP_PKTINFO-style control message: ReadFrom reports which
// interface a datagram arrived on, and WriteTo can pin which interface a
// reply egresses, following dhcp4/conn.go's portableConn.
type Socket struct {
	pc   *ipv4.PacketConn
	conn net.PacketConn
}

// Listen binds a single UDP socket to the wildcard address on port.
// broadcast enables SO_BROADCAST, required for sending to
// 255.255.255.255 (§9 "Broadcast sending").
func Listen(port int, broadcast bool) (*Socket, error) {
	pc, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("ifacebind: listen :%d: %w", port, err)
	}

	l := ipv4.NewPacketConn(pc)
	if err := l.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		pc.Close()
		return nil, fmt.Errorf("ifacebind: enabling interface control messages: %w", err)
	}

	if broadcast {
		if err := setBroadcast(pc); err != nil {
			pc.Close()
			return nil, fmt.Errorf("ifacebind: enabling broadcast: %w", err)
		}
	}

	return &Socket{pc: l, conn: pc}, nil
}

// Close releases the underlying socket.
func (s *Socket) Close() error { return s.conn.Close() }

// ReadFrom reads one datagram, reporting the interface index it arrived
// on (0 if the platform did not supply one).
func (s *Socket) ReadFrom(b []byte) (n int, addr *net.UDPAddr, ifIndex int, err error) {
	n, cm, a, err := s.pc.ReadFrom(b)
	if err != nil {
		return 0, nil, 0, err
	}
	udpAddr, _ := a.(*net.UDPAddr)
	idx := 0
	if cm != nil {
		idx = cm.IfIndex
	}
	return n, udpAddr, idx, nil
}

// WriteTo sends b to addr, egressing via ifIndex. ifIndex 0 leaves egress
// interface selection to the kernel's normal routing for addr.
func (s *Socket) WriteTo(b []byte, addr *net.UDPAddr, ifIndex int) (int, error) {
	var cm *ipv4.ControlMessage
	if ifIndex != 0 {
		cm = &ipv4.ControlMessage{IfIndex: ifIndex}
	}
	return s.pc.WriteTo(b, cm, addr)
}

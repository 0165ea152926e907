// Package dhcpproxy implements the PXE-assist DHCP state machine (§4.4):
// a pure reducer that turns (previous session, observed frame) into (next
// session, outbound packets), plus a reactor that owns the sockets and
// drives the reducer under the session table's lock. Modeling the
// transition logic as a reducer — no I/O, no global state — follows
// this repository's own design note: "testing the reducer needs no
// sockets."
package dhcpproxy

import (
	"net"
	"time"

	"github.com/alexculea/preboot-oxide/internal/dhcpwire"
	"github.com/alexculea/preboot-oxide/internal/netconf"
	"github.com/alexculea/preboot-oxide/internal/poerr"
	"github.com/alexculea/preboot-oxide/internal/session"
)

// RxInfo is what the reactor knows about where a frame arrived, the
// reducer's only other input besides the frame and the prior session.
type RxInfo struct {
	IfaceName string
	IfaceIPv4 net.IP
}

// Result is the reducer's output: the session's next value (nil removes
// it from the table), the packets to send, and — when the session is
// being removed on this step — a snapshot of its terminal state for
// diagnostics, since the table itself will no longer hold it.
type Result struct {
	Next    *session.Session
	Out     []Outbound
	Removed *session.Session
}

// Reduce advances one DHCP transaction by one observed frame (§4.4's
// classification table). now is passed in rather than read from the
// clock so the function stays pure and testable without time.Sleep.
func Reduce(prev *session.Session, pkt *dhcpwire.Packet, rx RxInfo, now time.Time, resolver *netconf.Resolver, tftpConfigured bool) (Result, error) {
	switch pkt.MessageType() {
	case dhcpwire.MsgDiscover:
		return reduceDiscover(prev, pkt, rx, now, resolver, tftpConfigured)
	case dhcpwire.MsgOffer:
		return reduceAuthoritativeOffer(prev, pkt, resolver, tftpConfigured)
	case dhcpwire.MsgRequest:
		return reduceRequest(prev, pkt, resolver, tftpConfigured)
	case dhcpwire.MsgDecline:
		return reduceDecline(prev)
	case dhcpwire.MsgNak, dhcpwire.MsgAck:
		// NAK: the authoritative server will repeat; ACK: informational.
		// Neither changes our state (§4.4).
		return Result{Next: prev}, nil
	default:
		return Result{Next: prev}, nil
	}
}

func reduceDiscover(prev *session.Session, pkt *dhcpwire.Packet, rx RxInfo, now time.Time, resolver *netconf.Resolver, tftpConfigured bool) (Result, error) {
	if prev != nil && (prev.State == session.OfferSent || prev.State == session.AckSent) {
		// Retransmit of an already-advanced transaction: reply
		// idempotently from cached materials, never create a second
		// session for the same xid (§4.4 "De-duplication").
		if prev.AuthoritativeOffer != nil {
			resolved, err := resolver.Resolve(prev.LastObserved)
			if err == nil {
				return Result{Next: prev, Out: []Outbound{{Packet: buildOffer(prev, resolved), Dest: egressFor(prev), IfaceName: prev.IfaceName}}}, nil
			}
		}
		return Result{Next: prev}, nil
	}

	s := prev
	if s == nil {
		s = &session.Session{XID: pkt.XID, State: session.AwaitingAuthoritativeOffer}
	}
	s.ClientMac = pkt.CHAddr
	s.IfaceName = rx.IfaceName
	s.IfaceIPv4 = rx.IfaceIPv4
	s.DiscoverFlags = pkt.Flags
	s.DiscoverGIAddr = pkt.GIAddr
	s.DiscoverCIAddr = pkt.CIAddr
	s.LastObserved = observe(pkt)

	if classID, ok := pkt.Options.String(dhcpwire.OptClassIdentifier); ok && classID != "" {
		s.ClientClassID = &classID
	}
	if arch, ok := pkt.Options.Uint16(dhcpwire.OptClientSystemArch); ok {
		s.ClientArch = &arch
	}
	if uuid, ok := pkt.Options[dhcpwire.OptClientMachineID]; ok && len(uuid) > 0 {
		u := string(uuid)
		s.ClientUUID = &u
	}

	if s.AuthoritativeOffer == nil {
		// Nothing to offer yet; stay AwaitingAuthoritativeOffer (§4.4).
		return Result{Next: s}, nil
	}

	resolved, err := resolveBoot(resolver, s.LastObserved, tftpConfigured)
	if err != nil {
		return Result{Next: s}, err
	}

	sentAt := now
	s.OurOfferSentAt = &sentAt
	s.State = session.OfferSent

	return Result{Next: s, Out: []Outbound{{Packet: buildOffer(s, resolved), Dest: egressFor(s), IfaceName: s.IfaceName}}}, nil
}

func reduceAuthoritativeOffer(prev *session.Session, pkt *dhcpwire.Packet, resolver *netconf.Resolver, tftpConfigured bool) (Result, error) {
	if prev == nil || prev.State != session.AwaitingAuthoritativeOffer {
		// Unknown transaction, or we've already moved past this state —
		// a later frame never regresses state (§5 "Ordering").
		return Result{Next: prev}, nil
	}

	next := prev.Clone()
	ao := &session.AuthoritativeOffer{YIAddr: pkt.YIAddr}
	if mask, ok := pkt.Options.IP(dhcpwire.OptSubnetMask); ok {
		ao.SubnetMask = mask
	}
	if lease, ok := pkt.Options.Uint32(dhcpwire.OptLeaseTime); ok {
		ao.LeaseTime = &lease
	}
	if serverID, ok := pkt.Options.IP(dhcpwire.OptServerIdentifier); ok {
		ao.ServerID = serverID
	}
	next.AuthoritativeOffer = ao

	resolved, err := resolveBoot(resolver, next.LastObserved, tftpConfigured)
	if err != nil {
		return Result{Next: next}, err
	}

	next.State = session.OfferSent
	return Result{Next: next, Out: []Outbound{{Packet: buildOffer(next, resolved), Dest: egressFor(next), IfaceName: next.IfaceName}}}, nil
}

func reduceRequest(prev *session.Session, pkt *dhcpwire.Packet, resolver *netconf.Resolver, tftpConfigured bool) (Result, error) {
	if prev == nil {
		return Result{}, nil
	}

	obs := observe(pkt)
	next := prev.Clone()
	next.LastObserved = obs

	if next.State != session.OfferSent {
		// Haven't offered yet (or already acked) — per §4.4 we only
		// synthesize ACK from OfferSent.
		return Result{Next: next}, nil
	}

	resolved, err := resolveBoot(resolver, obs, tftpConfigured)
	if err != nil {
		return Result{Next: next}, err
	}

	next.State = session.AckSent
	ack := Outbound{Packet: buildAck(next, resolved), Dest: egressFor(next), IfaceName: next.IfaceName}
	return Result{Next: nil, Out: []Outbound{ack}, Removed: next}, nil
}

func reduceDecline(prev *session.Session) (Result, error) {
	if prev == nil {
		return Result{}, nil
	}
	next := prev.Clone()
	next.State = session.Declined
	return Result{Next: nil, Removed: next}, nil
}

// resolveBoot resolves boot config and applies the §4.2 NoTftp rule,
// which depends on configuration the pure netconf.Resolver doesn't carry:
// boot_server_ipv4 unresolved AND no local TFTP directory configured.
func resolveBoot(resolver *netconf.Resolver, obs netconf.Observed, tftpConfigured bool) (netconf.Resolved, error) {
	resolved, err := resolver.Resolve(obs)
	if err != nil {
		return netconf.Resolved{}, err
	}
	if resolved.BootServerIPv4 == nil && !tftpConfigured {
		return netconf.Resolved{}, poerr.ErrNoTftp
	}
	return resolved, nil
}

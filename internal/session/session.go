// Package session implements the bounded, TTL-evicting table that
// correlates a client's DISCOVER/REQUEST with the authoritative server's
// OFFER for the same DHCP transaction id (§4.3). It is the sole shared
// mutable state between the DHCP listener goroutines; every exported
// operation is serialized by one mutex and never performs I/O while
// holding it, generalized from this pack's pdhcp/main.go CONTEXT map
// pattern (map[string]*CONTEXT guarded by sync.RWMutex) to the xid key and
// capacity/TTL rules this system requires.
package session

import (
	"net"
	"time"

	"github.com/alexculea/preboot-oxide/internal/netconf"
)

// State is a session's position in the PXE-assist state machine (§3).
type State int

const (
	AwaitingAuthoritativeOffer State = iota
	OfferSent
	AckSent
	Declined
	TimedOut
)

func (s State) String() string {
	switch s {
	case AwaitingAuthoritativeOffer:
		return "AwaitingAuthoritativeOffer"
	case OfferSent:
		return "OfferSent"
	case AckSent:
		return "AckSent"
	case Declined:
		return "Declined"
	case TimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// AuthoritativeOffer is what the proxy learned from the third-party
// server's OFFER for this transaction (§3).
type AuthoritativeOffer struct {
	YIAddr     net.IP
	SubnetMask net.IP
	LeaseTime  *uint32
	ServerID   net.IP
}

// Session is one DHCP transaction's tracked state (§3).
type Session struct {
	XID uint32

	ClientMac     net.HardwareAddr
	ClientClassID *string
	ClientArch    *uint16
	ClientUUID    *string

	OurOfferSentAt     *time.Time
	AuthoritativeOffer *AuthoritativeOffer

	State State

	CreatedAt     time.Time
	LastUpdatedAt time.Time

	// IfaceName is the interface that saw the DISCOVER creating this
	// session; proxy replies for it egress the same device.
	IfaceName string
	IfaceIPv4 net.IP

	// DiscoverFlags, DiscoverGIAddr and DiscoverCIAddr are copied from the
	// client frame that created or last refreshed this session, so the
	// reducer can reconstruct correct egress addressing (§4.4) without
	// needing the original packet in hand.
	DiscoverFlags  uint16
	DiscoverGIAddr net.IP
	DiscoverCIAddr net.IP

	// LastObserved is the set of client-observable fields extracted from
	// the most recent client frame (DISCOVER or REQUEST), fed to the
	// config resolver (§4.4: "resolve boot config again; client may carry
	// new fields").
	LastObserved netconf.Observed
}

// Clone returns a deep-enough copy safe to hand to a caller outside the
// table's lock; AuthoritativeOffer and pointer fields are copied, not
// aliased.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.ClientClassID != nil {
		v := *s.ClientClassID
		c.ClientClassID = &v
	}
	if s.ClientArch != nil {
		v := *s.ClientArch
		c.ClientArch = &v
	}
	if s.ClientUUID != nil {
		v := *s.ClientUUID
		c.ClientUUID = &v
	}
	if s.OurOfferSentAt != nil {
		v := *s.OurOfferSentAt
		c.OurOfferSentAt = &v
	}
	if s.AuthoritativeOffer != nil {
		ao := *s.AuthoritativeOffer
		c.AuthoritativeOffer = &ao
	}
	if s.ClientMac != nil {
		c.ClientMac = append(net.HardwareAddr(nil), s.ClientMac...)
	}
	if s.IfaceIPv4 != nil {
		c.IfaceIPv4 = append(net.IP(nil), s.IfaceIPv4...)
	}
	if s.DiscoverGIAddr != nil {
		c.DiscoverGIAddr = append(net.IP(nil), s.DiscoverGIAddr...)
	}
	if s.DiscoverCIAddr != nil {
		c.DiscoverCIAddr = append(net.IP(nil), s.DiscoverCIAddr...)
	}
	return &c
}

package dhcpproxy

import (
	"fmt"

	"github.com/alexculea/preboot-oxide/internal/dhcpwire"
	"github.com/alexculea/preboot-oxide/internal/netconf"
)

// observe extracts the client-observable fields §4.2's resolver matches
// against from a client frame (DISCOVER or REQUEST).
func observe(pkt *dhcpwire.Packet) netconf.Observed {
	var obs netconf.Observed

	obs.ClientMacAddress = pkt.CHAddr.String()
	obs.HardwareType = fmt.Sprintf("%d", pkt.HType)

	if classID, ok := pkt.Options.String(dhcpwire.OptClassIdentifier); ok {
		obs.ClassIdentifier = classID
	}
	if arch, ok := pkt.Options.Uint16(dhcpwire.OptClientSystemArch); ok {
		obs.ClientSystemArchitecture = fmt.Sprintf("%05d", arch)
	}
	if ip, ok := pkt.Options.IP(dhcpwire.OptRequestedIPAddress); ok {
		obs.RequestedIpAddress = ip.String()
	}
	if ip, ok := pkt.Options.IP(dhcpwire.OptServerIdentifier); ok {
		obs.ServerIdentifier = ip.String()
	}

	return obs
}

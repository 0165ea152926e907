// Package ifacebind enumerates network interfaces and disambiguates a
// shared wildcard UDP socket by interface, so that on multi-homed hosts
// broadcasts egress the correct interface and siaddr/server-id reflect
// the interface that saw the client (§4.6, §9 "Device-bound sockets").
// The enumeration and IPv4-selection logic is grounded on this pack's
// pixiecore/dhcp.go interfaceIP helper; the shared-socket, IfIndex-based
// disambiguation follows dhcp4/conn.go's portableConn.
package ifacebind

import (
	"fmt"
	"net"
)

// Iface is one network interface this process will listen/send on.
type Iface struct {
	Name  string
	Index int
	IPv4  net.IP
}

// Enumerate returns the interfaces to operate on. If names is non-empty,
// only those interfaces are considered (it is an error for one to be
// missing or to lack an IPv4 address); otherwise every non-loopback
// interface carrying an IPv4 address is used (§4.6).
func Enumerate(names []string) ([]Iface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("ifacebind: listing interfaces: %w", err)
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	var out []Iface
	for _, intf := range all {
		if len(names) > 0 {
			if !wanted[intf.Name] {
				continue
			}
		} else if intf.Flags&net.FlagLoopback != 0 {
			continue
		}

		ip, err := interfaceIPv4(intf)
		if err != nil {
			if len(names) > 0 {
				return nil, fmt.Errorf("ifacebind: interface %q: %w", intf.Name, err)
			}
			continue
		}

		out = append(out, Iface{Name: intf.Name, Index: intf.Index, IPv4: ip})
	}

	if len(names) > 0 && len(out) != len(names) {
		return nil, fmt.Errorf("ifacebind: not all configured interfaces are usable")
	}

	return out, nil
}

// interfaceIPv4 picks the best IPv4 address on intf: global unicast first,
// then link-local, then loopback — mirroring pixiecore/dhcp.go's
// interfaceIP, which favors the same order.
func interfaceIPv4(intf net.Interface) (net.IP, error) {
	addrs, err := intf.Addrs()
	if err != nil {
		return nil, err
	}

	prefs := []func(net.IP) bool{
		net.IP.IsGlobalUnicast,
		net.IP.IsLinkLocalUnicast,
		net.IP.IsLoopback,
	}
	for _, pref := range prefs {
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipnet.IP.To4()
			if ip == nil {
				continue
			}
			if pref(ip) {
				return ip, nil
			}
		}
	}
	return nil, fmt.Errorf("no usable IPv4 address")
}

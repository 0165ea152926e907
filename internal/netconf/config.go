// Package netconf holds the declarative boot-configuration schema (§3) and
// the pure match-rule resolver that turns an observed DHCP request into a
// boot_file/boot_server_ipv4 pair (§4.2).
package netconf

import "net"

// BootConf is the overlay of fields a MatchRule or the top-level default
// can contribute. A nil field means "not specified here" — it does not
// overwrite whatever effective value came before it.
type BootConf struct {
	BootFile       *string `yaml:"boot_file,omitempty"`
	BootServerIPv4 *string `yaml:"boot_server_ipv4,omitempty"`
}

// MatchType selects how a rule's selectors combine.
type MatchType string

const (
	MatchAll MatchType = "all"
	MatchAny MatchType = "any"
)

// MatchRule is one entry of the declarative ruleset (§3).
type MatchRule struct {
	Select    map[string]string `yaml:"select"`
	Regex     bool              `yaml:"regex"`
	MatchType MatchType         `yaml:"match_type"`
	Conf      BootConf          `yaml:"conf"`
}

// Config is the top-level configuration (§3).
type Config struct {
	Ifaces        []string    `yaml:"ifaces,omitempty"`
	TftpServerDir string      `yaml:"tftp_server_dir,omitempty"`
	MaxSessions   int         `yaml:"max_sessions,omitempty"`
	Default       BootConf    `yaml:"default"`
	Match         []MatchRule `yaml:"match,omitempty"`
}

// DefaultMaxSessions is used when Config.MaxSessions is unset or zero
// (§3: "default 500").
const DefaultMaxSessions = 500

// ReapInterval is the reaper's tick period, in seconds (§4.3, §5). The
// session table's own TTL and capacity-eviction age live next to the
// table in internal/session, since nothing outside it needs them.
const ReapInterval = 5

// Observed carries the client-observable fields the resolver and match
// engine read from a DHCP request (§4.2, §3's recognized selectors).
type Observed struct {
	ClientMacAddress         string
	ClassIdentifier          string
	HardwareType             string
	ClientSystemArchitecture string
	RequestedIpAddress       string
	ServerIdentifier         string
}

// Field returns the observed value for a recognized selector name, and
// whether that selector is recognized and has a non-empty observed value.
func (o Observed) Field(selector string) (string, bool) {
	switch selector {
	case "ClientMacAddress":
		return o.ClientMacAddress, o.ClientMacAddress != ""
	case "ClassIdentifier":
		return o.ClassIdentifier, o.ClassIdentifier != ""
	case "HardwareType":
		return o.HardwareType, o.HardwareType != ""
	case "ClientSystemArchitecture":
		return o.ClientSystemArchitecture, o.ClientSystemArchitecture != ""
	case "RequestedIpAddress":
		return o.RequestedIpAddress, o.RequestedIpAddress != ""
	case "ServerIdentifier":
		return o.ServerIdentifier, o.ServerIdentifier != ""
	default:
		return "", false
	}
}

// Resolved is the outcome of evaluating the ruleset against an Observed
// request.
type Resolved struct {
	BootFile       string
	BootServerIPv4 net.IP
}

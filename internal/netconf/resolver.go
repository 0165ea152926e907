package netconf

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/alexculea/preboot-oxide/internal/poerr"
)

// recognizedSelectors is the closed set of selector names a MatchRule may
// reference (§3).
var recognizedSelectors = map[string]bool{
	"ClientMacAddress":         true,
	"ClassIdentifier":          true,
	"HardwareType":             true,
	"ClientSystemArchitecture": true,
	"RequestedIpAddress":       true,
	"ServerIdentifier":         true,
}

// compiledRule is a MatchRule with its regexes precompiled once at load
// time (§4.2: "compile regexes once at config load"), so that Resolve
// itself never compiles anything and is safe to call concurrently.
type compiledRule struct {
	selectors map[string]*regexp.Regexp // nil entry means literal match
	literals  map[string]string         // lower-cased expected literal
	matchType MatchType
	conf      BootConf
}

// Resolver evaluates the compiled ruleset over a default. It holds no
// mutable state after construction and is safe for concurrent use by
// every DHCP listener goroutine (§4.2: "the resolver is pure").
type Resolver struct {
	def   BootConf
	rules []compiledRule
}

// Compile validates and precompiles a Config's match ruleset.
func Compile(cfg Config) (*Resolver, error) {
	rules := make([]compiledRule, 0, len(cfg.Match))
	for i, r := range cfg.Match {
		mt := r.MatchType
		if mt == "" {
			mt = MatchAll
		}
		if mt != MatchAll && mt != MatchAny {
			return nil, fmt.Errorf("match rule %d: invalid match_type %q", i, mt)
		}
		cr := compiledRule{matchType: mt, conf: r.Conf}
		if r.Regex {
			cr.selectors = make(map[string]*regexp.Regexp, len(r.Select))
		} else {
			cr.literals = make(map[string]string, len(r.Select))
		}
		for selector, expected := range r.Select {
			if !recognizedSelectors[selector] {
				return nil, fmt.Errorf("match rule %d: unrecognized selector %q", i, selector)
			}
			if r.Regex {
				re, err := regexp.Compile(expected)
				if err != nil {
					return nil, fmt.Errorf("match rule %d: selector %q: %w", i, selector, err)
				}
				cr.selectors[selector] = re
			} else {
				cr.literals[selector] = strings.ToLower(expected)
			}
		}
		rules = append(rules, cr)
	}
	return &Resolver{def: cfg.Default, rules: rules}, nil
}

// Resolve implements §4.2's algorithm: start from the default, walk rules
// in declared order, overlay the first rule that matches.
func (r *Resolver) Resolve(obs Observed) (Resolved, error) {
	effective := r.def

	for _, rule := range r.rules {
		if rule.matches(obs) {
			if rule.conf.BootFile != nil {
				effective.BootFile = rule.conf.BootFile
			}
			if rule.conf.BootServerIPv4 != nil {
				effective.BootServerIPv4 = rule.conf.BootServerIPv4
			}
			break
		}
	}

	if effective.BootFile == nil || *effective.BootFile == "" {
		return Resolved{}, poerr.ErrNoBootFile
	}

	var ip net.IP
	if effective.BootServerIPv4 != nil && *effective.BootServerIPv4 != "" {
		ip = net.ParseIP(*effective.BootServerIPv4)
		if ip == nil {
			return Resolved{}, fmt.Errorf("netconf: invalid boot_server_ipv4 %q", *effective.BootServerIPv4)
		}
	}

	return Resolved{BootFile: *effective.BootFile, BootServerIPv4: ip}, nil
}

// matches implements §4.2 step 3: compare each selected field, a missing
// observed value is a non-match, combine per match_type.
func (c compiledRule) matches(obs Observed) bool {
	selectors := c.selectorNames()
	if len(selectors) == 0 {
		// An empty select map matches nothing under "all" semantics
		// (vacuously true would make the rule unconditional, which is
		// never useful and almost certainly a config mistake) but is
		// vacuously false under neither — treat as non-match either way
		// to avoid silently swallowing every request.
		return false
	}

	matchCount := 0
	for _, selector := range selectors {
		observed, ok := obs.Field(selector)
		ok = ok && c.matchOne(selector, observed)
		if ok {
			matchCount++
			continue
		}
		if c.matchType == MatchAll {
			return false
		}
	}

	if c.matchType == MatchAny {
		return matchCount > 0
	}
	return matchCount == len(selectors)
}

func (c compiledRule) matchOne(selector, observed string) bool {
	if re, ok := c.selectors[selector]; ok {
		return re.MatchString(observed)
	}
	expected, ok := c.literals[selector]
	if !ok {
		return false
	}
	return strings.ToLower(observed) == expected
}

func (c compiledRule) selectorNames() []string {
	if c.selectors != nil {
		names := make([]string, 0, len(c.selectors))
		for s := range c.selectors {
			names = append(names, s)
		}
		return names
	}
	names := make([]string, 0, len(c.literals))
	for s := range c.literals {
		names = append(names, s)
	}
	return names
}

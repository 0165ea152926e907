package dhcpwire

import (
	"encoding/binary"
	"fmt"
	"net"
	"sort"
)

// Options stores DHCP options keyed by option code. Unknown codes are kept
// verbatim so a decode-then-encode round trip is byte-identical for every
// option the sender included, per §8.
type Options map[uint8][]byte

// UnmarshalOptions parses the TLV option stream that follows the magic
// cookie. Parsing stops at the terminating option 255; pad bytes (option 0)
// are skipped. A duplicate option code is an error, matching this
// repository's existing dhcp/options.go behavior.
func UnmarshalOptions(b []byte) (Options, error) {
	opts := make(Options)
	for len(b) > 0 {
		code := b[0]
		switch code {
		case optPad:
			b = b[1:]
			continue
		case optEnd:
			return opts, nil
		}
		if len(b) < 2 {
			return nil, fmt.Errorf("option %d has no length byte", code)
		}
		l := int(b[1])
		if len(b) < 2+l {
			return nil, fmt.Errorf("option %d claims %d bytes, only %d available", code, l, len(b)-2)
		}
		if _, dup := opts[code]; dup {
			return nil, fmt.Errorf("duplicate option %d", code)
		}
		v := make([]byte, l)
		copy(v, b[2:2+l])
		opts[code] = v
		b = b[2+l:]
	}
	// Ran off the end without seeing option 255. Tolerate this: some
	// minimum-size legacy frames are padded with zeros and nothing else.
	return opts, nil
}

// Marshal serializes options with codes in ascending order followed by the
// terminating option 255 (§8: canonicalized by code ascending).
func (o Options) Marshal() []byte {
	codes := make([]int, 0, len(o))
	for c := range o {
		codes = append(codes, int(c))
	}
	sort.Ints(codes)

	size := 1
	for _, c := range codes {
		size += 2 + len(o[uint8(c)])
	}
	buf := make([]byte, 0, size)
	for _, c := range codes {
		v := o[uint8(c)]
		buf = append(buf, byte(c), byte(len(v)))
		buf = append(buf, v...)
	}
	buf = append(buf, optEnd)
	return buf
}

// Clone returns a deep copy.
func (o Options) Clone() Options {
	c := make(Options, len(o))
	for k, v := range o {
		vv := make([]byte, len(v))
		copy(vv, v)
		c[k] = vv
	}
	return c
}

// Byte returns a single-byte option value.
func (o Options) Byte(code uint8) (byte, bool) {
	v, ok := o[code]
	if !ok || len(v) != 1 {
		return 0, false
	}
	return v[0], true
}

// Uint16 returns a big-endian 2-byte option value (e.g. option 93, client
// system architecture).
func (o Options) Uint16(code uint8) (uint16, bool) {
	v, ok := o[code]
	if !ok || len(v) != 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(v), true
}

// Uint32 returns a big-endian 4-byte option value (e.g. option 51, lease
// time).
func (o Options) Uint32(code uint8) (uint32, bool) {
	v, ok := o[code]
	if !ok || len(v) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

// IP returns a 4-byte IPv4 option value.
func (o Options) IP(code uint8) (net.IP, bool) {
	v, ok := o[code]
	if !ok || len(v) != 4 {
		return nil, false
	}
	ip := make(net.IP, 4)
	copy(ip, v)
	return ip, true
}

// String returns an ASCII option value (e.g. option 60, class identifier).
func (o Options) String(code uint8) (string, bool) {
	v, ok := o[code]
	if !ok {
		return "", false
	}
	return string(v), true
}

// SetByte sets a single-byte option.
func (o Options) SetByte(code uint8, v byte) { o[code] = []byte{v} }

// SetUint32 sets a big-endian 4-byte option.
func (o Options) SetUint32(code uint8, v uint32) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	o[code] = b
}

// SetIP sets a 4-byte IPv4 option.
func (o Options) SetIP(code uint8, ip net.IP) {
	v4 := ip.To4()
	if v4 == nil {
		return
	}
	b := make([]byte, 4)
	copy(b, v4)
	o[code] = b
}

// SetString sets an ASCII option.
func (o Options) SetString(code uint8, s string) { o[code] = []byte(s) }

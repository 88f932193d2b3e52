// Package addr implements the Address sum type shared by every ingress and
// egress protocol in veil (SOCKS5, HTTP CONNECT), plus CIDR range
// containment used by the routing matcher.
package addr

import (
	"fmt"
	"net"
	"strconv"
)

// Family distinguishes the three concrete Address shapes.
type Family int

const (
	FamilyDomain Family = iota
	FamilyIPv4
	FamilyIPv6
)

// Address is a sum type over the three ways a destination can be named on
// the wire: a domain+port, an IPv4 socket address, or an IPv6 socket
// address. Zero value is not a valid Address; always construct through one
// of the constructors below.
type Address struct {
	family Family
	host   string  // FamilyDomain only
	octets [16]byte // FamilyIPv4 uses the first 4 bytes, FamilyIPv6 uses all 16
	port   uint16
}

// NewDomainPort builds a domain-name Address. host is taken as-is; ASCII/IDNA
// normalization is the caller's responsibility.
func NewDomainPort(host string, port uint16) Address {
	return Address{family: FamilyDomain, host: host, port: port}
}

// NewIPv4 builds an IPv4 Address from 4 octets.
func NewIPv4(octets [4]byte, port uint16) Address {
	a := Address{family: FamilyIPv4, port: port}
	copy(a.octets[:4], octets[:])
	return a
}

// NewIPv6 builds an IPv6 Address from 16 octets.
func NewIPv6(octets [16]byte, port uint16) Address {
	return Address{family: FamilyIPv6, octets: octets, port: port}
}

// FromNetAddr builds an Address from a resolved net.TCPAddr-shaped IP,
// picking FamilyIPv4 or FamilyIPv6 based on the IP's effective length. Used
// when a server FSM needs to report the bound local address of an outbound
// connection (SOCKS5 CONNECT reply).
func FromNetAddr(ip net.IP, port int) Address {
	if v4 := ip.To4(); v4 != nil {
		var o [4]byte
		copy(o[:], v4)
		return NewIPv4(o, uint16(port))
	}
	v6 := ip.To16()
	var o [16]byte
	copy(o[:], v6)
	return NewIPv6(o, uint16(port))
}

// Family reports which variant this Address holds.
func (a Address) Family() Family { return a.family }

// Port returns the port number. Zero is only valid for Addresses that will
// never be dialed (e.g. a placeholder bound-address in an error reply).
func (a Address) Port() uint16 { return a.port }

// Host returns the domain name. Only meaningful when Family() == FamilyDomain.
func (a Address) Host() string { return a.host }

// IP returns the net.IP for an IPv4/IPv6 Address. Panics if called on a
// domain Address; callers must check Family() first. This is a programmer
// error, not a wire-input error.
func (a Address) IP() net.IP {
	switch a.family {
	case FamilyIPv4:
		return net.IP(a.octets[:4])
	case FamilyIPv6:
		return net.IP(a.octets[:16])
	default:
		panic("addr: IP() called on a domain Address")
	}
}

// Hostname returns the string form suitable for net.Dial's host part: the
// domain name, or the IP's literal text form.
func (a Address) Hostname() string {
	if a.family == FamilyDomain {
		return a.host
	}
	return a.IP().String()
}

// String returns "host:port", matching the form accepted by net.Dial.
func (a Address) String() string {
	return net.JoinHostPort(a.Hostname(), strconv.Itoa(int(a.port)))
}

// Equal reports whether two Addresses denote the same host/port. Domain
// comparison is case-sensitive byte equality; ASCII case-folding is the
// caller's responsibility, matching the rest of this package.
func (a Address) Equal(b Address) bool {
	if a.family != b.family || a.port != b.port {
		return false
	}
	if a.family == FamilyDomain {
		return a.host == b.host
	}
	return a.octets == b.octets
}

func (a Address) GoString() string {
	return fmt.Sprintf("addr.Address{%s}", a.String())
}

// CIDR is a contiguous IP range expressed as [lower, upper], both endpoints
// of the same family. Constructed from an "addr/prefix" literal.
type CIDR struct {
	lower net.IP
	upper net.IP
	v6    bool
}

// ParseCIDR parses "a.b.c.d/n" or an IPv6 equivalent into the inclusive byte
// range it denotes.
func ParseCIDR(s string) (CIDR, error) {
	ip, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return CIDR{}, err
	}
	v6 := ip.To4() == nil
	mask := ipnet.Mask
	base := ipnet.IP
	upper := make(net.IP, len(base))
	for i := range base {
		upper[i] = base[i] | ^mask[i]
	}
	return CIDR{lower: ipnet.IP, upper: upper, v6: v6}, nil
}

// Contains reports whether ip lies within the range, lexicographically
// within family. Mismatched families never contain.
func (c CIDR) Contains(ip net.IP) bool {
	v4 := ip.To4()
	isV6 := v4 == nil
	if isV6 != c.v6 {
		return false
	}
	var cand net.IP
	if isV6 {
		cand = ip.To16()
	} else {
		cand = v4
	}
	if cand == nil {
		return false
	}
	lower := c.lower
	upper := c.upper
	if len(lower) != len(cand) {
		// net.ParseCIDR may store IPv4 ranges as 16-byte slices; normalize.
		lower = normalizeLen(lower, len(cand))
		upper = normalizeLen(upper, len(cand))
	}
	return cmpBytes(cand, lower) >= 0 && cmpBytes(cand, upper) <= 0
}

func normalizeLen(ip net.IP, n int) net.IP {
	if n == 4 {
		if v4 := ip.To4(); v4 != nil {
			return v4
		}
	}
	if n == 16 {
		return ip.To16()
	}
	return ip
}

func cmpBytes(a, b net.IP) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

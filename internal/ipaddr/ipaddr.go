// Package ipaddr provides an immutable IP address value type with a
// canonical string form, used everywhere a packet's source or
// destination address needs to be compared, hashed, or logged.
package ipaddr

import (
	"fmt"
	"net"
)

// IPAddress is an immutable 4- or 16-byte address.
type IPAddress struct {
	bytes [16]byte
	v6    bool
}

// FromV4 builds an IPAddress from four octets.
func FromV4(a, b, c, d byte) IPAddress {
	var ip IPAddress
	ip.bytes[0], ip.bytes[1], ip.bytes[2], ip.bytes[3] = a, b, c, d
	return ip
}

// FromBytes builds an IPAddress from a 4-byte or 16-byte slice.
func FromBytes(b []byte) (IPAddress, bool) {
	var ip IPAddress
	switch len(b) {
	case 4:
		copy(ip.bytes[:4], b)
		return ip, true
	case 16:
		copy(ip.bytes[:], b)
		ip.v6 = true
		return ip, true
	default:
		return IPAddress{}, false
	}
}

// IsV6 reports whether the address is an IPv6 address.
func (ip IPAddress) IsV6() bool { return ip.v6 }

// Bytes returns the raw address bytes (4 or 16).
func (ip IPAddress) Bytes() []byte {
	if ip.v6 {
		out := make([]byte, 16)
		copy(out, ip.bytes[:])
		return out
	}
	out := make([]byte, 4)
	copy(out, ip.bytes[:4])
	return out
}

// String returns the canonical dotted (v4) or colon (v6) form.
func (ip IPAddress) String() string {
	if ip.v6 {
		return net.IP(ip.bytes[:]).String()
	}
	return fmt.Sprintf("%d.%d.%d.%d", ip.bytes[0], ip.bytes[1], ip.bytes[2], ip.bytes[3])
}

// Less gives IPAddress a total order so flow keys can be normalized
// without relying on string comparison of variable-width forms.
func (ip IPAddress) Less(other IPAddress) bool {
	if ip.v6 != other.v6 {
		return !ip.v6 // v4 sorts before v6, arbitrary but total
	}
	n := 4
	if ip.v6 {
		n = 16
	}
	for i := 0; i < n; i++ {
		if ip.bytes[i] != other.bytes[i] {
			return ip.bytes[i] < other.bytes[i]
		}
	}
	return false
}

// Equal reports whether two addresses are identical.
func (ip IPAddress) Equal(other IPAddress) bool {
	return ip.v6 == other.v6 && ip.bytes == other.bytes
}

// ParseNetIP converts a net.IP into an IPAddress, preferring the
// 4-byte form when the address is an IPv4-mapped IPv6 address.
func ParseNetIP(n net.IP) (IPAddress, bool) {
	if v4 := n.To4(); v4 != nil {
		return FromBytes(v4)
	}
	if v6 := n.To16(); v6 != nil {
		return FromBytes(v6)
	}
	return IPAddress{}, false
}

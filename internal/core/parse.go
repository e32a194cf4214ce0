package core

import (
	"fmt"
	"net/netip"
	"strings"
)

// ParsePrefix parses an IPv4 network such as "10.0.0.0/8". A bare address is
// taken as a /32 host network.
func ParsePrefix(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	var p netip.Prefix
	if strings.Contains(s, "/") {
		var err error
		p, err = netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("%w: %v", ErrInvalidLiteral, err)
		}
	} else {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("%w: %v", ErrInvalidLiteral, err)
		}
		p = netip.PrefixFrom(addr, addr.BitLen())
	}
	if !p.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("%w: %s is not an IPv4 network", ErrInvalidLiteral, s)
	}
	return p, nil
}

// MustParsePrefix is like ParsePrefix but panics on error.
func MustParsePrefix(s string) netip.Prefix {
	p, err := ParsePrefix(s)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseIP parses s into an initialized IP variable.
func ParseIP(s string) (IP, error) {
	p, err := ParsePrefix(s)
	if err != nil {
		return IP{}, err
	}
	return IP{Net: p}, nil
}

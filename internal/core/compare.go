package core

import (
	"cmp"
	"encoding/binary"
	"iter"
	"net/netip"
)

// SameKind reports whether a and b are the same variant, ignoring their values.
// It is the type-compatibility check used by assignment, not value equality.
func SameKind(a, b Variable) bool {
	return a.Kind() == b.Kind()
}

// Compare imposes a strict total order on Variables and returns -1, 0 or +1.
//
// Variants order as IP < Int < Rule < Map < Set < Packet. Within a variant an
// uninitialized value sorts first, addresses compare as unsigned integers and
// containers compare lexicographically over their ordered entries.
func Compare(a, b Variable) int {
	if ka, kb := a.Kind(), b.Kind(); ka != kb {
		return cmp.Compare(ka, kb)
	}
	switch x := a.(type) {
	case IP:
		return comparePrefix(x.Net, b.(IP).Net)
	case Int:
		y := b.(Int)
		if c := compareValid(x.Valid, y.Valid); c != 0 || !x.Valid {
			return c
		}
		return cmp.Compare(x.Value, y.Value)
	case Rule:
		y := b.(Rule)
		if c := compareValid(x.Initialized(), y.Initialized()); c != 0 || !x.Initialized() {
			return c
		}
		if c := cmp.Compare(x.Field, y.Field); c != 0 {
			return c
		}
		return comparePrefix(x.Net, y.Net)
	case *Map:
		return compareMaps(x, b.(*Map))
	case *Set:
		return compareSets(x, b.(*Set))
	case Packet:
		y := b.(Packet)
		return ComparePacketMap(&x.Fields, &y.Fields)
	}
	panic("core: unknown variable type")
}

// compareValid orders absent before present.
func compareValid(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func comparePrefix(a, b netip.Prefix) int {
	if c := compareValid(a.IsValid(), b.IsValid()); c != 0 || !a.IsValid() {
		return c
	}
	if c := CompareAddr(a.Addr(), b.Addr()); c != 0 {
		return c
	}
	return cmp.Compare(a.Bits(), b.Bits())
}

// CompareAddr orders absent addresses first and IPv4 addresses as unsigned
// 32-bit integers.
func CompareAddr(a, b netip.Addr) int {
	if c := compareValid(a.IsValid(), b.IsValid()); c != 0 || !a.IsValid() {
		return c
	}
	if a.Is4() && b.Is4() {
		return cmp.Compare(addrUint32(a), addrUint32(b))
	}
	return a.Compare(b)
}

func addrUint32(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

func compareSets(a, b *Set) int {
	next, stop := iter.Pull(a.All())
	defer stop()
	for y := range b.All() {
		x, ok := next()
		if !ok {
			return -1
		}
		if c := Compare(x, y); c != 0 {
			return c
		}
	}
	if _, ok := next(); ok {
		return 1
	}
	return 0
}

func compareMaps(a, b *Map) int {
	next, stop := iter.Pull2(a.All())
	defer stop()
	for yk, yv := range b.All() {
		xk, xv, ok := next()
		if !ok {
			return -1
		}
		if c := Compare(xk, yk); c != 0 {
			return c
		}
		if c := Compare(xv, yv); c != 0 {
			return c
		}
	}
	if _, _, ok := next(); ok {
		return 1
	}
	return 0
}

// ComparePacketInfo orders IPInfo < PortInfo < FlagInfo, absent before present
// and false before true.
func ComparePacketInfo(a, b PacketInfo) int {
	if ka, kb := a.infoKind(), b.infoKind(); ka != kb {
		return cmp.Compare(ka, kb)
	}
	switch x := a.(type) {
	case IPInfo:
		return CompareAddr(x.Addr, b.(IPInfo).Addr)
	case PortInfo:
		y := b.(PortInfo)
		if c := compareValid(x.Valid, y.Valid); c != 0 || !x.Valid {
			return c
		}
		return cmp.Compare(x.Port, y.Port)
	case FlagInfo:
		return compareValid(x.Set, b.(FlagInfo).Set)
	}
	panic("core: unknown packet info type")
}

// ComparePacketMap compares the populated (field, info) entries of a and b
// lexicographically in field order.
func ComparePacketMap(a, b *PacketMap) int {
	var xs, ys []PacketField
	for f := range a.All() {
		xs = append(xs, f)
	}
	for f := range b.All() {
		ys = append(ys, f)
	}
	for i := 0; i < len(xs) && i < len(ys); i++ {
		if c := cmp.Compare(xs[i], ys[i]); c != 0 {
			return c
		}
		if c := ComparePacketInfo(a.entries[xs[i]], b.entries[ys[i]]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(xs), len(ys))
}

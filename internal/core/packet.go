// Package core defines per-frame packet facts.
package core

import (
	"iter"
	"net/netip"
	"strconv"
	"strings"
)

type infoKind uint8

const (
	infoIP infoKind = iota
	infoPort
	infoFlag
)

// PacketInfo is a value extracted from one frame: IPInfo, PortInfo or FlagInfo.
type PacketInfo interface {
	infoKind() infoKind
	String() string
}

// IPInfo carries an address. The zero Addr means "not applicable".
type IPInfo struct {
	Addr netip.Addr
}

// PortInfo carries a transport port. Valid is false when the frame has no ports.
type PortInfo struct {
	Port  uint32
	Valid bool
}

// FlagInfo carries a single boolean fact.
type FlagInfo struct {
	Set bool
}

func (IPInfo) infoKind() infoKind   { return infoIP }
func (PortInfo) infoKind() infoKind { return infoPort }
func (FlagInfo) infoKind() infoKind { return infoFlag }

func (i IPInfo) String() string {
	if !i.Addr.IsValid() {
		return "-"
	}
	return i.Addr.String()
}

func (p PortInfo) String() string {
	if !p.Valid {
		return "-"
	}
	return strconv.FormatUint(uint64(p.Port), 10)
}

func (f FlagInfo) String() string {
	return strconv.FormatBool(f.Set)
}

// SomePort returns a present port.
func SomePort(port uint32) PortInfo {
	return PortInfo{Port: port, Valid: true}
}

// NoPort returns the "not applicable" port marker.
func NoPort() PortInfo {
	return PortInfo{}
}

// PacketMap maps each PacketField to at most one PacketInfo.
// Iteration is always in field order. The zero value is an empty map.
type PacketMap struct {
	entries [numPacketFields]PacketInfo
}

// Set stores info under f, replacing any previous entry. Undeclared fields are ignored.
func (m *PacketMap) Set(f PacketField, info PacketInfo) {
	if !f.Valid() {
		return
	}
	m.entries[f] = info
}

// Get returns the entry for f.
func (m *PacketMap) Get(f PacketField) (PacketInfo, bool) {
	if !f.Valid() || m.entries[f] == nil {
		return nil, false
	}
	return m.entries[f], true
}

// Len returns the number of populated fields.
func (m *PacketMap) Len() int {
	n := 0
	for _, info := range m.entries {
		if info != nil {
			n++
		}
	}
	return n
}

// All yields populated entries in field order.
func (m *PacketMap) All() iter.Seq2[PacketField, PacketInfo] {
	return func(yield func(PacketField, PacketInfo) bool) {
		for i, info := range m.entries {
			if info == nil {
				continue
			}
			if !yield(PacketField(i), info) {
				return
			}
		}
	}
}

// Clone returns an independent copy. PacketInfo values are immutable.
func (m *PacketMap) Clone() PacketMap {
	return *m
}

func (m *PacketMap) String() string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for f, info := range m.All() {
		if !first {
			b.WriteByte(' ')
		}
		first = false
		b.WriteString(f.String())
		b.WriteByte('=')
		b.WriteString(info.String())
	}
	b.WriteByte('}')
	return b.String()
}

// Package core defines the NFD value model with no I/O dependencies.
package core

import (
	"fmt"
	"strings"
)

// PacketField names an inspectable packet attribute.
// Fields are ordered by declaration so they can key ordered containers.
type PacketField uint8

const (
	FieldSip PacketField = iota // Source IP
	FieldDip                    // Destination IP
	FieldSport                  // Source port
	FieldDport                  // Destination port
	FieldFlagTCP
	FieldFlagUDP
	FieldFlagSYN
	FieldFlagACK
	FieldFlagFIN
	FieldIPLen

	numPacketFields
)

var fieldNames = [numPacketFields]string{
	FieldSip:     "sip",
	FieldDip:     "dip",
	FieldSport:   "sport",
	FieldDport:   "dport",
	FieldFlagTCP: "flag_tcp",
	FieldFlagUDP: "flag_udp",
	FieldFlagSYN: "flag_syn",
	FieldFlagACK: "flag_ack",
	FieldFlagFIN: "flag_fin",
	FieldIPLen:   "ip_len",
}

// Valid reports whether f is one of the declared fields.
func (f PacketField) Valid() bool {
	return f < numPacketFields
}

func (f PacketField) String() string {
	if !f.Valid() {
		return fmt.Sprintf("field(%d)", uint8(f))
	}
	return fieldNames[f]
}

// ParsePacketField is the inverse of PacketField.String. Matching is case-insensitive.
func ParsePacketField(s string) (PacketField, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range fieldNames {
		if name == s {
			return PacketField(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown packet field %q", ErrInvalidLiteral, s)
}

// PacketFields returns all fields in declaration order.
func PacketFields() []PacketField {
	fields := make([]PacketField, numPacketFields)
	for i := range fields {
		fields[i] = PacketField(i)
	}
	return fields
}

// Package extract turns one Ethernet frame into a core.PacketMap.
//
// Only IPv4 over Ethernet (optionally VLAN tagged) is classified. Results:
//   - nil error: the map holds every IPv4 and TCP/UDP field.
//   - core.ErrUnsupportedFrame: skip the frame. For IPv4 frames with another
//     transport the map still carries Sip/Dip, absent ports and false flags.
//   - core.ErrNotImplemented: an IPv6 frame; distinct from "not applicable".
package extract

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/nfd/internal/core"
)

// TCP flag masks within the 13th header byte.
const (
	tcpFlagFIN uint8 = 0b0000_0001
	tcpFlagSYN uint8 = 0b0000_0010
	tcpFlagACK uint8 = 0b0001_0000
)

// Extractor decodes frames with a reusable gopacket.DecodingLayerParser.
// It is not safe for concurrent use.
type Extractor struct {
	parser *gopacket.DecodingLayerParser

	eth     layers.Ethernet
	dot1q   layers.Dot1Q
	ip4     layers.IPv4
	tcp     layers.TCP
	udp     layers.UDP
	payload gopacket.Payload

	decoded []gopacket.LayerType
}

// New returns an Extractor for Ethernet frames.
func New() *Extractor {
	e := &Extractor{}
	e.parser = gopacket.NewDecodingLayerParser(
		layers.LayerTypeEthernet,
		&e.eth,
		&e.dot1q,
		&e.ip4,
		&e.tcp,
		&e.udp,
		&e.payload,
	)
	// IPv6, ICMP, fragments and application layers stop decoding without error.
	// First fragments are picked up again in Extract.
	e.parser.IgnoreUnsupported = true
	return e
}

// Extract decodes data and fills a PacketMap.
func (e *Extractor) Extract(data []byte) (core.PacketMap, error) {
	var pm core.PacketMap

	// A decode error past the Ethernet header leaves the layers decoded so far
	// in e.decoded; those are still classified.
	e.decoded = e.decoded[:0]
	_ = e.parser.DecodeLayers(data, &e.decoded)

	var (
		haveEth, haveVLAN bool
		ip4               *layers.IPv4
		tcp               *layers.TCP
		udp               *layers.UDP
	)
	for _, typ := range e.decoded {
		switch typ {
		case layers.LayerTypeEthernet:
			haveEth = true
		case layers.LayerTypeDot1Q:
			haveVLAN = true
		case layers.LayerTypeIPv4:
			ip4 = &e.ip4
		case layers.LayerTypeTCP:
			tcp = &e.tcp
		case layers.LayerTypeUDP:
			udp = &e.udp
		}
	}
	if !haveEth {
		return pm, fmt.Errorf("%w: not an Ethernet frame", core.ErrUnsupportedFrame)
	}
	if ip4 != nil && tcp == nil && udp == nil && firstFragment(ip4) {
		tcp, udp = transportFromPayload(ip4, &e.tcp, &e.udp)
	}

	etherType := e.eth.EthernetType
	if haveVLAN {
		etherType = e.dot1q.Type
	}
	err := classify(&pm, etherType, ip4, tcp, udp)
	return pm, err
}

// ExtractPacket fills a PacketMap from an already decoded packet.
func ExtractPacket(p gopacket.Packet) (core.PacketMap, error) {
	var pm core.PacketMap

	eth, _ := p.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if eth == nil {
		return pm, fmt.Errorf("%w: not an Ethernet frame", core.ErrUnsupportedFrame)
	}
	etherType := eth.EthernetType
	for _, l := range p.Layers() {
		// The innermost tag carries the payload type.
		if tag, ok := l.(*layers.Dot1Q); ok {
			etherType = tag.Type
		}
	}

	ip4, _ := p.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	tcp, _ := p.Layer(layers.LayerTypeTCP).(*layers.TCP)
	udp, _ := p.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if ip4 != nil && tcp == nil && udp == nil && firstFragment(ip4) {
		tcp, udp = transportFromPayload(ip4, &layers.TCP{}, &layers.UDP{})
	}
	err := classify(&pm, etherType, ip4, tcp, udp)
	return pm, err
}

func classify(pm *core.PacketMap, etherType layers.EthernetType, ip4 *layers.IPv4, tcp *layers.TCP, udp *layers.UDP) error {
	switch etherType {
	case layers.EthernetTypeIPv4:
	case layers.EthernetTypeIPv6:
		return fmt.Errorf("%w: IPv6 frames", core.ErrNotImplemented)
	default:
		return fmt.Errorf("%w: ethertype %s", core.ErrUnsupportedFrame, etherType)
	}
	if ip4 == nil {
		return fmt.Errorf("%w: malformed IPv4 header", core.ErrUnsupportedFrame)
	}

	// IP facts live in layer 3 and are written whatever the transport.
	pm.Set(core.FieldSip, core.IPInfo{Addr: toAddr(ip4.SrcIP)})
	pm.Set(core.FieldDip, core.IPInfo{Addr: toAddr(ip4.DstIP)})

	switch {
	case ip4.Protocol == layers.IPProtocolTCP && tcp != nil:
		flags := tcpFlags(tcp)
		pm.Set(core.FieldSport, core.SomePort(uint32(tcp.SrcPort)))
		pm.Set(core.FieldDport, core.SomePort(uint32(tcp.DstPort)))
		pm.Set(core.FieldFlagTCP, core.FlagInfo{Set: true})
		pm.Set(core.FieldFlagUDP, core.FlagInfo{Set: false})
		pm.Set(core.FieldFlagACK, core.FlagInfo{Set: flags&tcpFlagACK != 0})
		pm.Set(core.FieldFlagSYN, core.FlagInfo{Set: flags&tcpFlagSYN != 0})
		pm.Set(core.FieldFlagFIN, core.FlagInfo{Set: flags&tcpFlagFIN != 0})
		return nil

	case ip4.Protocol == layers.IPProtocolUDP && udp != nil:
		pm.Set(core.FieldSport, core.SomePort(uint32(udp.SrcPort)))
		pm.Set(core.FieldDport, core.SomePort(uint32(udp.DstPort)))
		pm.Set(core.FieldFlagTCP, core.FlagInfo{Set: false})
		pm.Set(core.FieldFlagUDP, core.FlagInfo{Set: true})
		// UDP carries no TCP flags.
		pm.Set(core.FieldFlagACK, core.FlagInfo{Set: false})
		pm.Set(core.FieldFlagSYN, core.FlagInfo{Set: false})
		pm.Set(core.FieldFlagFIN, core.FlagInfo{Set: false})
		return nil
	}

	pm.Set(core.FieldSport, core.NoPort())
	pm.Set(core.FieldDport, core.NoPort())
	pm.Set(core.FieldFlagTCP, core.FlagInfo{Set: false})
	pm.Set(core.FieldFlagUDP, core.FlagInfo{Set: false})
	pm.Set(core.FieldFlagACK, core.FlagInfo{Set: false})
	pm.Set(core.FieldFlagSYN, core.FlagInfo{Set: false})
	pm.Set(core.FieldFlagFIN, core.FlagInfo{Set: false})
	return fmt.Errorf("%w: transport %s", core.ErrUnsupportedFrame, ip4.Protocol)
}

// firstFragment reports whether ip4 opens a fragmented datagram. gopacket
// hands its payload to the fragment layer, but it starts with the transport
// header.
func firstFragment(ip4 *layers.IPv4) bool {
	return ip4.Flags&layers.IPv4MoreFragments != 0 && ip4.FragOffset == 0
}

// transportFromPayload decodes the TCP or UDP header at the start of the IPv4
// payload into tcp or udp. Both results are nil when it does not decode.
func transportFromPayload(ip4 *layers.IPv4, tcp *layers.TCP, udp *layers.UDP) (*layers.TCP, *layers.UDP) {
	switch ip4.Protocol {
	case layers.IPProtocolTCP:
		if err := tcp.DecodeFromBytes(ip4.Payload, gopacket.NilDecodeFeedback); err == nil {
			return tcp, nil
		}
	case layers.IPProtocolUDP:
		if err := udp.DecodeFromBytes(ip4.Payload, gopacket.NilDecodeFeedback); err == nil {
			return nil, udp
		}
	}
	return nil, nil
}

// tcpFlags returns the flags byte of a decoded TCP header.
func tcpFlags(tcp *layers.TCP) uint8 {
	if len(tcp.Contents) > 13 {
		return tcp.Contents[13]
	}
	var f uint8
	if tcp.FIN {
		f |= tcpFlagFIN
	}
	if tcp.SYN {
		f |= tcpFlagSYN
	}
	if tcp.ACK {
		f |= tcpFlagACK
	}
	return f
}

func toAddr(ip net.IP) netip.Addr {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}

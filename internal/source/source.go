// Package source provides frame sources: pcap/pcapng files and live
// Ethernet capture.
package source

import (
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/nfd/internal/config"
)

// ErrTimeout reports that a live source saw no frame within its poll
// timeout. Callers retry.
var ErrTimeout = errors.New("source: read timeout")

// ErrNoSource is returned by Open when neither an interface nor a file is
// configured.
var ErrNoSource = errors.New("source: no interface or pcap file configured")

// Source yields raw frames. ReadPacketData returns io.EOF once a finite
// source is exhausted. The returned slice is owned by the caller.
type Source interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
	Close() error
}

// Open returns the source selected by cfg.
func Open(cfg config.CaptureConfig) (Source, error) {
	switch {
	case cfg.PcapFile != "":
		return OpenFile(cfg.PcapFile)
	case cfg.Interface != "":
		return OpenLive(LiveOptions{
			Interface:    cfg.Interface,
			Engine:       cfg.Engine,
			SnapLen:      cfg.SnapLen,
			BufferSizeMB: cfg.BufferSizeMB,
			TimeoutMs:    cfg.TimeoutMs,
			Promiscuous:  cfg.Promiscuous,
			IPv4Only:     cfg.IPv4Only,
		})
	}
	return nil, ErrNoSource
}

// LiveOptions configures OpenLive.
type LiveOptions struct {
	Interface    string
	Engine       string
	SnapLen      int
	BufferSizeMB int
	TimeoutMs    int
	Promiscuous  bool
	IPv4Only     bool
}

func (o LiveOptions) validate() error {
	if o.Interface == "" {
		return fmt.Errorf("source: interface is required")
	}
	if o.SnapLen <= 0 {
		return fmt.Errorf("source: snap length must be positive, got %d", o.SnapLen)
	}
	switch o.Engine {
	case config.EngineAFPacket, "":
		if o.Promiscuous {
			return fmt.Errorf("source: promiscuous mode needs the %s engine", config.EngineEthernet)
		}
	case config.EngineEthernet:
	default:
		return fmt.Errorf("source: unknown engine %q", o.Engine)
	}
	return nil
}

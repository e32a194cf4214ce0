//go:build linux

package source

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/nfd/internal/config"
)

// OpenLive opens a capture on an Ethernet interface. Requires CAP_NET_RAW.
func OpenLive(opts LiveOptions) (Source, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Engine == config.EngineEthernet {
		return openEthernet(opts)
	}
	return openAFPacket(opts)
}

// afpacketSource reads from a TPACKET_V3 memory-mapped ring.
type afpacketSource struct {
	handle *afpacket.TPacket
}

func openAFPacket(opts LiveOptions) (*afpacketSource, error) {
	frameSize, blockSize, numBlocks, err := ringSize(opts.BufferSizeMB, opts.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}
	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(opts.Interface),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(time.Duration(opts.TimeoutMs)*time.Millisecond),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", opts.Interface, err)
	}
	if opts.IPv4Only {
		raw, err := CompileIPv4Only(opts.SnapLen)
		if err != nil {
			tp.Close()
			return nil, err
		}
		if err := tp.SetBPF(raw); err != nil {
			tp.Close()
			return nil, fmt.Errorf("failed to attach BPF filter: %w", err)
		}
	}
	return &afpacketSource{handle: tp}, nil
}

func (s *afpacketSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.handle.ReadPacketData()
	if errors.Is(err, afpacket.ErrTimeout) {
		return nil, ci, ErrTimeout
	}
	return data, ci, err
}

func (s *afpacketSource) LinkType() layers.LinkType { return layers.LinkTypeEthernet }

func (s *afpacketSource) Close() error {
	s.handle.Close()
	return nil
}

// ethernetSource reads from a plain AF_PACKET socket. The socket has no
// receive timeout of its own, so reads go through a pollingReader.
type ethernetSource struct {
	handle *pcapgo.EthernetHandle
	reader *pollingReader
}

func openEthernet(opts LiveOptions) (*ethernetSource, error) {
	h, err := pcapgo.NewEthernetHandle(opts.Interface)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", opts.Interface, err)
	}
	if err := configureEthernet(h, opts); err != nil {
		h.Close()
		return nil, err
	}
	return &ethernetSource{
		handle: h,
		reader: newPollingReader(h, time.Duration(opts.TimeoutMs)*time.Millisecond),
	}, nil
}

func configureEthernet(h *pcapgo.EthernetHandle, opts LiveOptions) error {
	if err := h.SetCaptureLength(opts.SnapLen); err != nil {
		return fmt.Errorf("failed to set capture length: %w", err)
	}
	if opts.Promiscuous {
		if err := h.SetPromiscuous(true); err != nil {
			return fmt.Errorf("failed to enable promiscuous mode: %w", err)
		}
	}
	if opts.IPv4Only {
		raw, err := CompileIPv4Only(opts.SnapLen)
		if err != nil {
			return err
		}
		if err := h.SetBPF(raw); err != nil {
			return fmt.Errorf("failed to attach BPF filter: %w", err)
		}
	}
	return nil
}

func (s *ethernetSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return s.reader.ReadPacketData()
}

func (s *ethernetSource) LinkType() layers.LinkType { return layers.LinkTypeEthernet }

func (s *ethernetSource) Close() error {
	s.handle.Close()
	return nil
}

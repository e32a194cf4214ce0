package source

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Leading magic numbers of the two capture file formats.
const (
	magicPcapMicros = 0xa1b2c3d4
	magicPcapNanos  = 0xa1b23c4d
	magicPcapNG     = 0x0a0d0d0a // section header block type
)

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// FileSource replays a pcap or pcapng capture.
type FileSource struct {
	path   string
	file   io.Closer
	reader packetReader
}

// OpenFile opens a capture file. The format is detected from its magic
// number. Only Ethernet captures are accepted.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}
	r, err := newPacketReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap file %s: %w", path, err)
	}
	if lt := r.LinkType(); lt != layers.LinkTypeEthernet {
		f.Close()
		return nil, fmt.Errorf("pcap file %s: unsupported link type %s", path, lt)
	}
	return &FileSource{path: path, file: f, reader: r}, nil
}

// NewReaderSource reads a capture from r, which the caller closes.
func NewReaderSource(r io.Reader) (*FileSource, error) {
	pr, err := newPacketReader(bufio.NewReader(r))
	if err != nil {
		return nil, err
	}
	if lt := pr.LinkType(); lt != layers.LinkTypeEthernet {
		return nil, fmt.Errorf("unsupported link type %s", lt)
	}
	return &FileSource{reader: pr}, nil
}

func newPacketReader(br *bufio.Reader) (packetReader, error) {
	head, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("reading magic number: %w", err)
	}
	// pcap magic may be written in either byte order.
	le, be := binary.LittleEndian.Uint32(head), binary.BigEndian.Uint32(head)
	switch {
	case be == magicPcapNG:
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	case le == magicPcapMicros, be == magicPcapMicros, le == magicPcapNanos, be == magicPcapNanos:
		return pcapgo.NewReader(br)
	}
	return nil, fmt.Errorf("unknown capture format (magic %#08x)", be)
}

func (fs *FileSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := fs.reader.ReadPacketData()
	if err != nil {
		if err == io.EOF {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("failed to read packet: %w", err)
	}
	return data, ci, nil
}

func (fs *FileSource) LinkType() layers.LinkType {
	return fs.reader.LinkType()
}

func (fs *FileSource) Close() error {
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}

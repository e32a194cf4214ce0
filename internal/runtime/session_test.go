package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/nfd/internal/config"
	"firestige.xyz/nfd/internal/core"
	"firestige.xyz/nfd/internal/log"
	"firestige.xyz/nfd/internal/metrics"
	"firestige.xyz/nfd/internal/source"
	"firestige.xyz/nfd/internal/symtab"
)

// fakeSource replays a fixed script of reads.
type fakeSource struct {
	reads  []fakeRead
	pos    int
	closed bool
}

type fakeRead struct {
	data []byte
	err  error
}

func (f *fakeSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	if f.pos >= len(f.reads) {
		return nil, gopacket.CaptureInfo{}, io.EOF
	}
	r := f.reads[f.pos]
	f.pos++
	return r.data, gopacket.CaptureInfo{CaptureLength: len(r.data), Length: len(r.data)}, r.err
}

func (f *fakeSource) LinkType() layers.LinkType { return layers.LinkTypeEthernet }

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func frames(data ...[]byte) *fakeSource {
	f := &fakeSource{}
	for _, d := range data {
		f.reads = append(f.reads, fakeRead{data: d})
	}
	return f
}

func serialize(t *testing.T, etherType layers.EthernetType, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		DstMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		EthernetType: etherType,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, append([]gopacket.SerializableLayer{eth}, ls...)...))
	return buf.Bytes()
}

func tcpFrame(t *testing.T, src string, dport uint16) []byte {
	ip := &layers.IPv4{
		Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.ParseIP(src).To4(), DstIP: net.IPv4(10, 0, 0, 2).To4(),
	}
	tcp := &layers.TCP{SrcPort: 4321, DstPort: layers.TCPPort(dport), SYN: true, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return serialize(t, layers.EthernetTypeIPv4, ip, tcp)
}

func ipv6Frame(t *testing.T) []byte {
	ip := &layers.IPv6{
		Version: 6, NextHeader: layers.IPProtocolNoNextHeader, HopLimit: 64,
		SrcIP: net.ParseIP("2001:db8::1"), DstIP: net.ParseIP("2001:db8::2"),
	}
	return serialize(t, layers.EthernetTypeIPv6, ip)
}

func arpFrame(t *testing.T) []byte {
	return serialize(t, layers.EthernetTypeARP, &layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPRequest,
		SourceHwAddress: make([]byte, 6), SourceProtAddress: make([]byte, 4),
		DstHwAddress: make([]byte, 6), DstProtAddress: make([]byte, 4),
	})
}

func frameSip(t *testing.T, tbl *symtab.Table) string {
	t.Helper()
	pm, ok := tbl.Frame()
	require.True(t, ok, "no frame bound")
	info, ok := pm.Get(core.FieldSip)
	require.True(t, ok)
	return info.String()
}

func TestProcessBindsFrame(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	require.NoError(t, s.Process(tcpFrame(t, "10.0.0.1", 80)))

	pm, ok := s.Table().Frame()
	require.True(t, ok)
	dport, _ := pm.Get(core.FieldDport)
	assert.Equal(t, core.SomePort(80), dport)
	assert.Equal(t, "10.0.0.1", frameSip(t, s.Table()))
	assert.Equal(t, Stats{Received: 1, Extracted: 1}, s.Stats())
}

func TestProcessSkipKeepsPreviousFrame(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	require.NoError(t, s.Process(tcpFrame(t, "10.0.0.1", 80)))

	err := s.Process(arpFrame(t))
	assert.ErrorIs(t, err, core.ErrUnsupportedFrame)
	err = s.Process(ipv6Frame(t))
	assert.ErrorIs(t, err, core.ErrNotImplemented)

	assert.Equal(t, "10.0.0.1", frameSip(t, s.Table()))
	st := s.Stats()
	assert.Equal(t, uint64(3), st.Received)
	assert.Equal(t, uint64(1), st.Unsupported)
	assert.Equal(t, uint64(1), st.NotImplemented)
	assert.Equal(t, uint64(2), st.Skipped())
}

func TestProcessUsesConfiguredFrameID(t *testing.T) {
	s := New(Config{FrameID: "pkt"})
	defer s.Close()

	require.NoError(t, s.Process(tcpFrame(t, "10.0.0.1", 80)))
	_, ok := s.Table().Lookup("pkt")
	assert.True(t, ok)
	_, ok = s.Table().Lookup(symtab.DefaultFrameID)
	assert.False(t, ok)
}

func TestProcessKeepsSeededSymbols(t *testing.T) {
	tbl := symtab.New()
	tbl.BuildSet("blocked", core.IP{Net: core.MustParsePrefix("10.0.0.0/8")})
	s := New(Config{Table: tbl})
	defer s.Close()

	require.NoError(t, s.Process(tcpFrame(t, "10.0.0.1", 80)))
	require.NoError(t, s.Process(tcpFrame(t, "10.0.0.9", 443)))

	assert.Equal(t, []string{"blocked", "f"}, s.Table().Names())
	assert.Equal(t, "10.0.0.9", frameSip(t, s.Table()))
}

func TestRunUntilEOF(t *testing.T) {
	src := frames(
		tcpFrame(t, "10.0.0.1", 80),
		arpFrame(t),
		tcpFrame(t, "10.0.0.3", 22),
	)
	s := New(Config{Source: src, SourceLabel: "test"})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, Stats{Received: 3, Extracted: 2, Unsupported: 1}, s.Stats())
	assert.Equal(t, "10.0.0.3", frameSip(t, s.Table()))

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.FramesTotal.WithLabelValues(s.ID(), metrics.OutcomeExtracted)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.SessionRunning.WithLabelValues(s.ID(), "test")))

	require.NoError(t, s.Close())
	assert.True(t, src.closed)
}

func TestRunMaxFrames(t *testing.T) {
	src := frames(
		tcpFrame(t, "10.0.0.1", 80),
		tcpFrame(t, "10.0.0.2", 80),
		tcpFrame(t, "10.0.0.3", 80),
	)
	s := New(Config{Source: src, MaxFrames: 2})
	defer s.Close()

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, uint64(2), s.Stats().Received)
	assert.Equal(t, 2, src.pos, "the third frame must not be read")
}

func TestRunRetriesTimeouts(t *testing.T) {
	src := &fakeSource{reads: []fakeRead{
		{err: source.ErrTimeout},
		{data: tcpFrame(t, "10.0.0.1", 80)},
		{err: source.ErrTimeout},
	}}
	s := New(Config{Source: src})
	defer s.Close()

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, Stats{Received: 1, Extracted: 1}, s.Stats())
}

func TestRunReadError(t *testing.T) {
	boom := errors.New("device gone")
	src := &fakeSource{reads: []fakeRead{
		{data: tcpFrame(t, "10.0.0.1", 80)},
		{err: boom},
	}}
	s := New(Config{Source: src})
	defer s.Close()

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), s.Stats().ReadErrors)
}

func TestRunStopOnNotImplemented(t *testing.T) {
	mk := func() *fakeSource {
		return frames(tcpFrame(t, "10.0.0.1", 80), ipv6Frame(t), tcpFrame(t, "10.0.0.3", 80))
	}

	lenient := New(Config{Source: mk()})
	defer lenient.Close()
	require.NoError(t, lenient.Run(context.Background()))
	assert.Equal(t, uint64(2), lenient.Stats().Extracted)

	strict := New(Config{Source: mk(), StopOnNotImplemented: true})
	defer strict.Close()
	err := strict.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrNotImplemented)
	assert.Equal(t, uint64(1), strict.Stats().Extracted)
}

func TestProcessWarnsOnNotImplemented(t *testing.T) {
	var buf bytes.Buffer
	logger, err := log.NewWithOutput(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	s := New(Config{Logger: logger})
	defer s.Close()

	assert.ErrorIs(t, s.Process(ipv6Frame(t)), core.ErrNotImplemented)
	assert.ErrorIs(t, s.Process(ipv6Frame(t)), core.ErrNotImplemented)
	assert.ErrorIs(t, s.Process([]byte{1, 2, 3}), core.ErrUnsupportedFrame)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "only the first not-implemented frame is logged at warn")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, float64(1), entry["not_implemented"])
	assert.Equal(t, s.ID(), entry["session"])
	assert.Equal(t, uint64(2), s.Stats().NotImplemented)
}

// blockingSource returns timeouts forever, like an idle interface.
type blockingSource struct{ fakeSource }

func (b *blockingSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	time.Sleep(time.Millisecond)
	return nil, gopacket.CaptureInfo{}, source.ErrTimeout
}

func TestRunCancel(t *testing.T) {
	s := New(Config{Source: &blockingSource{}})
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunWithoutSource(t *testing.T) {
	s := New(Config{})
	defer s.Close()
	assert.Error(t, s.Run(context.Background()))
}

func TestRunFromPcap(t *testing.T) {
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	for _, d := range [][]byte{tcpFrame(t, "192.168.1.1", 80), ipv6Frame(t), tcpFrame(t, "192.168.1.2", 443)} {
		ci := gopacket.CaptureInfo{Timestamp: time.Unix(1700000000, 0), CaptureLength: len(d), Length: len(d)}
		require.NoError(t, w.WritePacket(ci, d))
	}

	src, err := source.NewReaderSource(&buf)
	require.NoError(t, err)
	s := New(Config{Source: src})
	defer s.Close()

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, Stats{Received: 3, Extracted: 2, NotImplemented: 1}, s.Stats())

	pm, ok := s.Table().Frame()
	require.True(t, ok)
	sip, _ := pm.Get(core.FieldSip)
	assert.Equal(t, core.IPInfo{Addr: netip.MustParseAddr("192.168.1.2")}, sip)
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	args := m.Called()
	data, _ := args.Get(0).([]byte)
	return data, gopacket.CaptureInfo{}, args.Error(1)
}

func (m *mockSource) LinkType() layers.LinkType { return layers.LinkTypeEthernet }

func (m *mockSource) Close() error {
	return m.Called().Error(0)
}

func TestRunStopsReadingAfterCancelledReadError(t *testing.T) {
	src := new(mockSource)
	ctx, cancel := context.WithCancel(context.Background())

	src.On("ReadPacketData").Return(tcpFrame(t, "10.0.0.1", 80), nil).Once()
	// The source fails because shutdown closed it; this is not a read error.
	src.On("ReadPacketData").Return(nil, errors.New("socket closed")).Run(func(mock.Arguments) { cancel() }).Once()
	src.On("Close").Return(nil).Once()

	s := New(Config{Source: src})
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, uint64(0), s.Stats().ReadErrors)
	require.NoError(t, s.Close())

	src.AssertExpectations(t)
}

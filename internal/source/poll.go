package source

import (
	"time"

	"github.com/google/gopacket"
)

// pollingReader bounds each read of a blocking packet source by timeout and
// reports ErrTimeout when nothing arrived. At most one read is in flight; a
// read that outlives the timeout is returned by a later call.
type pollingReader struct {
	src     gopacket.PacketDataSource
	timeout time.Duration
	results chan readResult
	pending bool
}

type readResult struct {
	data []byte
	ci   gopacket.CaptureInfo
	err  error
}

func newPollingReader(src gopacket.PacketDataSource, timeout time.Duration) *pollingReader {
	return &pollingReader{src: src, timeout: timeout, results: make(chan readResult, 1)}
}

func (p *pollingReader) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	if p.timeout <= 0 {
		return p.src.ReadPacketData()
	}
	if !p.pending {
		p.pending = true
		go func() {
			data, ci, err := p.src.ReadPacketData()
			p.results <- readResult{data: data, ci: ci, err: err}
		}()
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case r := <-p.results:
		p.pending = false
		return r.data, r.ci, r.err
	case <-timer.C:
		return nil, gopacket.CaptureInfo{}, ErrTimeout
	}
}

package runtime

import "sync/atomic"

// Stats is a snapshot of session counters. Received counts every frame
// handed to Process; each one lands in exactly one of Extracted,
// Unsupported and NotImplemented.
type Stats struct {
	Received       uint64
	Extracted      uint64
	Unsupported    uint64
	NotImplemented uint64
	ReadErrors     uint64
}

// Skipped returns the number of frames that were not bound.
func (s Stats) Skipped() uint64 {
	return s.Unsupported + s.NotImplemented
}

type counters struct {
	received       atomic.Uint64
	extracted      atomic.Uint64
	unsupported    atomic.Uint64
	notImplemented atomic.Uint64
	readErrors     atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Received:       c.received.Load(),
		Extracted:      c.extracted.Load(),
		Unsupported:    c.unsupported.Load(),
		NotImplemented: c.notImplemented.Load(),
		ReadErrors:     c.readErrors.Load(),
	}
}

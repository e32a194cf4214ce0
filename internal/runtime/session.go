// Package runtime drives the receive-process loop: frames are read from a
// source, extracted and bound into the symbol table one at a time.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"firestige.xyz/nfd/internal/core"
	"firestige.xyz/nfd/internal/extract"
	"firestige.xyz/nfd/internal/log"
	"firestige.xyz/nfd/internal/metrics"
	"firestige.xyz/nfd/internal/source"
	"firestige.xyz/nfd/internal/symtab"
)

// notImplementedWarnEvery spaces out warnings for not-implemented frames
// after the first one.
const notImplementedWarnEvery = 1000

// Config contains session configuration.
type Config struct {
	Source      source.Source
	SourceLabel string        // interface name or file path, for metrics
	Table       *symtab.Table // nil: a fresh table with FrameID
	FrameID     string        // ignored when Table is set
	MaxFrames   int           // 0 = unlimited

	// StopOnNotImplemented makes Run fail on the first frame whose
	// protocol path is not implemented instead of skipping it.
	StopOnNotImplemented bool

	Logger log.Logger
}

// Session is a single-threaded receive-process loop. It is not safe for
// concurrent use, except for Stats.
type Session struct {
	id        string
	src       source.Source
	extractor *extract.Extractor
	table     *symtab.Table
	stats     *counters
	recorder  *metrics.Recorder
	logger    log.Logger

	maxFrames     int
	stopOnNotImpl bool
}

// New creates a session. cfg.Source may be nil when frames are only fed
// through Process.
func New(cfg Config) *Session {
	id := uuid.NewString()

	table := cfg.Table
	if table == nil {
		var opts []symtab.Option
		if cfg.FrameID != "" {
			opts = append(opts, symtab.WithFrameID(cfg.FrameID))
		}
		table = symtab.New(opts...)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLogger()
	}

	label := cfg.SourceLabel
	if label == "" {
		label = "none"
	}

	s := &Session{
		id:            id,
		src:           cfg.Source,
		extractor:     extract.New(),
		table:         table,
		stats:         &counters{},
		recorder:      metrics.NewRecorder(id, label),
		logger:        logger.WithField("session", id),
		maxFrames:     cfg.MaxFrames,
		stopOnNotImpl: cfg.StopOnNotImplemented,
	}
	s.recorder.Symbols(table.Len())
	return s
}

func (s *Session) ID() string { return s.id }

// Table returns the session's symbol table.
func (s *Session) Table() *symtab.Table { return s.table }

// Stats returns a snapshot of the loop counters.
func (s *Session) Stats() Stats { return s.stats.snapshot() }

// Process extracts one frame and, if it classifies cleanly, binds it as the
// current frame. Unsupported and not-implemented frames leave the table
// unchanged; their error is returned for the caller to classify.
func (s *Session) Process(data []byte) error {
	s.stats.received.Add(1)

	start := time.Now()
	pm, err := s.extractor.Extract(data)
	elapsed := time.Since(start).Seconds()

	switch {
	case err == nil:
		s.table.BindFrame(pm)
		s.stats.extracted.Add(1)
		s.recorder.Frame(metrics.OutcomeExtracted, elapsed)
		s.recorder.Symbols(s.table.Len())
		if s.logger.IsTraceEnabled() {
			s.logger.Tracef("bound frame %s", pm.String())
		}
		return nil

	case errors.Is(err, core.ErrNotImplemented):
		n := s.stats.notImplemented.Add(1)
		s.recorder.Frame(metrics.OutcomeNotImplemented, elapsed)
		if n == 1 || n%notImplementedWarnEvery == 0 {
			s.logger.WithError(err).WithField("not_implemented", n).Warn("frame protocol not implemented")
		}
		return err

	default:
		s.stats.unsupported.Add(1)
		s.recorder.Frame(metrics.OutcomeUnsupported, elapsed)
	}

	if s.logger.IsDebugEnabled() {
		s.logger.WithError(err).Debug("frame skipped")
	}
	return err
}

// Run reads frames until the source is exhausted, MaxFrames frames have
// been read, or ctx is cancelled. The context is checked between reads.
func (s *Session) Run(ctx context.Context) error {
	if s.src == nil {
		return fmt.Errorf("session %s: no source", s.id)
	}

	s.recorder.Running(true)
	defer s.recorder.Running(false)

	s.logger.Info("session started")
	err := s.loop(ctx)

	st := s.Stats()
	entry := s.logger.WithFields(map[string]interface{}{
		"received":        st.Received,
		"extracted":       st.Extracted,
		"unsupported":     st.Unsupported,
		"not_implemented": st.NotImplemented,
		"read_errors":     st.ReadErrors,
	})
	if err != nil {
		entry.WithError(err).Error("session stopped")
		return err
	}
	entry.Info("session finished")
	return nil
}

// Close closes the source and drops the session's metric series.
func (s *Session) Close() error {
	s.recorder.Forget()
	if s.src == nil {
		return nil
	}
	return s.src.Close()
}

func (s *Session) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if s.maxFrames > 0 && s.stats.received.Load() >= uint64(s.maxFrames) {
			return nil
		}

		data, _, err := s.src.ReadPacketData()
		switch {
		case err == nil:
		case errors.Is(err, source.ErrTimeout):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			s.stats.readErrors.Add(1)
			s.recorder.ReadError()
			return fmt.Errorf("read frame: %w", err)
		}

		if err := s.Process(data); err != nil && s.stopOnNotImpl && errors.Is(err, core.ErrNotImplemented) {
			return err
		}
	}
}

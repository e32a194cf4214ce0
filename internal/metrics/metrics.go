// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame outcomes, used as the "outcome" label of FramesTotal.
const (
	OutcomeExtracted      = "extracted"
	OutcomeUnsupported    = "unsupported"
	OutcomeNotImplemented = "not_implemented"
)

var (
	// FramesTotal counts frames read from the source by extraction outcome
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfd_frames_total",
			Help: "Total number of frames processed, by extraction outcome",
		},
		[]string{"session", "outcome"},
	)

	// ReadErrorsTotal counts source read failures other than timeouts
	ReadErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfd_read_errors_total",
			Help: "Total number of failed source reads",
		},
		[]string{"session"},
	)

	// ExtractLatencySeconds measures per-frame extraction latency
	ExtractLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nfd_extract_latency_seconds",
			Help:    "Latency of frame extraction in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0000001, 2, 16), // 100ns to ~3ms
		},
		[]string{"session"},
	)

	// SymbolsBound tracks the number of identifiers in the symbol table
	SymbolsBound = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nfd_symbols_bound",
			Help: "Current number of identifiers bound in the symbol table",
		},
		[]string{"session"},
	)

	// SessionRunning is 1 while a session's receive loop runs
	SessionRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nfd_session_running",
			Help: "Whether the session receive loop is running (1) or stopped (0)",
		},
		[]string{"session", "source"},
	)
)

// Recorder records loop metrics for one session.
type Recorder struct {
	frames      map[string]prometheus.Counter
	readErrors  prometheus.Counter
	latency     prometheus.Observer
	symbols     prometheus.Gauge
	running     prometheus.Gauge
	session     string
	sourceLabel string
}

// NewRecorder binds the label values for one session.
func NewRecorder(session, source string) *Recorder {
	return &Recorder{
		frames: map[string]prometheus.Counter{
			OutcomeExtracted:      FramesTotal.WithLabelValues(session, OutcomeExtracted),
			OutcomeUnsupported:    FramesTotal.WithLabelValues(session, OutcomeUnsupported),
			OutcomeNotImplemented: FramesTotal.WithLabelValues(session, OutcomeNotImplemented),
		},
		readErrors:  ReadErrorsTotal.WithLabelValues(session),
		latency:     ExtractLatencySeconds.WithLabelValues(session),
		symbols:     SymbolsBound.WithLabelValues(session),
		running:     SessionRunning.WithLabelValues(session, source),
		session:     session,
		sourceLabel: source,
	}
}

func (r *Recorder) Frame(outcome string, seconds float64) {
	if c, ok := r.frames[outcome]; ok {
		c.Inc()
	}
	r.latency.Observe(seconds)
}

func (r *Recorder) ReadError() { r.readErrors.Inc() }

func (r *Recorder) Symbols(n int) { r.symbols.Set(float64(n)) }

func (r *Recorder) Running(on bool) {
	if on {
		r.running.Set(1)
		return
	}
	r.running.Set(0)
}

// Forget removes this session's series.
func (r *Recorder) Forget() {
	for outcome := range r.frames {
		FramesTotal.DeleteLabelValues(r.session, outcome)
	}
	ReadErrorsTotal.DeleteLabelValues(r.session)
	ExtractLatencySeconds.DeleteLabelValues(r.session)
	SymbolsBound.DeleteLabelValues(r.session)
	SessionRunning.DeleteLabelValues(r.session, r.sourceLabel)
}

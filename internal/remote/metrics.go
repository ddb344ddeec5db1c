package remote

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts sync activity. A nil *Metrics records nothing.
type Metrics struct {
	PartsWritten prometheus.Counter
	BytesFetched prometheus.Counter
	PartsApplied prometheus.Counter

	// MergeSkipped is labeled by kind: client, peer or master.
	MergeSkipped *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg when it is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PartsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minisync_parts_written_total",
			Help: "Part files written by saves.",
		}),
		BytesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minisync_bytes_fetched_total",
			Help: "Bytes downloaded by URL from any store.",
		}),
		PartsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minisync_parts_applied_total",
			Help: "Parts applied to documents by restores and merges.",
		}),
		MergeSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minisync_merge_skipped_total",
			Help: "Clients, peers and master indexes dropped from merges.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.PartsWritten, m.BytesFetched, m.PartsApplied, m.MergeSkipped)
	}
	return m
}

func (m *Metrics) partWritten() {
	if m != nil {
		m.PartsWritten.Inc()
	}
}

func (m *Metrics) bytesFetched(n int) {
	if m != nil {
		m.BytesFetched.Add(float64(n))
	}
}

func (m *Metrics) partApplied() {
	if m != nil {
		m.PartsApplied.Inc()
	}
}

func (m *Metrics) skipped(kind SkipKind) {
	if m != nil {
		m.MergeSkipped.WithLabelValues(string(kind)).Inc()
	}
}

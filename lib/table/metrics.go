package table

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

// tableMetrics is the per-table metrics set. A nil *tableMetrics records
// nothing, which is what tables created with Options.Metrics unset carry.
type tableMetrics struct {
	set *metrics.Set

	inserts     *metrics.Counter
	removes     *metrics.Counter
	hits        *metrics.Counter
	misses      *metrics.Counter
	reclaims    *metrics.Counter
	deferrals   *metrics.Counter
	retryQueues *metrics.Counter
	latency     *metrics.Histogram
}

func newTableMetrics[K any, V any](t *Table[K, V]) *tableMetrics {
	s := metrics.NewSet()
	name := func(metric string) string {
		return fmt.Sprintf("qtable_%s{table=%q}", metric, t.opts.Name)
	}

	m := &tableMetrics{
		set:         s,
		inserts:     s.NewCounter(name("inserts_total")),
		removes:     s.NewCounter(name("removes_total")),
		hits:        s.NewCounter(name("lookup_hits_total")),
		misses:      s.NewCounter(name("lookup_misses_total")),
		reclaims:    s.NewCounter(name("reclaimed_total")),
		deferrals:   s.NewCounter(name("reclaim_deferrals_total")),
		retryQueues: s.NewCounter(name("lazy_retry_queued_total")),
		latency:     s.NewHistogram(name("reclaim_latency_seconds")),
	}

	s.NewGauge(name("live_entries"), func() float64 { return float64(t.live.Load()) })
	s.NewGauge(name("pending_entries"), func() float64 { return float64(t.pending.Load()) })
	s.NewGauge(name("epoch_started"), func() float64 { return float64(t.epochs.started.Load()) })
	s.NewGauge(name("epoch_completed"), func() float64 { return float64(t.epochs.completed.Load()) })
	if t.sections != nil {
		s.NewGauge(name("open_sections"), func() float64 { return float64(t.sections.size()) })
	}
	return m
}

func (m *tableMetrics) inserted() {
	if m != nil {
		m.inserts.Inc()
	}
}

func (m *tableMetrics) removed() {
	if m != nil {
		m.removes.Inc()
	}
}

func (m *tableMetrics) lookupHit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *tableMetrics) lookupMiss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *tableMetrics) reclaimDeferred() {
	if m != nil {
		m.deferrals.Inc()
	}
}

func (m *tableMetrics) retryQueued() {
	if m != nil {
		m.retryQueues.Inc()
	}
}

func (m *tableMetrics) reclaimedAfter(d time.Duration) {
	if m != nil {
		m.reclaims.Inc()
		m.latency.Update(d.Seconds())
	}
}

// WriteMetrics writes the table's metrics in Prometheus text format. It writes
// nothing for tables created without metrics.
//
// Thread-safety: This method is thread-safe.
func (t *Table[K, V]) WriteMetrics(w io.Writer) {
	if t.metrics != nil {
		t.metrics.set.WritePrometheus(w)
	}
}

// Package bench reports the per-round latency measurements §2/§8 call for
// ("bench/stats... latency histogram; per-round timing") via Prometheus
// client metrics, replacing the source's fixed-size STATS arrays and
// Alarm(PRINT,...) dump with a standard scrapeable counter and histograms.
package bench

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats collects the three measurements scenario descriptions in §8 name:
// how many LR events have been observed, how long after an LR event the
// first corroborating share/ack arrived, and how long a round took to
// resolve end to end.
type Stats struct {
	lrCount        prometheus.Counter
	firstShareLag  prometheus.Histogram
	resolvedLag    prometheus.Histogram

	roundStart map[uint64]time.Time
	clock      func() time.Time
}

// NewStats registers TM's metrics with reg. Passing a dedicated registry
// (rather than the global default) keeps multiple replicas in one test
// binary from colliding on metric names.
func NewStats(reg prometheus.Registerer) (*Stats, error) {
	s := &Stats{
		lrCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tm_lr_events_total",
			Help: "Total local-relay events observed.",
		}),
		firstShareLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tm_first_share_latency_seconds",
			Help:    "Time from an LR event to the first corroborating share or ack.",
			Buckets: prometheus.DefBuckets,
		}),
		resolvedLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tm_round_resolved_latency_seconds",
			Help:    "Time from an LR event to a combined, verified signature.",
			Buckets: prometheus.DefBuckets,
		}),
		roundStart: make(map[uint64]time.Time),
		clock:      time.Now,
	}
	for _, c := range []prometheus.Collector{s.lrCount, s.firstShareLag, s.resolvedLag} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// RecordLR increments the LR event counter. It does not record a round
// start; MarkRoundStart does that, keyed by the dts that
// RecordFirstShare/RecordResolved later look up.
func (s *Stats) RecordLR() {
	s.lrCount.Inc()
}

// MarkRoundStart records t0 as the start of the round that will eventually
// resolve at dts.
func (s *Stats) MarkRoundStart(dts uint64) {
	s.roundStart[dts] = s.clock()
}

// RecordFirstShare observes the latency from a round's start to the first
// corroborating share/ack for dts.
func (s *Stats) RecordFirstShare(dts uint64) {
	if t0, ok := s.roundStart[dts]; ok {
		s.firstShareLag.Observe(s.clock().Sub(t0).Seconds())
	}
}

// RecordResolved observes the latency from a round's start to a fully
// combined, verified signature for dts, then forgets the round.
func (s *Stats) RecordResolved(dts uint64) {
	if t0, ok := s.roundStart[dts]; ok {
		s.resolvedLag.Observe(s.clock().Sub(t0).Seconds())
		delete(s.roundStart, dts)
	}
}

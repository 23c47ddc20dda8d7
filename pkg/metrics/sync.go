package metrics

import "github.com/prometheus/client_golang/prometheus"

// SyncMetrics tracks the order-card synchronization surface: change-feed
// polls served and card mutations written.
type SyncMetrics struct {
	polls     prometheus.Counter
	feedRows  prometheus.Histogram
	mutations prometheus.Counter
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	polls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "card_feed_polls_total",
		Help: "Change feed poll requests served.",
	})
	feedRows := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "card_feed_rows",
		Help:    "Rows returned per change feed poll.",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})
	mutations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "card_mutations_total",
		Help: "Card state mutations written.",
	})
	reg.MustRegister(polls, feedRows, mutations)
	return &SyncMetrics{polls: polls, feedRows: feedRows, mutations: mutations}
}

// ObservePoll records one served poll and the number of rows it returned.
func (s *SyncMetrics) ObservePoll(rows int) {
	if s == nil || s.polls == nil {
		return
	}
	s.polls.Inc()
	s.feedRows.Observe(float64(rows))
}

// IncMutation records one persisted card mutation.
func (s *SyncMetrics) IncMutation() {
	if s == nil || s.mutations == nil {
		return
	}
	s.mutations.Inc()
}

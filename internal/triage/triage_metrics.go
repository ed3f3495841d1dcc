package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	IngestsTotal          *prometheus.CounterVec
	StatusUpdatesTotal    *prometheus.CounterVec
	DeletesTotal          prometheus.Counter
	BroadcastsTotal       prometheus.Counter
	SummaryRefreshesTotal prometheus.Counter
	AnalysisDuration      prometheus.Histogram
	GroupRankDuration     prometheus.Histogram
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_ingests_total",
			Help: "Total ingestion attempts by source and result.",
		}, []string{"source", "result"}),
		StatusUpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_status_updates_total",
			Help: "Total record status updates by new status.",
		}, []string{"status"}),
		DeletesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sift_deletes_total",
			Help: "Total record deletions.",
		}),
		BroadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sift_refresh_broadcasts_total",
			Help: "Total refresh events broadcast to viewers.",
		}),
		SummaryRefreshesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sift_summary_refreshes_total",
			Help: "Total per-thread summary cache refreshes.",
		}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sift_analysis_duration_seconds",
			Help:    "Duration of topic/urgency analysis runs.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~4s
		}),
		GroupRankDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sift_group_rank_duration_seconds",
			Help:    "Duration of thread grouping and ranking passes.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~4s
		}),
	}

	reg.MustRegister(
		m.IngestsTotal,
		m.StatusUpdatesTotal,
		m.DeletesTotal,
		m.BroadcastsTotal,
		m.SummaryRefreshesTotal,
		m.AnalysisDuration,
		m.GroupRankDuration,
	)

	return m
}

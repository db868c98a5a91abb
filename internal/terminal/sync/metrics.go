package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncPassesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "terminal",
			Name:      "sync_passes_total",
			Help:      "Total full synchronization passes.",
		},
		[]string{"result"}, // "completed", "offline", "busy", "error"
	)

	replayCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "terminal",
			Name:      "sync_replayed_transactions_total",
			Help:      "Pending transactions replayed against the server.",
		},
		[]string{"type", "status"}, // type: "payment"|"reload", status: "success"|"failed"
	)

	syncDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "terminal",
			Name:      "sync_pass_duration_seconds",
			Help:      "Duration of full synchronization passes.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

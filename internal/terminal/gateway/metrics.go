package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "terminal",
			Name:      "gateway_operations_total",
			Help:      "Total gateway operations processed.",
		},
		[]string{"operation", "mode", "status"}, // mode: "online"|"offline", status: "success"|"error"
	)

	offlineQueueDepthGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "terminal",
			Name:      "pending_queue_depth",
			Help:      "Number of transactions queued for replay.",
		},
	)
)

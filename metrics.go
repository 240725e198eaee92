package eccentric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnection = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eccentric_connection_total",
			Help: "Incoming connections.",
		},
	)
	metricCommands = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eccentric_command_duration_seconds",
			Help:    "Command duration and reply codes in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.100, 0.5, 1, 5, 10, 20, 30, 60},
		},
		[]string{
			"cmd",
			"code",
		},
	)
	metricDelivery = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eccentric_delivery_total",
			Help: "Completed data phases. Result values: delivered, discarded, toobig, delivererror.",
		},
		[]string{
			"result",
		},
	)
)

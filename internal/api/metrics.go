// SPDX-License-Identifier: MIT

package api

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamelink_http_requests_total",
		Help: "Number of control API requests by path and status code",
	}, []string{"path", "code"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gamelink_http_request_duration_seconds",
		Help:    "Duration of control API requests in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2.0, 12), // 1ms .. ~4s
	})

	tasksStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamelink_tasks_started_total",
		Help: "Number of background tasks started by kind",
	}, []string{"kind"})

	streamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamelink_stream_requests_total",
		Help: "Number of stream launch requests by result",
	}, []string{"result"})
)

func recordRequest(path string, code int, duration time.Duration) {
	requestsTotal.WithLabelValues(path, strconv.Itoa(code)).Inc()
	requestDuration.Observe(duration.Seconds())
}

func recordTaskStarted(kind string) {
	tasksStartedTotal.WithLabelValues(kind).Inc()
}

func recordStreamRequest(succeeded bool) {
	result := "rejected"
	if succeeded {
		result = "accepted"
	}
	streamRequestsTotal.WithLabelValues(result).Inc()
}

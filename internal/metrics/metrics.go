// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Rounds started, labelled by question source (cloud/local)
	RoundsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hayaoshi_rounds_started_total",
			Help: "Total number of rounds started",
		},
		[]string{"source"},
	)

	RoundsFinished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hayaoshi_rounds_finished_total",
			Help: "Total number of rounds played to the end",
		},
	)

	// Saves by destination and fallback cause ("" when the remote write succeeded)
	RecordSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hayaoshi_record_saves_total",
			Help: "Session records saved, by location and fallback cause",
		},
		[]string{"location", "cause"},
	)

	RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hayaoshi_remote_call_duration_seconds",
			Help:    "Latency of remote storage calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "outcome"},
	)
)

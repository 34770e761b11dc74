package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	PollCount         prometheus.Counter
	MessagesQueued    prometheus.Counter
	MessagesSucceeded prometheus.Counter
	MessagesFailed    prometheus.Counter
	MessagesSkipped   prometheus.Counter
	OCRFailures       prometheus.Counter
	ProcessingTime    prometheus.Histogram
	InFlight          prometheus.Gauge
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		PollCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "referral_triage_poll_count",
			Help: "Total number of mailbox poll operations",
		}),
		MessagesQueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "referral_triage_messages_queued",
			Help: "Total number of messages dispatched to workers",
		}),
		MessagesSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "referral_triage_messages_succeeded",
			Help: "Total number of messages processed successfully",
		}),
		MessagesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "referral_triage_messages_failed",
			Help: "Total number of messages that failed processing",
		}),
		MessagesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "referral_triage_messages_skipped",
			Help: "Total number of messages skipped as already processed",
		}),
		OCRFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "referral_triage_ocr_failures",
			Help: "Total number of attachment extraction failures",
		}),
		ProcessingTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "referral_triage_processing_duration_seconds",
			Help:    "Time spent processing one message end to end",
			Buckets: prometheus.DefBuckets,
		}),
		InFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "referral_triage_inflight_messages",
			Help: "Number of messages currently being processed",
		}),
	}
}

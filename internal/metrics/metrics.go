package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts pipeline runs by terminal status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crypto_analyzer_runs_total",
			Help: "Total number of pipeline runs by terminal status",
		},
		[]string{"status"},
	)

	// RunDuration tracks how long a run takes end to end.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crypto_analyzer_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// PostsClassified counts classified posts per category.
	PostsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crypto_analyzer_posts_classified_total",
			Help: "Total number of classified posts",
		},
		[]string{"category"},
	)

	// ClassifierAttempts counts model calls by outcome (ok or failure cause).
	ClassifierAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crypto_analyzer_classifier_attempts_total",
			Help: "Total number of classifier requests by outcome",
		},
		[]string{"outcome"},
	)

	// ClassifierLatency tracks a single model request.
	ClassifierLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crypto_analyzer_classifier_latency_seconds",
			Help:    "Classifier request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// MessagesSent counts chat deliveries by result.
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crypto_analyzer_messages_sent_total",
			Help: "Total number of chat messages by delivery result",
		},
		[]string{"result"},
	)

	// RecordsPruned counts deleted classification records.
	RecordsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crypto_analyzer_records_pruned_total",
			Help: "Total number of pruned classification records",
		},
	)

	// LastRunValuable is the valuable count of the latest completed run.
	LastRunValuable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crypto_analyzer_last_run_valuable",
			Help: "Valuable posts found by the latest completed run",
		},
	)
)

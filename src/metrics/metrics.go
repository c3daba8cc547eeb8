package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "credit_observer"

// Ingestion
var (
	SourceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_requests_total",
		Help:      "Outbound requests to external sources by status class.",
	}, []string{"source", "status"})

	IngestCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_cycles_total",
		Help:      "Ingestion cycles by outcome.",
	}, []string{"source", "outcome"})

	IngestRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_records_total",
		Help:      "Records committed or rejected by ingestion.",
	}, []string{"source", "result"})

	IngestCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_cycle_duration_seconds",
		Help:      "Wall-clock duration of ingestion cycles.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source"})

	SourceErrorCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "source_error_count",
		Help:      "Consecutive failed cycles per source.",
	}, []string{"source"})
)

// Scoring
var (
	ScoresComputed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scores_computed_total",
		Help:      "Scores computed by model kind (forest, heuristic, neutral).",
	}, []string{"kind"})

	ScoringFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scoring_failures_total",
		Help:      "Issuer scoring runs that failed before commit.",
	})

	ScoringRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scoring_run_duration_seconds",
		Help:      "Duration of a full scoring run across issuers.",
		Buckets:   prometheus.DefBuckets,
	})

	LatestScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "latest_score",
		Help:      "Most recent credit score per issuer.",
	}, []string{"symbol"})

	Retrains = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "model_retrains_total",
		Help:      "Model retrain attempts by outcome.",
	}, []string{"outcome"})
)

// Alerts
var (
	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_emitted_total",
		Help:      "Alerts stored by severity.",
	}, []string{"severity"})
)

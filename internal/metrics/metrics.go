package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stage counters and histograms, partitioned by stage/rail/venue.

var (
	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "pipeline",
		Name:      "payments_total",
		Help:      "Total payment pipeline runs by terminal status",
	}, []string{"status"})

	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "pipeline",
		Name:      "stage_failures_total",
		Help:      "Total stage failures by stage",
	}, []string{"stage"})

	StageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gateway",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Per-stage processing duration",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"stage"})

	FraudRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "fraud",
		Name:      "rejections_total",
		Help:      "Total hard fraud rejections",
	})

	FraudScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gateway",
		Subsystem: "fraud",
		Name:      "score",
		Help:      "Distribution of fraud scores",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	QuoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "venue",
		Name:      "quote_requests_total",
		Help:      "Total venue quote requests by venue and outcome",
	}, []string{"venue", "status"})

	QuoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gateway",
		Subsystem: "venue",
		Name:      "quote_duration_seconds",
		Help:      "Venue quote request duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"venue"})

	VenueSelected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "venue",
		Name:      "selected_total",
		Help:      "Total selections per venue",
	}, []string{"venue"})

	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "settlement",
		Name:      "settlements_total",
		Help:      "Total settlements by rail and outcome",
	}, []string{"rail", "status"})

	NonceWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "chain",
		Name:      "nonce_waits_total",
		Help:      "Times an on-chain submit waited on the per-account nonce lock",
	}, []string{"chain"})

	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "chain",
		Name:      "rpc_calls_total",
		Help:      "Total chain RPC calls by method and status",
	}, []string{"chain", "method", "status"})

	RateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "ratelimit",
		Name:      "waits_total",
		Help:      "Times a call blocked on the client rate limiter",
	}, []string{"target"})

	RNGFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "rng",
		Name:      "fallbacks_total",
		Help:      "Times the quantum provider failed over to the local CSPRNG",
	})

	FeeAllocated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "fees",
		Name:      "allocated_total",
		Help:      "Total successful treasury fee allocations",
	})

	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Alerts sent by channel and type",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Alerts suppressed by cooldown",
	}, []string{"channel", "type"})

	IdempotentReplays = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "pipeline",
		Name:      "idempotent_replays_total",
		Help:      "Requests answered from the idempotency store without a pipeline run",
	})
)

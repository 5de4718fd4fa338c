package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	IntentsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentd_intents_executed_total",
		Help: "The total number of executed intents by action and terminal state",
	}, []string{"action", "state"})

	IntentProcessingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intentd_intent_processing_seconds",
		Help:    "Time taken to execute intents",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s..512s, confirmations dominate
	}, []string{"action"})

	IntentErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentd_intent_errors_total",
		Help: "Total number of failed intents by error kind",
	}, []string{"action", "kind"})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentd_submissions_total",
		Help: "Transactions submitted to the wallet by chain and step",
	}, []string{"chain_id", "step"})

	ConfirmationRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentd_confirmation_retries_total",
		Help: "Confirmation waits retried after provider rate limiting",
	}, []string{"chain_id"})

	UnconfirmedResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentd_unconfirmed_results_total",
		Help: "Submissions returned without confirmation after retries were exhausted",
	}, []string{"chain_id"})

	Reverts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentd_reverts_total",
		Help: "Execution reverts by decoded kind",
	}, []string{"chain_id", "revert"})

	GasUsed = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intentd_gas_used",
		Help:    "Gas used by confirmed transactions",
		Buckets: prometheus.ExponentialBuckets(21000, 2, 10), // Start at 21000 with 10 buckets doubling in size
	}, []string{"chain_id"})

	GasPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "intentd_gas_price_gwei",
		Help: "Last observed gas price in gwei",
	}, []string{"chain_id"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "intentd_active_sessions",
		Help: "Sessions currently waiting for the wallet",
	})

	BridgeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentd_bridge_events_total",
		Help: "Notification bridge events by direction and type",
	}, []string{"direction", "type"})

	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentd_circuit_breaker_trips_total",
		Help: "Times the submission circuit breaker opened",
	}, []string{"chain_id"})
)

package personaquiz

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const metricsJob = "personaquiz"

var (
	// Registry holds every metric of the quiz. It is pushed to a Pushgateway
	// at the end of a run because the CLI is too short-lived to be scraped.
	Registry = prometheus.NewRegistry()

	apiCalls = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "personaquiz_api_calls_total",
			Help: "Calls to the model endpoint, partitioned by response shape and outcome.",
		},
		[]string{"shape", "outcome"},
	)
	apiCallDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "personaquiz_api_call_duration_seconds",
			Help:    "Duration of calls to the model endpoint.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"shape"},
	)
	apiTokens = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "personaquiz_api_tokens_total",
			Help: "Tokens reported by the model endpoint.",
		},
		[]string{"kind"},
	)
	executorAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "personaquiz_executor_attempts_total",
			Help: "Attempts made by the resilient executor, by error kind (none on success).",
		},
		[]string{"label", "kind"},
	)
	executorFallbacks = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "personaquiz_executor_fallbacks_total",
			Help: "Calls that ended with the fallback value, by terminal error kind.",
		},
		[]string{"label", "kind"},
	)
	generationInFlight = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "personaquiz_generation_in_flight",
			Help: "Question generations currently dispatched and not settled.",
		},
	)
	itemsSettled = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "personaquiz_items_settled_total",
			Help: "Quiz items settled by the scheduler, by source (generated or template).",
		},
		[]string{"source"},
	)
)

// PushMetrics sends the registry to a Prometheus Pushgateway
func PushMetrics(url, instance string) error {
	pusher := push.New(url, metricsJob).Gatherer(Registry)
	if instance != "" {
		pusher = pusher.Grouping("instance", instance)
	}
	if err := pusher.Push(); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}

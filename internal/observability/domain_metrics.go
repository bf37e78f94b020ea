package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	pipelineStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_pipeline_stage_duration_seconds",
			Help:    "Latency of each pipeline stage (schema, synthesize, execute, summarize).",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage", "outcome"},
	)
	answersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_answers_total",
			Help: "Total number of questions answered, by outcome (ok, error, not_connected).",
		},
		[]string{"outcome"},
	)
	connectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_connects_total",
			Help: "Total number of database connect attempts, by driver and outcome.",
		},
		[]string{"driver", "outcome"},
	)
	modelRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_model_retries_total",
			Help: "Total number of retried language model calls.",
		},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "askdb_active_sessions",
			Help: "Current number of live chat sessions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineStageDurationSeconds,
		answersTotal,
		connectsTotal,
		modelRetriesTotal,
		activeSessions,
	)
}

func ObserveStage(stage string, err error, elapsed time.Duration) {
	pipelineStageDurationSeconds.WithLabelValues(stage, outcomeOf(err)).Observe(elapsed.Seconds())
}

func IncrementAnswers(outcome string) {
	answersTotal.WithLabelValues(outcome).Inc()
}

func ObserveConnect(driver string, err error) {
	connectsTotal.WithLabelValues(driver, outcomeOf(err)).Inc()
}

func IncrementModelRetries() {
	modelRetriesTotal.Inc()
}

func SetActiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	activeSessions.Set(float64(count))
}

func outcomeOf(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

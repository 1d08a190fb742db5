// Package metrics records provider-call metrics for the usage ledger and
// exposes them via Prometheus, matching the counters the admin usage rollup
// (internal/metrics) reads from.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records the outcome of a single provider call.
type Recorder interface {
	ObserveRequest(model, userID, taskType string, promptTokens, completionTokens int, credits float64, success bool, errorType string, duration time.Duration)
	IncThrottle(model, reason string)
}

// PrometheusRecorder implements Recorder using Prometheus counters and
// histograms, labeled the way the admin usage endpoint queries them.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	creditsTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	throttleTotal   *prometheus.CounterVec
}

// NewPrometheusRecorder registers and returns a Prometheus-backed recorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of provider requests by model, user, task type, and status",
			},
			[]string{"model", "user_id", "task_type", "status", "error_type"},
		),
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens used in provider requests",
			},
			[]string{"model", "user_id", "task_type", "type"},
		),
		creditsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_credits_total",
				Help: "Total credits consumed by provider requests",
			},
			[]string{"model", "user_id", "task_type"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of provider requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "task_type"},
		),
		throttleTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_throttle_total",
				Help: "Total number of rate-limit throttling events",
			},
			[]string{"model", "reason"},
		),
	}
}

// ObserveRequest implements Recorder.
func (p *PrometheusRecorder) ObserveRequest(model, userID, taskType string, promptTokens, completionTokens int, credits float64, success bool, errorType string, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}

	p.requestsTotal.WithLabelValues(model, userID, taskType, status, errorType).Inc()

	if success {
		p.tokensTotal.WithLabelValues(model, userID, taskType, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, userID, taskType, "completion").Add(float64(completionTokens))
		p.creditsTotal.WithLabelValues(model, userID, taskType).Add(credits)
	}

	p.requestDuration.WithLabelValues(model, taskType).Observe(duration.Seconds())
}

// IncThrottle implements Recorder.
func (p *PrometheusRecorder) IncThrottle(model, reason string) {
	p.throttleTotal.WithLabelValues(model, reason).Inc()
}

// nopRecorder discards everything, used when metrics are disabled.
type nopRecorder struct{}

// Nop returns a Recorder that records nothing.
func Nop() Recorder {
	return nopRecorder{}
}

func (nopRecorder) ObserveRequest(string, string, string, int, int, float64, bool, string, time.Duration) {
}
func (nopRecorder) IncThrottle(string, string) {}

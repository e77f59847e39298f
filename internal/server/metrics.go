package server

import (
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/DragonSecurity/podrelay/internal/relay"
)

var (
	metricAttempts = prom.NewCounterVec(prom.CounterOpts{
		Name: "podrelay_attempts_total",
		Help: "Outbound attempts by candidate, method variant and outcome.",
	}, []string{"endpoint", "method", "outcome"})
	metricAttemptDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Name:    "podrelay_attempt_seconds",
		Help:    "Duration of outbound attempts.",
		Buckets: prom.DefBuckets,
	}, []string{"endpoint", "outcome"})
	metricResults = prom.NewCounterVec(prom.CounterOpts{
		Name: "podrelay_results_total",
		Help: "Relay invocations by final status.",
	}, []string{"status"})
	metricWSSessions = prom.NewGauge(prom.GaugeOpts{
		Name: "podrelay_ws_sessions",
		Help: "Number of open websocket sessions.",
	})
)

func init() {
	prom.MustRegister(metricAttempts, metricAttemptDuration, metricResults, metricWSSessions)
}

// Metrics feeds relay events into the Prometheus collectors above.
type Metrics struct{}

func (Metrics) ObserveAttempt(a relay.Attempt) {
	outcome := a.Kind.String()
	metricAttempts.WithLabelValues(a.Endpoint, a.Method, outcome).Inc()
	metricAttemptDuration.WithLabelValues(a.Endpoint, outcome).Observe(a.Duration.Seconds())
}

func (Metrics) ObserveResult(res *relay.Result) {
	metricResults.WithLabelValues(res.Status.String()).Inc()
}

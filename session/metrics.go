package session

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeStale   = "stale"
)

// Metrics counts session lifecycle events.
type Metrics struct {
	Renewals     *prometheus.CounterVec
	Terminations *prometheus.CounterVec
	Retries      prometheus.Counter
	Live         prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vault",
			Subsystem: "session",
			Name:      "renewals_total",
			Help:      "Token renewals by outcome.",
		}, []string{"outcome"}),
		Terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vault",
			Subsystem: "session",
			Name:      "terminations_total",
			Help:      "Sessions ended by reason.",
		}, []string{"reason"}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vault",
			Subsystem: "session",
			Name:      "retried_requests_total",
			Help:      "Requests reissued after a successful renewal.",
		}),
		Live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vault",
			Subsystem: "session",
			Name:      "live",
			Help:      "1 while a session is live.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Renewals, m.Terminations, m.Retries, m.Live)
	}
	return m
}

// internal/service/auth/metrics.go
package auth

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Logins       *prometheus.CounterVec
	Refreshes    *prometheus.CounterVec
	RefreshReuse prometheus.Counter
	Revocations  *prometheus.CounterVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_logins_total",
				Help: "Login attempts by method and outcome.",
			},
			[]string{"method", "outcome"},
		),
		Refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_refresh_total",
				Help: "Refresh attempts by outcome.",
			},
			[]string{"outcome"},
		),
		RefreshReuse: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "auth_refresh_reuse_total",
				Help: "Rotated-away refresh secrets presented again.",
			},
		),
		Revocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_revocations_total",
				Help: "Revoked sessions by scope.",
			},
			[]string{"scope"},
		),
	}

	registry.MustRegister(m.Logins, m.Refreshes, m.RefreshReuse, m.Revocations)
	return m
}

func (m *Metrics) login(method, outcome string) {
	if m != nil {
		m.Logins.WithLabelValues(method, outcome).Inc()
	}
}

func (m *Metrics) refresh(outcome string) {
	if m != nil {
		m.Refreshes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) reuse() {
	if m != nil {
		m.RefreshReuse.Inc()
	}
}

func (m *Metrics) revoked(scope string, n int64) {
	if m != nil {
		m.Revocations.WithLabelValues(scope).Add(float64(n))
	}
}

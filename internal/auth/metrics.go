package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts token lookups, saves, validity checks and browser logins.
type Metrics struct {
	lookups *prometheus.CounterVec
	saves   *prometheus.CounterVec
	checks  *prometheus.CounterVec
	logins  *prometheus.CounterVec
}

// NewMetrics registers the token metrics with reg. A nil reg uses a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reyrey_auth",
			Name:      "token_lookups_total",
			Help:      "Token reads per store and outcome (hit, miss, invalid, error, unavailable).",
		}, []string{"store", "outcome"}),
		saves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reyrey_auth",
			Name:      "token_saves_total",
			Help:      "Token writes per store and outcome (ok, error, unavailable).",
		}, []string{"store", "outcome"}),
		checks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reyrey_auth",
			Name:      "token_checks_total",
			Help:      "Remote token validity checks by result.",
		}, []string{"result"}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reyrey_auth",
			Name:      "browser_logins_total",
			Help:      "Browser logins by outcome (ok, error, timeout).",
		}, []string{"outcome"}),
	}
}

// ObserveCheck records a validity check result. Suitable as a tokencheck observer.
func (m *Metrics) ObserveCheck(result string) {
	m.checks.WithLabelValues(result).Inc()
}

func (m *Metrics) lookup(store, outcome string) {
	m.lookups.WithLabelValues(store, outcome).Inc()
}

func (m *Metrics) save(store, outcome string) {
	m.saves.WithLabelValues(store, outcome).Inc()
}

func (m *Metrics) login(outcome string) {
	m.logins.WithLabelValues(outcome).Inc()
}

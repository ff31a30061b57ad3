// Package metrics defines the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the collectors.
const (
	OutcomeOK        = "ok"
	OutcomeForbidden = "forbidden"
	OutcomeConflict  = "conflict"
	OutcomeError     = "error"

	DecisionGranted    = "granted"
	DecisionFailClosed = "fail_closed"
	DecisionExpired    = "expired"
)

// Metrics groups the collectors used by the services.
type Metrics struct {
	Logins         *prometheus.CounterVec
	Authorizations *prometheus.CounterVec
	UserOperations *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg returns unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "userapi",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		Authorizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "userapi",
			Name:      "authorizations_total",
			Help:      "Per-request authorization decisions.",
		}, []string{"decision"}),
		UserOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "userapi",
			Name:      "user_operations_total",
			Help:      "User CRUD operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Logins, m.Authorizations, m.UserOperations)
	}
	return m
}

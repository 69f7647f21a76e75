package waitlist

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeAdmitted          = "admitted"
	outcomeAlreadyRegistered = "already_registered"
	outcomeRejected          = "rejected"
	outcomeFailed            = "failed"
)

// Metrics are the admission counters. A nil *Metrics records nothing.
type Metrics struct {
	admissions    *prometheus.CounterVec
	collisions    prometheus.Counter
	attributions  prometheus.Counter
	notifications *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waitlist_admissions_total",
			Help: "Signup attempts by outcome.",
		}, []string{"outcome"}),
		collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waitlist_code_collisions_total",
			Help: "Referral codes that collided with an issued code and were redrawn.",
		}),
		attributions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waitlist_referral_attributions_total",
			Help: "Signups credited to a referrer.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waitlist_notifications_total",
			Help: "Mailing list notifications by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		m.admissions = register(reg, m.admissions)
		m.collisions = register(reg, m.collisions)
		m.attributions = register(reg, m.attributions)
		m.notifications = register(reg, m.notifications)
	}

	return m
}

// register returns the already registered collector when the same metric is
// registered twice on reg.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) admission(outcome string) {
	if m != nil {
		m.admissions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) collision() {
	if m != nil {
		m.collisions.Inc()
	}
}

func (m *Metrics) attribution() {
	if m != nil {
		m.attributions.Inc()
	}
}

func (m *Metrics) notification(result string) {
	if m != nil {
		m.notifications.WithLabelValues(result).Inc()
	}
}

// Package metrics exposes Prometheus counters for check-in, ledger and waitlist activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	checkIns              *prometheus.CounterVec
	creditsAwarded        prometheus.Counter
	waitlistNotifications *prometheus.CounterVec
	waitlistExpired       prometheus.Counter
	emailsProcessed       *prometheus.CounterVec
	ordersProcessed       *prometheus.CounterVec
}

// New registers the service counters with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		checkIns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "seminar_checkins_total",
			Help: "check-in attempts by method and result code",
		}, []string{"method", "result"}),
		creditsAwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "seminar_credits_awarded_total",
			Help: "CE credits awarded by check-in",
		}),
		waitlistNotifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "seminar_waitlist_notifications_total",
			Help: "waitlist notification attempts by result",
		}, []string{"result"}),
		waitlistExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "seminar_waitlist_expired_total",
			Help: "notified waitlist entries whose hold window lapsed",
		}),
		emailsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "seminar_emails_processed_total",
			Help: "email jobs handled by the worker by result",
		}, []string{"result"}),
		ordersProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "seminar_orders_processed_total",
			Help: "order webhooks by outcome",
		}, []string{"outcome"}),
	}
}

// CheckIn counts one check-in attempt. result is "ok" or an error code.
func (m *Metrics) CheckIn(method, result string) {
	if m == nil {
		return
	}
	m.checkIns.WithLabelValues(method, result).Inc()
}

// CreditsAwarded adds n awarded credits.
func (m *Metrics) CreditsAwarded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.creditsAwarded.Add(float64(n))
}

// WaitlistNotification counts one notification attempt ("sent" or "failed").
func (m *Metrics) WaitlistNotification(result string) {
	if m == nil {
		return
	}
	m.waitlistNotifications.WithLabelValues(result).Inc()
}

// WaitlistExpired adds n expired entries.
func (m *Metrics) WaitlistExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.waitlistExpired.Add(float64(n))
}

// EmailProcessed counts one email job outcome ("sent", "retry" or "dead").
func (m *Metrics) EmailProcessed(result string) {
	if m == nil {
		return
	}
	m.emailsProcessed.WithLabelValues(result).Inc()
}

// OrderProcessed counts one order webhook outcome.
func (m *Metrics) OrderProcessed(outcome string) {
	if m == nil {
		return
	}
	m.ordersProcessed.WithLabelValues(outcome).Inc()
}

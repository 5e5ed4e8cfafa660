package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDropped = "dropped"
)

// Metrics holds the credential lifecycle counters.
// All methods are safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	codesIssued    *prometheus.CounterVec
	codesThrottled *prometheus.CounterVec
	codesVerified  *prometheus.CounterVec
	logins         *prometheus.CounterVec
	passwordResets prometheus.Counter
	emailDelivery  *prometheus.CounterVec
	emailDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
// Panics if registration fails (following prometheus convention).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		codesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatty_auth_codes_issued_total",
			Help: "Total number of one-time codes issued",
		}, []string{"purpose"}),
		codesThrottled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatty_auth_codes_throttled_total",
			Help: "Total number of code requests rejected by the cooldown",
		}, []string{"purpose"}),
		codesVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatty_auth_code_verifications_total",
			Help: "Total number of code verification attempts",
		}, []string{"purpose", "result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatty_auth_logins_total",
			Help: "Total number of login attempts",
		}, []string{"result"}),
		passwordResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatty_auth_password_resets_total",
			Help: "Total number of completed password resets",
		}),
		emailDelivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatty_auth_email_deliveries_total",
			Help: "Total number of code email delivery outcomes",
		}, []string{"kind", "result"}),
		emailDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatty_auth_email_delivery_duration_seconds",
			Help:    "Code email delivery duration in seconds, retries included",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.codesIssued,
		m.codesThrottled,
		m.codesVerified,
		m.logins,
		m.passwordResets,
		m.emailDelivery,
		m.emailDuration,
	)

	return m
}

func (m *Metrics) CodeIssued(purpose string) {
	if m == nil {
		return
	}
	m.codesIssued.WithLabelValues(purpose).Inc()
}

func (m *Metrics) CodeThrottled(purpose string) {
	if m == nil {
		return
	}
	m.codesThrottled.WithLabelValues(purpose).Inc()
}

// CodeVerified records a verification attempt. result is "success" or an error kind.
func (m *Metrics) CodeVerified(purpose, result string) {
	if m == nil {
		return
	}
	m.codesVerified.WithLabelValues(purpose, result).Inc()
}

func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) PasswordReset() {
	if m == nil {
		return
	}
	m.passwordResets.Inc()
}

// EmailDelivery records the outcome of one queued email
func (m *Metrics) EmailDelivery(kind, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.emailDelivery.WithLabelValues(kind, result).Inc()
	if result != ResultDropped {
		m.emailDuration.WithLabelValues(kind).Observe(took.Seconds())
	}
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CodeIssued("verify_email")
	m.CodeIssued("verify_email")
	m.CodeThrottled("password_reset")
	m.CodeVerified("verify_email", "mismatch")
	m.Login(ResultSuccess)
	m.PasswordReset()
	m.EmailDelivery("verify_email", ResultFailure, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.codesIssued.WithLabelValues("verify_email")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.codesThrottled.WithLabelValues("password_reset")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.codesVerified.WithLabelValues("verify_email", "mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passwordResets))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emailDelivery.WithLabelValues("verify_email", ResultFailure)))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.CodeIssued("verify_email")
		m.CodeThrottled("verify_email")
		m.CodeVerified("verify_email", "success")
		m.Login(ResultFailure)
		m.PasswordReset()
		m.EmailDelivery("verify_email", ResultSuccess, time.Millisecond)
	})
}

func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}

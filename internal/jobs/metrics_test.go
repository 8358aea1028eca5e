package jobmetrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}

func TestTrackerRecordsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	assert.NoError(t, m.Track("sessions:purge").End(nil))
	err := m.Track("sessions:purge").End(errors.New("boom"))
	assert.EqualError(t, err, "boom")

	body := scrape(t, reg)
	assert.Contains(t, body, `odyssey_accounts_jobs_total{job="sessions:purge",status="success"} 1`)
	assert.Contains(t, body, `odyssey_accounts_jobs_total{job="sessions:purge",status="failure"} 1`)
	assert.Contains(t, body, `odyssey_accounts_jobs_failures_total{job="sessions:purge"} 1`)
	assert.Contains(t, body, `odyssey_accounts_job_duration_seconds_count{job="sessions:purge"} 2`)
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.AddPurgedSessions(3)
	m.AddPurgedSessions(0)
	m.MailHandled("password_reset")
	m.MailHandled("")

	body := scrape(t, reg)
	assert.Contains(t, body, "odyssey_accounts_sessions_purged_total 3")
	assert.Contains(t, body, `odyssey_accounts_mails_total{kind="password_reset"} 1`)
	assert.Contains(t, body, `odyssey_accounts_mails_total{kind="generic"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AddPurgedSessions(1)
		m.MailHandled("x")
		_ = m.Track("job").End(nil)
	})
}

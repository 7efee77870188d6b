package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveSubmission("repair", "rejected", "ALREADY_VERIFIED_BY_DEVICE")
	m.ObserveSubmission("repair", "rejected", "ALREADY_VERIFIED_BY_DEVICE")
	m.ObserveSubmission("hazard", "admitted", "")
	m.ObserveOracle("triage", "ok", 1200*time.Millisecond)
	m.SetHazardCount("active", 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submissions.WithLabelValues("repair", "rejected", "ALREADY_VERIFIED_BY_DEVICE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("hazard", "admitted", "none")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.hazards.WithLabelValues("active")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.oracle))
}

func TestHandlerExposes(t *testing.T) {
	m := New()
	m.ObserveSubmission("hazard", "soft_rejected", "LOW_RISK_SOFT_REJECT")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `gptr_submissions_total{kind="hazard",outcome="soft_rejected",reason="LOW_RISK_SOFT_REJECT"} 1`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSubmission("hazard", "admitted", "")
	m.ObserveOracle("triage", "ok", time.Second)
	m.SetHazardCount("active", 1)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.RecordsSent.WithLabelValues("0").Inc()
	m.RecordsSent.WithLabelValues("0").Inc()
	m.SendErrors.WithLabelValues("1").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `streamtest_records_sent_total{worker="0"} 2`)
	assert.Contains(t, body, `streamtest_send_errors_total{worker="1"} 1`)
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.RecordsSent.WithLabelValues("0").Inc()

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.NotContains(t, rec.Body.String(), `worker="0"} 1`)
}

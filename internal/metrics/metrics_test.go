package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"PcapLedger/internal/core/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestCounters(t *testing.T) {
	m := New()

	m.Classified([]model.Record{
		{Protocol: model.ProtocolTCP}, {Protocol: model.ProtocolTCP}, {Protocol: model.ProtocolOther},
	})
	m.Extraction(2, 5)
	m.Saved(100, false)
	m.Saved(40, true)
	m.Exported(3)
	m.APIRequest("/api/v1/records", http.StatusBadRequest)

	body := scrape(t, m)
	for _, line := range []string{
		`pcapledger_records_classified_total{protocol="TCP"} 2`,
		`pcapledger_records_classified_total{protocol="Other"} 1`,
		`pcapledger_extraction_failures_total 2`,
		`pcapledger_frames_truncated_total 5`,
		`pcapledger_records_saved_total 140`,
		`pcapledger_batch_failures_total 1`,
		`pcapledger_records_exported_total 3`,
		`pcapledger_api_requests_total{code="400",route="/api/v1/records"} 1`,
	} {
		assert.Contains(t, body, line)
	}
	assert.Contains(t, body, "go_goroutines")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Classified([]model.Record{{Protocol: model.ProtocolUDP}})
		m.Extraction(1, 1)
		m.Saved(1, true)
		m.Exported(1)
		m.AlertsTriggered(1)
		m.ProbeReceived()
		m.APIRequest("/", 200)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

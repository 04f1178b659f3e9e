package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"PcapLedger/internal/core/model"
	"PcapLedger/internal/engine/filter"
	"PcapLedger/internal/metrics"
	"PcapLedger/internal/query"
	"PcapLedger/internal/storage/boltstore"
	"PcapLedger/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, m *metrics.Metrics) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	store, err := boltstore.New(filepath.Join(t.TempDir(), "api.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.CreateSchema(ctx))
	require.NoError(t, store.InsertBatch(ctx, storagetest.Records()))

	srv := httptest.NewServer(NewRouter(query.NewStoreQuerier(store), m))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestRecordsEndpoint(t *testing.T) {
	srv := newServer(t, nil)

	code, body := get(t, srv.URL+"/api/v1/records?protocol=TCP")
	require.Equal(t, http.StatusOK, code)

	var resp RecordsResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, model.TCPMetadata{Flags: "PA", Seq: 1000, Ack: 2000, Window: 14600}, resp.Records[0].Metadata)
	require.NotNil(t, resp.FiltersApplied)
	assert.Equal(t, model.ProtocolTCP, resp.FiltersApplied.Protocol)
}

func TestRecordsEndpoint_NoFilter(t *testing.T) {
	srv := newServer(t, nil)

	code, body := get(t, srv.URL+"/api/v1/records")
	require.Equal(t, http.StatusOK, code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Nil(t, doc["filters_applied"])
	assert.Equal(t, float64(5), doc["total"])
}

func TestRecordsEndpoint_EmptyResultIsAList(t *testing.T) {
	srv := newServer(t, nil)

	code, body := get(t, srv.URL+"/api/v1/records?min_size=5000")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"records":[]`)
}

func TestStatisticsEndpoint(t *testing.T) {
	srv := newServer(t, nil)

	code, body := get(t, srv.URL+"/api/v1/statistics?ip=8.8.8.8")
	require.Equal(t, http.StatusOK, code)

	var resp StatisticsResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, 2, resp.Statistics.TotalPackets)
	assert.Equal(t, map[string]int{"UDP": 1, "ICMP": 1}, resp.Statistics.ProtocolDistribution)
	assert.Equal(t, "8.8.8.8", resp.FiltersApplied.Address)
}

func TestInvalidFilterIsBadRequest(t *testing.T) {
	srv := newServer(t, nil)

	for _, path := range []string{
		"/api/v1/records?port=http",
		"/api/v1/statistics?start_time=yesterday",
		"/api/v1/records?ip=999.1.1.1",
	} {
		code, body := get(t, srv.URL+path)
		assert.Equal(t, http.StatusBadRequest, code, path)
		assert.Contains(t, string(body), "invalid filter", path)
	}
}

type brokenQuerier struct{}

func (brokenQuerier) Records(context.Context, filter.RawSpec) (*query.RecordsResult, error) {
	return nil, errors.New("connection refused")
}

func (brokenQuerier) Summarize(context.Context, filter.RawSpec) (*query.SummaryResult, error) {
	return nil, errors.New("connection refused")
}

func TestStorageFailureIsServerError(t *testing.T) {
	srv := httptest.NewServer(NewRouter(brokenQuerier{}, nil))
	defer srv.Close()

	code, body := get(t, srv.URL+"/api/v1/records")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, string(body), "connection refused")
}

func TestHealthAndMetrics(t *testing.T) {
	m := metrics.New()
	srv := newServer(t, m)

	code, body := get(t, srv.URL+"/healthz")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	get(t, srv.URL+"/api/v1/records?port=bad")

	code, body = get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, code)
	text := string(body)
	assert.True(t, strings.Contains(text, `route="/healthz"`), text)
	assert.Contains(t, text, `code="400"`)
	assert.Contains(t, text, `route="/api/v1/records"`)
}

func TestRawSpecFromQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/records?protocol=UDP&ip=10.0.0.1&port=53&min_size=1&max_size=9&start_time=2024-01-01&end_time=2024-01-02", nil)

	assert.Equal(t, filter.RawSpec{
		Protocol: "UDP", Address: "10.0.0.1", Port: "53",
		MinSize: "1", MaxSize: "9",
		StartTime: "2024-01-01", EndTime: "2024-01-02",
	}, RawSpecFromQuery(req.URL.Query()))
}

func TestRecordsEndpoint_UnescapedTimeOffset(t *testing.T) {
	srv := newServer(t, nil)

	code, body := get(t, srv.URL+"/api/v1/records?start_time=2024-03-01T14:00:03+02:00")
	require.Equal(t, http.StatusOK, code, string(body))

	var resp RecordsResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, 2, resp.Total)
}

func TestRawSpecFromQuery_TimeParams(t *testing.T) {
	v, err := url.ParseQuery("start_time=2024-03-01T14:00:00+02:00&end_time=2024-03-01%2012:00:00")
	require.NoError(t, err)

	raw := RawSpecFromQuery(v)
	assert.Equal(t, "2024-03-01T14:00:00+02:00", raw.StartTime)
	assert.Equal(t, "2024-03-01 12:00:00", raw.EndTime)
}

// Package api serves stored records and statistics over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"PcapLedger/internal/core/model"
	"PcapLedger/internal/engine/filter"
	"PcapLedger/internal/metrics"
	"PcapLedger/internal/query"

	"github.com/gorilla/mux"
)

// RecordsResponse is the body of GET /api/v1/records.
type RecordsResponse struct {
	FiltersApplied *filter.Spec   `json:"filters_applied"`
	Total          int            `json:"total"`
	Records        []model.Record `json:"records"`
}

// StatisticsResponse is the body of GET /api/v1/statistics.
type StatisticsResponse struct {
	FiltersApplied *filter.Spec `json:"filters_applied"`
	Statistics     model.Report `json:"statistics"`
}

// Handler holds the dependencies of the HTTP routes.
type Handler struct {
	querier query.Querier
	metrics *metrics.Metrics
}

// NewRouter builds the API router. m may be nil, in which case /metrics is
// not served.
func NewRouter(q query.Querier, m *metrics.Metrics) *mux.Router {
	h := &Handler{querier: q, metrics: m}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/records", h.recordsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/statistics", h.statisticsHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	if m != nil {
		r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}
	r.Use(h.instrument)
	return r
}

// RawSpecFromQuery maps query parameters onto a filter. Time offsets sent
// without percent-encoding ("...T14:00:00+02:00") are accepted.
func RawSpecFromQuery(v url.Values) filter.RawSpec {
	return filter.RawSpec{
		Protocol:  v.Get("protocol"),
		Address:   v.Get("ip"),
		Port:      v.Get("port"),
		MinSize:   v.Get("min_size"),
		MaxSize:   v.Get("max_size"),
		StartTime: timeParam(v, "start_time"),
		EndTime:   timeParam(v, "end_time"),
	}
}

// timeParam restores the '+' of an RFC 3339 offset that query decoding
// turned into a space.
func timeParam(v url.Values, key string) string {
	s := v.Get(key)
	i := strings.LastIndexByte(s, ' ')
	if i > 0 && len(s)-i == 6 && s[i+3] == ':' && strings.Contains(s[:i], "T") {
		return s[:i] + "+" + s[i+1:]
	}
	return s
}

func (h *Handler) recordsHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.querier.Records(r.Context(), RawSpecFromQuery(r.URL.Query()))
	if err != nil {
		writeError(w, "failed to query records", err)
		return
	}
	writeJSON(w, RecordsResponse{
		FiltersApplied: specOrNil(res.Filter),
		Total:          len(res.Records),
		Records:        res.Records,
	})
}

func (h *Handler) statisticsHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.querier.Summarize(r.Context(), RawSpecFromQuery(r.URL.Query()))
	if err != nil {
		writeError(w, "failed to summarize records", err)
		return
	}
	writeJSON(w, StatisticsResponse{
		FiltersApplied: specOrNil(res.Filter),
		Statistics:     res.Report,
	})
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func specOrNil(spec filter.Spec) *filter.Spec {
	if spec.IsEmpty() {
		return nil
	}
	return &spec
}

func writeError(w http.ResponseWriter, msg string, err error) {
	var invalid *filter.InvalidSpecError
	if errors.As(err, &invalid) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	slog.Error(msg, "error", err)
	http.Error(w, fmt.Sprintf("%s: %v", msg, err), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		h.metrics.APIRequest(route, rec.code)
	})
}

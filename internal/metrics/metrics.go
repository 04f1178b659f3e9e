// Package metrics holds the Prometheus collectors of the ledger. All methods
// are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"strconv"

	"PcapLedger/internal/core/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pcapledger"

// Metrics is a dedicated registry plus the ledger's counters.
type Metrics struct {
	registry *prometheus.Registry

	classified    *prometheus.CounterVec
	failures      prometheus.Counter
	truncated     prometheus.Counter
	saved         prometheus.Counter
	batchFailures prometheus.Counter
	exported      prometheus.Counter
	alertsFired   prometheus.Counter
	probeReceived prometheus.Counter
	apiRequests   *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_classified_total",
			Help: "Frames classified into records, by protocol label.",
		}, []string{"protocol"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "extraction_failures_total",
			Help: "Frames that could not be classified.",
		}),
		truncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_truncated_total",
			Help: "Frames skipped because a file exceeded the per-file cap.",
		}),
		saved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_saved_total",
			Help: "Records committed to storage.",
		}),
		batchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "batch_failures_total",
			Help: "Storage batches that failed to commit.",
		}),
		exported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_exported_total",
			Help: "Records written to export documents.",
		}),
		alertsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_triggered_total",
			Help: "Alert rules that matched a statistics report.",
		}),
		probeReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "probe_records_received_total",
			Help: "Records received from the record stream.",
		}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "api_requests_total",
			Help: "Query API requests, by route and status code.",
		}, []string{"route", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.classified, m.failures, m.truncated, m.saved, m.batchFailures,
		m.exported, m.alertsFired, m.probeReceived, m.apiRequests,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Classified counts extracted records by label.
func (m *Metrics) Classified(records []model.Record) {
	if m == nil {
		return
	}
	for _, r := range records {
		m.classified.WithLabelValues(string(r.Protocol)).Inc()
	}
}

// Extraction counts failed and truncated frames.
func (m *Metrics) Extraction(failures, truncated int) {
	if m == nil {
		return
	}
	m.failures.Add(float64(failures))
	m.truncated.Add(float64(truncated))
}

// Saved counts committed records and, when failed is true, one failed batch.
func (m *Metrics) Saved(n int, failed bool) {
	if m == nil {
		return
	}
	m.saved.Add(float64(n))
	if failed {
		m.batchFailures.Inc()
	}
}

// Exported counts records written to an export document.
func (m *Metrics) Exported(n int) {
	if m == nil {
		return
	}
	m.exported.Add(float64(n))
}

// AlertsTriggered counts matched alert rules.
func (m *Metrics) AlertsTriggered(n int) {
	if m == nil {
		return
	}
	m.alertsFired.Add(float64(n))
}

// ProbeReceived counts one record taken off the stream.
func (m *Metrics) ProbeReceived() {
	if m == nil {
		return
	}
	m.probeReceived.Inc()
}

// APIRequest counts one served request.
func (m *Metrics) APIRequest(route string, code int) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

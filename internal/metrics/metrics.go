// Package metrics provides Prometheus collectors for index operations and embedding requests.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "vectra"

// Index records LocalIndex operations. It implements index.Observer.
type Index struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Items             *prometheus.GaugeVec
}

// NewIndex creates index collectors under namespace (DefaultNamespace when empty).
func NewIndex(namespace string) *Index {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Index{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_operations_total",
				Help:      "Total number of index operations",
			},
			[]string{"op", "status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "index_operation_duration_seconds",
				Help:      "Index operation duration in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"op"},
		),
		Items: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "index_items",
				Help:      "Number of committed items",
			},
			[]string{"folder"},
		),
	}
}

// Register registers the collectors with reg.
func (m *Index) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.OperationsTotal, m.OperationDuration, m.Items} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveOperation counts op and records its duration.
func (m *Index) ObserveOperation(op string, err error, elapsed time.Duration) {
	m.OperationsTotal.WithLabelValues(op, status(err)).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// SetItems sets the committed item count of the index in folder.
func (m *Index) SetItems(folder string, n int) {
	m.Items.WithLabelValues(folder).Set(float64(n))
}

// Embedding records embedding provider requests.
type Embedding struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InputsTotal     *prometheus.CounterVec
	CacheTotal      *prometheus.CounterVec
}

// NewEmbedding creates embedding collectors under namespace (DefaultNamespace when empty).
func NewEmbedding(namespace string) *Embedding {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Embedding{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_requests_total",
				Help:      "Total number of embedding requests",
			},
			[]string{"provider", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "embedding_request_duration_seconds",
				Help:      "Embedding request duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"provider"},
		),
		InputsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_inputs_total",
				Help:      "Total number of texts sent for embedding",
			},
			[]string{"provider"},
		),
		CacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_cache_total",
				Help:      "Embedding cache hits and misses",
			},
			[]string{"result"}, // "hit" / "miss"
		),
	}
}

// Register registers the collectors with reg.
func (m *Embedding) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.RequestsTotal, m.RequestDuration, m.InputsTotal, m.CacheTotal} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveRequest records one provider call. responseStatus is the embedding response status
// ("success", "error", "rate_limited") or "failed" when the call returned an error.
func (m *Embedding) ObserveRequest(provider, responseStatus string, inputs int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(provider, responseStatus).Inc()
	m.RequestDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	m.InputsTotal.WithLabelValues(provider).Add(float64(inputs))
}

// ObserveCache counts cache hits and misses.
func (m *Embedding) ObserveCache(hits, misses int) {
	if hits > 0 {
		m.CacheTotal.WithLabelValues("hit").Add(float64(hits))
	}
	if misses > 0 {
		m.CacheTotal.WithLabelValues("miss").Add(float64(misses))
	}
}

// WriteText writes everything gathered by g in the Prometheus text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

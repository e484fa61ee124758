package bill

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/bill-reconciler/internal/reconcile"
)

// Metrics records bill processing outcomes in a private Prometheus registry
type Metrics struct {
	registry *prometheus.Registry

	billsTotal      *prometheus.CounterVec
	issuesTotal     *prometheus.CounterVec
	pagesTotal      *prometheus.CounterVec
	processDuration prometheus.Histogram
}

// NewMetrics registers the bill collectors on a fresh registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	billsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bill_reconciler",
			Subsystem: "bills",
			Name:      "processed_total",
			Help:      "Total bills processed by outcome.",
		},
		[]string{"outcome"},
	)
	issuesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bill_reconciler",
			Subsystem: "bills",
			Name:      "issues_total",
			Help:      "Validation issues recorded by kind.",
		},
		[]string{"kind"},
	)
	pagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bill_reconciler",
			Subsystem: "pages",
			Name:      "scanned_total",
			Help:      "Pages scanned by result.",
		},
		[]string{"result"},
	)
	processDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bill_reconciler",
			Subsystem: "bills",
			Name:      "process_duration_seconds",
			Help:      "Time spent scanning and reconciling a bill.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
	)

	registry.MustRegister(billsTotal, issuesTotal, pagesTotal, processDuration)

	return &Metrics{
		registry:        registry,
		billsTotal:      billsTotal,
		issuesTotal:     issuesTotal,
		pagesTotal:      pagesTotal,
		processDuration: processDuration,
	}
}

// ObservePages counts scanned pages as ok or failed
func (m *Metrics) ObservePages(total, failed int) {
	if m == nil {
		return
	}
	m.pagesTotal.WithLabelValues("ok").Add(float64(total - failed))
	m.pagesTotal.WithLabelValues("failed").Add(float64(failed))
}

// ObserveBill records the outcome of one ProcessBill call
func (m *Metrics) ObserveBill(b *reconcile.Bill, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.processDuration.Observe(elapsed.Seconds())

	var issues []reconcile.ValidationIssue
	var empty *reconcile.EmptyDocumentError
	switch {
	case err == nil:
		m.billsTotal.WithLabelValues("reconciled").Inc()
		issues = b.Issues
	case errors.As(err, &empty):
		m.billsTotal.WithLabelValues("empty").Inc()
		issues = empty.Issues
	default:
		m.billsTotal.WithLabelValues("error").Inc()
	}

	for _, issue := range issues {
		m.issuesTotal.WithLabelValues(string(issue.Kind)).Inc()
	}
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

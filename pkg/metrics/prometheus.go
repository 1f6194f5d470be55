package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"
	"trade_desk/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

type MetricsCollector struct {
	registry          *prometheus.Registry
	actions           *prometheus.CounterVec
	actionDuration    *prometheus.HistogramVec
	storeWrites       *prometheus.CounterVec
	storeWriteLatency *prometheus.HistogramVec
	fallbacks         *prometheus.CounterVec
	salesRecorded     prometheus.Counter
	purchasesRecorded prometheus.Counter
	eventsDropped     *prometheus.CounterVec
	logger            *slog.Logger
}

var _ repository.StoreObserver = (*MetricsCollector)(nil)

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &MetricsCollector{
		registry: registry,
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_actions_total",
			Help: "Inbound actions by outcome",
		}, []string{"action", "outcome"}),
		actionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradedesk_action_duration_seconds",
			Help:    "Time taken to handle an inbound action",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		storeWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_document_writes_total",
			Help: "Ledger document writes by collection and outcome",
		}, []string{"collection", "outcome"}),
		storeWriteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_document_write_duration_seconds",
			Help:    "Time taken to durably write a ledger document",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, 1},
		}, []string{"collection"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_document_fallbacks_total",
			Help: "Unreadable ledger documents replaced by their default shape",
		}, []string{"collection"}),
		salesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "tradedesk_sales_recorded_total",
			Help: "Sale entries appended to the statistics ledger",
		}),
		purchasesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "tradedesk_purchases_recorded_total",
			Help: "Purchase entries appended to the statistics ledger",
		}),
		eventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_events_dropped_total",
			Help: "Outbound events dropped because the queue was full",
		}, []string{"type"}),
		logger: logger,
	}
}

// RecordAction counts an inbound action. outcome is one of the Outcome constants.
func (m *MetricsCollector) RecordAction(action, outcome string, duration time.Duration) {
	m.actions.WithLabelValues(action, outcome).Inc()
	m.actionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

func (m *MetricsCollector) ObserveFallback(c repository.Collection, reason error) {
	m.fallbacks.WithLabelValues(string(c)).Inc()
}

func (m *MetricsCollector) ObserveWrite(c repository.Collection, d time.Duration, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.storeWrites.WithLabelValues(string(c), outcome).Inc()
	m.storeWriteLatency.WithLabelValues(string(c)).Observe(d.Seconds())
}

func (m *MetricsCollector) SaleRecorded() {
	m.salesRecorded.Inc()
}

func (m *MetricsCollector) PurchaseRecorded() {
	m.purchasesRecorded.Inc()
}

func (m *MetricsCollector) EventDropped(eventType string) {
	m.eventsDropped.WithLabelValues(eventType).Inc()
}

func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		m.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	m.logger.Info("Metrics collector shutdown complete")
	return nil
}

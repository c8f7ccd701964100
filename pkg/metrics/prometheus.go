package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	tradesProcessed *prometheus.CounterVec
	detections      *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	dispatches      *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		tradesProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionsflow_trades_processed_total",
				Help: "Total number of options trades accepted by the engine",
			},
			[]string{"underlying"},
		),
		detections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionsflow_detections_total",
				Help: "Detector and analyzer hits by kind",
			},
			[]string{"kind"},
		),
		alerts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionsflow_alerts_total",
				Help: "Alerts created by type and severity",
			},
			[]string{"type", "severity"},
		),
		dispatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionsflow_dispatch_total",
				Help: "Alert delivery attempts by channel and outcome",
			},
			[]string{"channel", "success"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionsflow_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "optionsflow_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordTradeProcessed(underlying string) {
	r.tradesProcessed.WithLabelValues(underlying).Inc()
}

func (r *Recorder) RecordDetection(kind string) {
	r.detections.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordAlert(alertType, severity string) {
	r.alerts.WithLabelValues(alertType, severity).Inc()
}

func (r *Recorder) RecordDispatch(channel string, success bool) {
	r.dispatches.WithLabelValues(channel, strconv.FormatBool(success)).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordTradeProcessed(string) {}
func (Nop) RecordDetection(string) {}
func (Nop) RecordAlert(string, string) {}
func (Nop) RecordDispatch(string, bool) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLatency(string, float64) {}

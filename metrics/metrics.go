// Package metrics - Prometheus metrics for the prediction pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeMissingPayload = "missing_payload"
	OutcomeDecodeError    = "decode_error"
	OutcomeInferenceError = "inference_error"
	OutcomeEncodeError    = "encode_error"
	OutcomeCancelled      = "cancelled"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Requests      *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Detections    prometheus.Histogram
	TopClass      *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the collectors and registers them on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predict_requests_total",
				Help: "Total number of prediction requests partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "predict_stage_duration_seconds",
				Help:    "Time taken by each pipeline stage.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
			},
			[]string{"stage"},
		),
		Detections: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "predict_detections",
				Help:    "Number of detections per successful prediction.",
				Buckets: []float64{0, 1, 2, 3, 5, 10, 20, 50},
			},
		),
		TopClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predict_top_class_total",
				Help: "Successful predictions partitioned by top class.",
			},
			[]string{"class"},
		),
		registry: registry,
	}

	for _, c := range []prometheus.Collector{m.Requests, m.StageDuration, m.Detections, m.TopClass} {
		if err := registry.Register(c); err != nil {
			return nil, errors.Wrap(err, "failed to register metrics")
		}
	}
	return m, nil
}

// ObserveRequest counts a finished request.
func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveResult records the size and top class of a successful prediction.
func (m *Metrics) ObserveResult(detections int, top *string) {
	if m == nil {
		return
	}
	m.Detections.Observe(float64(detections))
	class := "none"
	if top != nil {
		class = *top
	}
	m.TopClass.WithLabelValues(class).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Package metrics provides Prometheus metrics collection for the cipher scan service.
// It defines the prediction, inference and cache metrics exposed on the
// /metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Request level
	Predictions        *prometheus.CounterVec // Predictions served, by input mode
	PredictionFailures *prometheus.CounterVec // Rejected or failed predictions, by reason
	PredictionScores   prometheus.Histogram   // Distribution of top-label confidence
	InputBytes         prometheus.Histogram   // Size of accepted inputs

	// Inference level
	Inferences        prometheus.Counter   // Successful classifier calls
	InferenceFailures prometheus.Counter   // Classifier calls that errored or returned bad output
	InferenceLatency  prometheus.Histogram // Classifier call latency in seconds
	ModelLoaded       prometheus.Gauge     // 1 when the model and vocabulary loaded

	// Cache
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of predictions served",
		}, []string{"mode"}),
		PredictionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of rejected or failed predictions",
		}, []string{"reason"}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_confidence",
			Help:    "Distribution of top-label confidence scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		InputBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_input_bytes",
			Help:    "Size in bytes of accepted prediction inputs",
			Buckets: prometheus.ExponentialBuckets(16, 4, 10),
		}),
		Inferences: factory.NewCounter(prometheus.CounterOpts{
			Name: "inferences_total",
			Help: "Total number of successful classifier calls",
		}),
		InferenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "inference_failures_total",
			Help: "Total number of failed classifier calls",
		}),
		InferenceLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "inference_latency_seconds",
			Help:    "Classifier call latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		ModelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_loaded",
			Help: "1 when the classifier and label vocabulary loaded, 0 otherwise",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_cache_hits_total",
			Help: "Total number of predictions answered from cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_cache_misses_total",
			Help: "Total number of predictions computed",
		}),
	}
}

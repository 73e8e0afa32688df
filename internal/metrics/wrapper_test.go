package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_InferenceCounters(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	if v := testutil.ToFloat64(metrics.Inferences); v != 0 {
		t.Errorf("Expected initial counter value 0, got %f", v)
	}

	wrapper.InferenceInc()
	wrapper.InferenceInc()
	wrapper.InferenceFailuresInc()

	if v := testutil.ToFloat64(metrics.Inferences); v != 2 {
		t.Errorf("Expected 2 inferences, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.InferenceFailures); v != 1 {
		t.Errorf("Expected 1 inference failure, got %f", v)
	}
}

func TestMetricsWrapper_ModelLoaded(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.ModelLoadedSet(true)
	if v := testutil.ToFloat64(metrics.ModelLoaded); v != 1 {
		t.Errorf("Expected model_loaded 1, got %f", v)
	}

	wrapper.ModelLoadedSet(false)
	if v := testutil.ToFloat64(metrics.ModelLoaded); v != 0 {
		t.Errorf("Expected model_loaded 0, got %f", v)
	}
}

func TestMetricsWrapper_LabelledCounters(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.PredictionInc("text")
	wrapper.PredictionInc("text")
	wrapper.PredictionInc("file")
	wrapper.PredictionFailureInc("empty_input")

	if v := testutil.ToFloat64(metrics.Predictions.WithLabelValues("text")); v != 2 {
		t.Errorf("Expected 2 text predictions, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.Predictions.WithLabelValues("file")); v != 1 {
		t.Errorf("Expected 1 file prediction, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.PredictionFailures.WithLabelValues("empty_input")); v != 1 {
		t.Errorf("Expected 1 empty_input failure, got %f", v)
	}
}

func TestMetricsWrapper_CacheAndHistograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	wrapper.CacheHitInc()
	wrapper.CacheMissInc()
	wrapper.CacheMissInc()
	wrapper.ConfidenceObserve(0.93)
	wrapper.InputBytesObserve(128)
	wrapper.InferenceLatencyObserve(0.002)

	if v := testutil.ToFloat64(metrics.CacheHits); v != 1 {
		t.Errorf("Expected 1 cache hit, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.CacheMisses); v != 2 {
		t.Errorf("Expected 2 cache misses, got %f", v)
	}

	for _, name := range []string{"prediction_confidence", "prediction_input_bytes", "inference_latency_seconds"} {
		if n, err := testutil.GatherAndCount(registry, name); err != nil || n != 1 {
			t.Errorf("Expected histogram %s to be collected once, got %d (%v)", name, n, err)
		}
	}
}

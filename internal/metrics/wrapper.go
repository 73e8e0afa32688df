package metrics

// MetricsWrapper adapts Metrics to the small interfaces the ml and scan
// packages depend on, so neither imports Prometheus.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) InferenceInc() {
	w.m.Inferences.Inc()
}

func (w *MetricsWrapper) InferenceFailuresInc() {
	w.m.InferenceFailures.Inc()
}

func (w *MetricsWrapper) InferenceLatencyObserve(v float64) {
	w.m.InferenceLatency.Observe(v)
}

func (w *MetricsWrapper) ModelLoadedSet(loaded bool) {
	if loaded {
		w.m.ModelLoaded.Set(1)
		return
	}
	w.m.ModelLoaded.Set(0)
}

func (w *MetricsWrapper) PredictionInc(mode string) {
	w.m.Predictions.WithLabelValues(mode).Inc()
}

func (w *MetricsWrapper) PredictionFailureInc(reason string) {
	w.m.PredictionFailures.WithLabelValues(reason).Inc()
}

func (w *MetricsWrapper) ConfidenceObserve(v float64) {
	w.m.PredictionScores.Observe(v)
}

func (w *MetricsWrapper) InputBytesObserve(n int) {
	w.m.InputBytes.Observe(float64(n))
}

func (w *MetricsWrapper) CacheHitInc() {
	w.m.CacheHits.Inc()
}

func (w *MetricsWrapper) CacheMissInc() {
	w.m.CacheMisses.Inc()
}

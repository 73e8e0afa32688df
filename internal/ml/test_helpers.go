package ml

import (
	"context"
	"sync"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu          sync.Mutex
	Inferences  int
	Failures    int
	LatencySum  float64
	ModelLoaded bool
}

func (m *MockMetrics) InferenceInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Inferences++
}

func (m *MockMetrics) InferenceFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures++
}

func (m *MockMetrics) InferenceLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LatencySum += v
}

func (m *MockMetrics) ModelLoadedSet(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ModelLoaded = v
}

// MockClassifier returns fixed probabilities, or Err when set.
type MockClassifier struct {
	Probs []float64
	Err   error

	mu    sync.Mutex
	calls int
}

func (m *MockClassifier) Classes() int { return len(m.Probs) }

func (m *MockClassifier) PredictProba(_ context.Context, _ []float64) ([]float64, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]float64, len(m.Probs))
	copy(out, m.Probs)
	return out, nil
}

// Calls returns how many times PredictProba ran.
func (m *MockClassifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// NewMockEngine builds an available engine over labels backed by probs.
func NewMockEngine(labels []string, probs []float64, metrics MetricsInterface) (*Engine, *MockClassifier, error) {
	vocab, err := NewVocabulary(labels)
	if err != nil {
		return nil, nil, err
	}
	c := &MockClassifier{Probs: probs}
	e, err := NewEngine(c, vocab, ModelMetadata{Backend: "mock"}, metrics)
	if err != nil {
		return nil, nil, err
	}
	return e, c, nil
}

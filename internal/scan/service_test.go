package scan

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipher-scan/internal/features"
	"cipher-scan/internal/ml"
	"cipher-scan/internal/storage"
)

type mockMetrics struct {
	mu          sync.Mutex
	predictions map[string]int
	failures    map[string]int
	hits        int
	misses      int
	confidences []float64
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{predictions: map[string]int{}, failures: map[string]int{}}
}

func (m *mockMetrics) PredictionInc(mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions[mode]++
}

func (m *mockMetrics) PredictionFailureInc(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[reason]++
}

func (m *mockMetrics) ConfidenceObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confidences = append(m.confidences, v)
}

func (m *mockMetrics) InputBytesObserve(int) {}

func (m *mockMetrics) CacheHitInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *mockMetrics) CacheMissInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

type mockRecorder struct {
	mu      sync.Mutex
	records []storage.PredictionRecord
	err     error
}

func (r *mockRecorder) StorePrediction(rec storage.PredictionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

var testLabels = []string{"AES", "DES", "RSA", "SHA-256"}

func newTestService(t *testing.T, opts Options, probs []float64) (*Service, *ml.MockClassifier, *mockMetrics, *mockRecorder) {
	t.Helper()
	engine, classifier, err := ml.NewMockEngine(testLabels, probs, nil)
	require.NoError(t, err)

	metrics := newMockMetrics()
	recorder := &mockRecorder{}
	svc, err := New(engine, opts, metrics, recorder)
	require.NoError(t, err)
	return svc, classifier, metrics, recorder
}

func TestPredictText_SingleLabelShape(t *testing.T) {
	svc, _, metrics, recorder := newTestService(t, Options{}, []float64{0.1, 0.2, 0.6, 0.1})

	res, err := svc.PredictText(context.Background(), "4d2f8b5c3e1a9f7b")
	require.NoError(t, err)

	assert.Equal(t, "RSA", res.Algorithm)
	assert.Equal(t, 0.6, res.Confidence)
	assert.Nil(t, res.Top)
	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, 1.0, res.Features[features.HexRatio])
	assert.Equal(t, 1, metrics.predictions[ModeText])

	require.Len(t, recorder.records, 1)
	assert.Equal(t, res.RequestID, recorder.records[0].ID)
	assert.Equal(t, ModeText, recorder.records[0].Mode)
	assert.Equal(t, 16.0, recorder.records[0].Features["length"])
}

func TestPredictText_TopK(t *testing.T) {
	svc, _, _, recorder := newTestService(t, Options{IncludeTopK: true, TopK: 3}, []float64{0.3, 0.1, 0.3, 0.3})

	res, err := svc.PredictText(context.Background(), "QWxhZGRpbjpvcGVuIHNlc2FtZQ==")
	require.NoError(t, err)

	require.Len(t, res.Top, 3)
	assert.Equal(t, "AES", res.Algorithm)
	assert.Equal(t, []string{"AES", "RSA", "SHA-256"}, []string{res.Top[0].Label, res.Top[1].Label, res.Top[2].Label})
	require.Len(t, recorder.records[0].Top, 3)
}

func TestPredictText_DefaultTopK(t *testing.T) {
	svc, _, _, _ := newTestService(t, Options{IncludeTopK: true}, []float64{0.4, 0.3, 0.2, 0.1})
	assert.Equal(t, 3, svc.Options().TopK)
	assert.Equal(t, DefaultMaxInputBytes, svc.Options().MaxInputBytes)
}

func TestPredict_EmptyInput(t *testing.T) {
	svc, classifier, metrics, _ := newTestService(t, Options{}, []float64{0.25, 0.25, 0.25, 0.25})

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := svc.PredictText(context.Background(), text)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}

	_, err := svc.PredictBytes(context.Background(), "empty.bin", nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	assert.Zero(t, classifier.Calls())
	assert.Equal(t, 4, metrics.failures["empty_input"])
}

func TestPredict_OversizeInput(t *testing.T) {
	svc, classifier, metrics, _ := newTestService(t, Options{MaxInputBytes: 8}, []float64{0.25, 0.25, 0.25, 0.25})

	_, err := svc.PredictText(context.Background(), strings.Repeat("a", 9))
	assert.ErrorIs(t, err, ErrOversizeInput)

	_, err = svc.PredictBytes(context.Background(), "big.bin", make([]byte, 9))
	assert.ErrorIs(t, err, ErrOversizeInput)

	_, err = svc.PredictBytes(context.Background(), "ok.bin", make([]byte, 8))
	assert.NoError(t, err)

	assert.Equal(t, 1, classifier.Calls())
	assert.Equal(t, 2, metrics.failures["oversize_input"])
}

func TestPredict_ModelUnavailable(t *testing.T) {
	engine := ml.Unavailable(errors.New("model file missing"), nil)
	svc, err := New(engine, Options{}, nil, nil)
	require.NoError(t, err)

	assert.False(t, svc.Ready())
	_, err = svc.PredictText(context.Background(), "abcd")
	assert.ErrorIs(t, err, ml.ErrModelUnavailable)

	// Availability is checked before input validation.
	_, err = svc.PredictBytes(context.Background(), "x", nil)
	assert.ErrorIs(t, err, ml.ErrModelUnavailable)
}

func TestPredictBytes_FilenameAndFeatures(t *testing.T) {
	svc, _, metrics, recorder := newTestService(t, Options{}, []float64{0.7, 0.1, 0.1, 0.1})

	res, err := svc.PredictBytes(context.Background(), "cipher.bin", []byte{65, 65, 65})
	require.NoError(t, err)

	assert.Equal(t, "cipher.bin", res.Filename)
	assert.Equal(t, "AES", res.Algorithm)
	assert.Equal(t, 65.0, res.Features[features.AvgValue])
	assert.Zero(t, res.Features[features.Base64Flag])
	assert.Equal(t, 1, metrics.predictions[ModeFile])
	assert.Equal(t, "cipher.bin", recorder.records[0].Filename)
	assert.Equal(t, 3, recorder.records[0].InputBytes)
}

func TestPredict_CacheReusesResult(t *testing.T) {
	svc, classifier, metrics, _ := newTestService(t, Options{CacheSize: 16, IncludeTopK: true}, []float64{0.1, 0.7, 0.1, 0.1})

	first, err := svc.PredictText(context.Background(), "deadbeef")
	require.NoError(t, err)
	second, err := svc.PredictText(context.Background(), "  deadbeef  ")
	require.NoError(t, err)

	assert.Equal(t, 1, classifier.Calls())
	assert.Equal(t, 1, metrics.hits)
	assert.Equal(t, 1, metrics.misses)
	assert.Equal(t, first.Algorithm, second.Algorithm)
	assert.Equal(t, first.Top, second.Top)
	assert.NotEqual(t, first.RequestID, second.RequestID)

	// Mutating one result must not leak into the cached ranking.
	second.Top[0].Label = "tampered"
	third, err := svc.PredictText(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "DES", third.Top[0].Label)

	// Same bytes through the file path are a separate cache entry.
	_, err = svc.PredictBytes(context.Background(), "f", []byte("deadbeef"))
	require.NoError(t, err)
	assert.Equal(t, 2, classifier.Calls())
}

func TestPredict_InferenceErrorIsNotCached(t *testing.T) {
	svc, classifier, metrics, recorder := newTestService(t, Options{CacheSize: 4}, []float64{0.25, 0.25, 0.25, 0.25})
	classifier.Err = errors.New("backend crashed")

	_, err := svc.PredictText(context.Background(), "abcd")
	assert.ErrorContains(t, err, "backend crashed")
	assert.Equal(t, 1, metrics.failures["inference_error"])
	assert.Empty(t, recorder.records)

	classifier.Err = nil
	_, err = svc.PredictText(context.Background(), "abcd")
	assert.NoError(t, err)
	assert.Equal(t, 2, classifier.Calls())
}

func TestPredict_RecorderFailureDoesNotFailRequest(t *testing.T) {
	svc, _, _, recorder := newTestService(t, Options{}, []float64{0.25, 0.25, 0.25, 0.25})
	recorder.err = errors.New("disk full")

	_, err := svc.PredictText(context.Background(), "abcd")
	assert.NoError(t, err)
}

func TestNew_RequiresEngine(t *testing.T) {
	_, err := New(nil, Options{}, nil, nil)
	assert.Error(t, err)
}

func TestPredict_Concurrent(t *testing.T) {
	svc, _, _, _ := newTestService(t, Options{CacheSize: 8, IncludeTopK: true}, []float64{0.1, 0.1, 0.1, 0.7})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				res, err := svc.PredictText(context.Background(), strings.Repeat("x", i+1))
				if assert.NoError(t, err) {
					assert.Equal(t, "SHA-256", res.Algorithm)
				}
			}
		}(i)
	}
	wg.Wait()
}

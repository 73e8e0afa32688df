package ml

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipher-scan/internal/features"
)

func writeModel(t *testing.T, name string, model any) string {
	t.Helper()
	data, err := json.Marshal(model)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// softmaxFixture returns a model over n classes with zero weights, so every
// class scores the same and the output is uniform.
func softmaxFixture(n int) map[string]any {
	weights := make([][]float64, n)
	for i := range weights {
		weights[i] = make([]float64, features.Size)
	}
	return map[string]any{
		"type":     "softmax",
		"version":  "test",
		"features": features.Names(),
		"softmax": map[string]any{
			"weights": weights,
			"bias":    make([]float64, n),
		},
	}
}

func TestEngine_InferAfterFailedLoad(t *testing.T) {
	metrics := &MockMetrics{ModelLoaded: true}
	e := Load(Config{ModelPath: filepath.Join(t.TempDir(), "missing.json")}, metrics)

	require.NotNil(t, e)
	assert.False(t, e.Available())
	assert.False(t, metrics.ModelLoaded)

	for i := 0; i < 3; i++ {
		_, err := e.Infer(context.Background(), features.FromText("abcd"))
		assert.ErrorIs(t, err, ErrModelUnavailable)
	}
	assert.Zero(t, metrics.Inferences)
}

func TestEngine_NilSafety(t *testing.T) {
	var e *Engine
	assert.False(t, e.Available())
	_, err := e.Infer(context.Background(), features.Vector{})
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, 0, e.Vocabulary().Len())
}

func TestEngine_UnavailableWrapsCause(t *testing.T) {
	e := Unavailable(errors.New("disk on fire"), nil)
	_, err := e.Infer(context.Background(), features.Vector{})
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Contains(t, err.Error(), "disk on fire")

	_, err = Unavailable(nil, nil).Infer(context.Background(), features.Vector{})
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestEngine_ClassCountMismatch(t *testing.T) {
	path := writeModel(t, "model.json", softmaxFixture(5))
	e := Load(Config{ModelPath: path}, nil)

	assert.False(t, e.Available())
	assert.ErrorIs(t, e.Err(), ErrModelUnavailable)
	assert.Contains(t, e.Err().Error(), "5 classes")
}

func TestEngine_LabelNameMismatch(t *testing.T) {
	model := softmaxFixture(2)
	model["labels"] = []string{"AES", "RSA"}
	path := writeModel(t, "model.json", model)

	e := Load(Config{ModelPath: path, Labels: []string{"RSA", "AES"}}, nil)
	assert.False(t, e.Available())
	assert.ErrorIs(t, e.Err(), ErrModelUnavailable)

	e = Load(Config{ModelPath: path, Labels: []string{"AES", "RSA"}}, nil)
	assert.True(t, e.Available())
}

func TestEngine_BadVocabulary(t *testing.T) {
	path := writeModel(t, "model.json", softmaxFixture(2))
	e := Load(Config{ModelPath: path, Labels: []string{"AES", "AES"}}, nil)
	assert.ErrorIs(t, e.Err(), ErrModelUnavailable)
}

func TestEngine_LoadDefaultVocabulary(t *testing.T) {
	metrics := &MockMetrics{}
	path := writeModel(t, "model.json", softmaxFixture(len(DefaultLabels)))
	e := Load(Config{ModelPath: path}, metrics)

	require.True(t, e.Available())
	require.NoError(t, e.Err())
	assert.True(t, metrics.ModelLoaded)
	assert.Equal(t, "softmax", e.Metadata().Backend)
	assert.Equal(t, "test", e.Metadata().Version)
	assert.Equal(t, len(DefaultLabels), e.Metadata().Classes)

	dist, err := e.Infer(context.Background(), features.FromText("QWxhZGRpbjpvcGVuIHNlc2FtZQ=="))
	require.NoError(t, err)

	var sum float64
	for _, p := range dist.Probabilities() {
		assert.InDelta(t, 1.0/8, p, 1e-12)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-6)

	// Uniform output: the lowest index wins the tie.
	label, _ := TopLabel(dist)
	assert.Equal(t, "3DES", label)
	assert.Equal(t, 1, metrics.Inferences)
}

func TestEngine_ClassifierOutputIsValidated(t *testing.T) {
	metrics := &MockMetrics{}
	e, c, err := NewMockEngine([]string{"A", "B"}, []float64{0.7, 0.7}, metrics)
	require.NoError(t, err)

	_, err = e.Infer(context.Background(), features.Vector{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, 1, metrics.Failures)

	c.Probs = []float64{math.NaN(), 1}
	_, err = e.Infer(context.Background(), features.Vector{})
	assert.Error(t, err)

	c.Probs = nil
	c.Err = errors.New("boom")
	_, err = e.Infer(context.Background(), features.Vector{})
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, 3, metrics.Failures)
}

func TestEngine_ConcurrentInfer(t *testing.T) {
	e, c, err := NewMockEngine([]string{"A", "B", "C"}, []float64{0.2, 0.5, 0.3}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d, err := e.Infer(context.Background(), features.FromText("deadbeef"))
				if assert.NoError(t, err) {
					label, _ := TopLabel(d)
					assert.Equal(t, "B", label)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 500, c.Calls())
}

func TestNewEngine_RejectsNilClassifier(t *testing.T) {
	_, err := NewEngine(nil, DefaultVocabulary(), ModelMetadata{}, nil)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestEngine_Info(t *testing.T) {
	path := writeModel(t, "model.json", softmaxFixture(len(DefaultLabels)))
	info := Load(Config{ModelPath: path}, nil).Info()

	assert.True(t, info.Loaded)
	assert.Empty(t, info.Error)
	assert.Equal(t, DefaultLabels, info.Vocabulary)
	assert.Equal(t, features.Names(), info.Features)

	data, err := json.Marshal(info)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "trained_at")

	model := softmaxFixture(len(DefaultLabels))
	model["trained_at"] = "2025-03-01T12:00:00Z"
	info = Load(Config{ModelPath: writeModel(t, "dated.json", model)}, nil).Info()
	data, err = json.Marshal(info)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"trained_at":"2025-03-01T12:00:00Z"`)

	info = Unavailable(errors.New("no artifact"), nil).Info()
	assert.False(t, info.Loaded)
	assert.Contains(t, info.Error, "no artifact")
	assert.Empty(t, info.Vocabulary)
}

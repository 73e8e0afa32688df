package ml

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"cipher-scan/internal/features"
)

// MetricsInterface defines metrics methods needed by the engine
type MetricsInterface interface {
	InferenceInc()
	InferenceFailuresInc()
	InferenceLatencyObserve(float64)
	ModelLoadedSet(bool)
}

// Config selects the model artifact and the label vocabulary it was trained with.
type Config struct {
	ModelPath  string
	Labels     []string
	PythonPath string
	Timeout    time.Duration
}

// Engine wraps a loaded classifier and its vocabulary. The model is never
// reloaded, and a single Engine may serve any number of concurrent requests.
//
// A classifier backed by an external process may stop serving after load; it
// reports that through an Err() error method, and the engine is unavailable
// from then on.
type Engine struct {
	classifier Classifier
	vocab      Vocabulary
	meta       ModelMetadata
	loadErr    error
	metrics    MetricsInterface
	down       sync.Once
}

// NewEngine pairs classifier with vocab, failing with ErrModelUnavailable when
// they disagree on the number or names of the classes.
func NewEngine(classifier Classifier, vocab Vocabulary, meta ModelMetadata, metrics MetricsInterface) (*Engine, error) {
	if classifier == nil {
		return nil, fmt.Errorf("%w: classifier is nil", ErrModelUnavailable)
	}
	if vocab.Len() == 0 {
		return nil, fmt.Errorf("%w: vocabulary is empty", ErrModelUnavailable)
	}
	if classifier.Classes() != vocab.Len() {
		return nil, fmt.Errorf("%w: model has %d classes but vocabulary has %d labels",
			ErrModelUnavailable, classifier.Classes(), vocab.Len())
	}
	if len(meta.Labels) > 0 && !slices.Equal(meta.Labels, vocab.Labels()) {
		return nil, fmt.Errorf("%w: model labels %v do not match vocabulary %v",
			ErrModelUnavailable, meta.Labels, vocab.Labels())
	}

	meta.Classes = classifier.Classes()
	if meta.Features == nil {
		meta.Features = features.Names()
	}

	if metrics != nil {
		metrics.ModelLoadedSet(true)
	}
	return &Engine{
		classifier: classifier,
		vocab:      vocab,
		meta:       meta,
		metrics:    metrics,
	}, nil
}

// Unavailable returns an engine that rejects every call with cause, which is
// wrapped in ErrModelUnavailable when it is not already.
func Unavailable(cause error, metrics MetricsInterface) *Engine {
	switch {
	case cause == nil:
		cause = ErrModelUnavailable
	case !errors.Is(cause, ErrModelUnavailable):
		cause = fmt.Errorf("%w: %v", ErrModelUnavailable, cause)
	}
	if metrics != nil {
		metrics.ModelLoadedSet(false)
	}
	return &Engine{loadErr: cause, metrics: metrics}
}

// Load builds the engine from cfg. It never returns nil: a model or
// vocabulary that fails to load yields an engine that stays unavailable.
func Load(cfg Config, metrics MetricsInterface) *Engine {
	labels := cfg.Labels
	if len(labels) == 0 {
		labels = DefaultLabels
	}

	vocab, err := NewVocabulary(labels)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		log.Error().Err(err).Msg("label vocabulary rejected")
		return Unavailable(err, metrics)
	}

	classifier, meta, err := LoadClassifier(cfg.ModelPath, LoadOptions{
		PythonPath: cfg.PythonPath,
		Timeout:    cfg.Timeout,
	})
	if err != nil {
		log.Error().Err(err).Str("model_path", cfg.ModelPath).Msg("failed to load model")
		return Unavailable(err, metrics)
	}

	e, err := NewEngine(classifier, vocab, meta, metrics)
	if err != nil {
		log.Error().Err(err).Str("model_path", cfg.ModelPath).Msg("model and vocabulary disagree")
		return Unavailable(err, metrics)
	}

	log.Info().
		Str("model_path", cfg.ModelPath).
		Str("backend", meta.Backend).
		Strs("labels", vocab.Labels()).
		Msg("model and vocabulary loaded")
	return e
}

// liveness is implemented by classifiers that can stop serving after load.
type liveness interface {
	Err() error
}

// Available reports whether the model loaded and can still serve.
func (e *Engine) Available() bool {
	return e.Err() == nil
}

// Err returns why the engine cannot serve, or nil when it is available.
func (e *Engine) Err() error {
	if e == nil {
		return ErrModelUnavailable
	}
	if e.classifier == nil {
		if e.loadErr == nil {
			return ErrModelUnavailable
		}
		return e.loadErr
	}
	if lv, ok := e.classifier.(liveness); ok {
		if err := lv.Err(); err != nil {
			e.down.Do(func() {
				if e.metrics != nil {
					e.metrics.ModelLoadedSet(false)
				}
			})
			return err
		}
	}
	return nil
}

// Close releases resources held by the classifier, such as a worker process.
func (e *Engine) Close() error {
	if e == nil || e.classifier == nil {
		return nil
	}
	if c, ok := e.classifier.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (e *Engine) Vocabulary() Vocabulary {
	if e == nil {
		return Vocabulary{}
	}
	return e.vocab
}

func (e *Engine) Metadata() ModelMetadata {
	if e == nil {
		return ModelMetadata{}
	}
	return e.meta
}

// ModelInfo describes the engine for operators.
type ModelInfo struct {
	ModelMetadata
	Loaded     bool     `json:"model_loaded"`
	Vocabulary []string `json:"vocabulary"`
	Error      string   `json:"error,omitempty"`
}

// Info reports the loaded model, or why loading failed.
func (e *Engine) Info() ModelInfo {
	info := ModelInfo{
		ModelMetadata: e.Metadata(),
		Loaded:        e.Available(),
		Vocabulary:    e.Vocabulary().Labels(),
	}
	if !info.Loaded {
		info.Error = e.Err().Error()
	}
	return info
}

// Infer returns the classifier's distribution over the vocabulary for vec.
// Output is validated but never renormalized.
func (e *Engine) Infer(ctx context.Context, vec features.Vector) (Distribution, error) {
	if !e.Available() {
		return Distribution{}, e.Err()
	}

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.InferenceLatencyObserve(time.Since(start).Seconds())
		}
	}()

	probs, err := e.classifier.PredictProba(ctx, vec.Slice())
	if err != nil {
		e.failure()
		if errors.Is(err, ErrModelUnavailable) {
			_ = e.Err() // clears the model_loaded gauge
		}
		return Distribution{}, fmt.Errorf("inference failed: %w", err)
	}

	dist, err := NewDistribution(e.vocab, probs)
	if err != nil {
		e.failure()
		log.Error().
			Err(err).
			Floats64("features", vec.Slice()).
			Floats64("probabilities", probs).
			Msg("classifier returned an invalid distribution")
		return Distribution{}, fmt.Errorf("invalid classifier output: %w", err)
	}

	if e.metrics != nil {
		e.metrics.InferenceInc()
	}
	return dist, nil
}

func (e *Engine) failure() {
	if e.metrics != nil {
		e.metrics.InferenceFailuresInc()
	}
}

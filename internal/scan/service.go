// Package scan is the prediction entry point: it validates a submission,
// extracts features, runs the engine and shapes the result into a label,
// a confidence and an optional top-k ranking.
package scan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"cipher-scan/internal/features"
	"cipher-scan/internal/ml"
	"cipher-scan/internal/storage"
)

var (
	// ErrEmptyInput rejects a zero-length submission.
	ErrEmptyInput = errors.New("input is empty")
	// ErrOversizeInput rejects a submission above the configured ceiling.
	ErrOversizeInput = errors.New("input too large")
)

// Input modes.
const (
	ModeText = "text"
	ModeFile = "file"
)

// DefaultMaxInputBytes is the submission ceiling when none is configured.
const DefaultMaxInputBytes = 2 * 1024 * 1024

// Options controls response shape and limits.
type Options struct {
	// IncludeTopK adds the ranked Top list to every result.
	IncludeTopK bool
	// TopK is the ranking length when IncludeTopK is set.
	TopK int
	// MaxInputBytes caps text and file submissions; 0 means DefaultMaxInputBytes.
	MaxInputBytes int
	// CacheSize is the number of results kept in the LRU cache; 0 disables it.
	CacheSize int
}

// MetricsInterface defines metrics methods needed by the service
type MetricsInterface interface {
	PredictionInc(mode string)
	PredictionFailureInc(reason string)
	ConfidenceObserve(float64)
	InputBytesObserve(int)
	CacheHitInc()
	CacheMissInc()
}

// Recorder persists served predictions.
type Recorder interface {
	StorePrediction(storage.PredictionRecord) error
}

// Result is a shaped prediction.
type Result struct {
	RequestID  string          `json:"request_id,omitempty"`
	Filename   string          `json:"filename,omitempty"`
	Algorithm  string          `json:"algorithm"`
	Confidence float64         `json:"confidence"`
	Top        []ml.Ranked     `json:"top,omitempty"`
	Features   features.Vector `json:"-"`
}

type cachedResult struct {
	algorithm  string
	confidence float64
	top        []ml.Ranked
	vec        features.Vector
}

// Service serves predictions over a shared engine. It is safe for
// concurrent use.
type Service struct {
	engine   *ml.Engine
	opts     Options
	cache    *lru.Cache[string, cachedResult]
	metrics  MetricsInterface
	recorder Recorder
}

// New creates a service. metrics and recorder may be nil.
func New(engine *ml.Engine, opts Options, metrics MetricsInterface, recorder Recorder) (*Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is nil")
	}
	if opts.MaxInputBytes <= 0 {
		opts.MaxInputBytes = DefaultMaxInputBytes
	}
	if opts.IncludeTopK && opts.TopK <= 0 {
		opts.TopK = 3
	}

	s := &Service{
		engine:   engine,
		opts:     opts,
		metrics:  metrics,
		recorder: recorder,
	}

	if opts.CacheSize > 0 {
		cache, err := lru.New[string, cachedResult](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create result cache: %w", err)
		}
		s.cache = cache
	}

	return s, nil
}

// Engine returns the engine the service predicts with.
func (s *Service) Engine() *ml.Engine { return s.engine }

// Options returns the effective options.
func (s *Service) Options() Options { return s.opts }

// Ready reports whether predictions can be served.
func (s *Service) Ready() bool { return s.engine.Available() }

// PredictText classifies text. Surrounding whitespace is ignored; text that
// is empty after trimming is rejected with ErrEmptyInput.
func (s *Service) PredictText(ctx context.Context, text string) (Result, error) {
	if err := s.precheck(len(text)); err != nil {
		return Result{}, err
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		s.fail("empty_input")
		return Result{}, ErrEmptyInput
	}

	return s.predict(ctx, ModeText, "", []byte(trimmed), func() features.Vector {
		return features.FromText(trimmed)
	})
}

// PredictBytes classifies a binary payload. filename is echoed back and
// recorded but plays no part in the prediction.
func (s *Service) PredictBytes(ctx context.Context, filename string, data []byte) (Result, error) {
	if err := s.precheck(len(data)); err != nil {
		return Result{}, err
	}
	if len(data) == 0 {
		s.fail("empty_input")
		return Result{}, ErrEmptyInput
	}

	return s.predict(ctx, ModeFile, filename, data, func() features.Vector {
		return features.FromBytes(data)
	})
}

func (s *Service) precheck(n int) error {
	if !s.engine.Available() {
		s.fail("model_unavailable")
		return s.engine.Err()
	}
	if n > s.opts.MaxInputBytes {
		s.fail("oversize_input")
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrOversizeInput, n, s.opts.MaxInputBytes)
	}
	return nil
}

func (s *Service) predict(ctx context.Context, mode, filename string, payload []byte, extract func() features.Vector) (Result, error) {
	sum := sha256.Sum256(payload)
	digest := hex.EncodeToString(sum[:])
	key := mode + ":" + digest

	res, ok := s.fromCache(key)
	if !ok {
		vec := extract()
		dist, err := s.engine.Infer(ctx, vec)
		if err != nil {
			s.fail("inference_error")
			log.Error().Err(err).Str("mode", mode).Int("input_bytes", len(payload)).Msg("prediction failed")
			return Result{}, err
		}

		label, confidence := ml.TopLabel(dist)
		res = cachedResult{algorithm: label, confidence: confidence, vec: vec}
		if s.opts.IncludeTopK {
			res.top = ml.TopK(dist, s.opts.TopK)
		}
		if s.cache != nil {
			s.cache.Add(key, res)
		}
	}

	out := Result{
		RequestID:  uuid.NewString(),
		Filename:   filename,
		Algorithm:  res.algorithm,
		Confidence: res.confidence,
		Features:   res.vec,
	}
	if res.top != nil {
		out.Top = append([]ml.Ranked(nil), res.top...)
	}

	if s.metrics != nil {
		s.metrics.PredictionInc(mode)
		s.metrics.ConfidenceObserve(out.Confidence)
		s.metrics.InputBytesObserve(len(payload))
	}
	s.record(mode, digest, len(payload), out)

	log.Debug().
		Str("request_id", out.RequestID).
		Str("mode", mode).
		Str("algorithm", out.Algorithm).
		Float64("confidence", out.Confidence).
		Msg("prediction served")

	return out, nil
}

func (s *Service) fromCache(key string) (cachedResult, bool) {
	if s.cache == nil {
		return cachedResult{}, false
	}
	res, ok := s.cache.Get(key)
	if s.metrics != nil {
		if ok {
			s.metrics.CacheHitInc()
		} else {
			s.metrics.CacheMissInc()
		}
	}
	return res, ok
}

func (s *Service) record(mode, digest string, n int, r Result) {
	if s.recorder == nil {
		return
	}

	rec := storage.PredictionRecord{
		ID:         r.RequestID,
		Timestamp:  time.Now(),
		Mode:       mode,
		Filename:   r.Filename,
		InputHash:  digest,
		InputBytes: n,
		Algorithm:  r.Algorithm,
		Confidence: r.Confidence,
		Features:   r.Features.Map(),
	}
	for _, t := range r.Top {
		rec.Top = append(rec.Top, storage.RankedLabel{Label: t.Label, Probability: t.Probability})
	}

	if err := s.recorder.StorePrediction(rec); err != nil {
		log.Warn().Err(err).Str("request_id", r.RequestID).Msg("failed to record prediction")
	}
}

func (s *Service) fail(reason string) {
	if s.metrics != nil {
		s.metrics.PredictionFailureInc(reason)
	}
}

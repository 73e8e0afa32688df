// Package ml loads the trained cipher classifier and runs inference over
// feature vectors.
//
// A model is loaded once at process start. If loading fails, the Engine stays
// unavailable for the life of the process and every call reports
// ErrModelUnavailable; nothing is retried or reloaded.
package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"cipher-scan/internal/features"
)

// ErrModelUnavailable is returned when the classifier or its label vocabulary
// failed to load.
var ErrModelUnavailable = errors.New("model not loaded")

// Classifier is a trained multi-class model. PredictProba returns one
// probability per class index for a single feature row.
type Classifier interface {
	PredictProba(ctx context.Context, x []float64) ([]float64, error)
	Classes() int
}

// ModelMetadata describes a loaded model.
type ModelMetadata struct {
	Backend   string    `json:"backend"`
	Path      string    `json:"path"`
	Version   string    `json:"version,omitempty"`
	TrainedAt time.Time `json:"trained_at,omitzero"`
	Features  []string  `json:"features"`
	Labels    []string  `json:"labels,omitempty"`
	Classes   int       `json:"classes"`
}

// LoadOptions tunes classifier loading.
type LoadOptions struct {
	// PythonPath overrides interpreter discovery for pickled models.
	PythonPath string
	// Timeout bounds a single Python inference call.
	Timeout time.Duration
}

// modelFile is the on-disk layout of a native model.
type modelFile struct {
	Type      string        `json:"type"`
	Version   string        `json:"version"`
	TrainedAt time.Time     `json:"trained_at"`
	Features  []string      `json:"features"`
	Labels    []string      `json:"labels"`
	Softmax   *softmaxModel `json:"softmax,omitempty"`
	Forest    *forestModel  `json:"forest,omitempty"`
}

// LoadClassifier loads the model at path. JSON files hold a native model;
// .pkl and .joblib files are loaded once into a Python worker process that
// serves the estimator's predict_proba. Any failure wraps ErrModelUnavailable.
func LoadClassifier(path string, opts LoadOptions) (Classifier, ModelMetadata, error) {
	meta := ModelMetadata{Path: path, Features: features.Names()}

	if _, err := os.Stat(path); err != nil {
		return nil, meta, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		c, m, err := loadNative(path)
		if err != nil {
			return nil, meta, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		return c, m, nil
	case ".pkl", ".joblib":
		c, err := newPythonClassifier(path, opts)
		if err != nil {
			return nil, meta, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		meta.Backend = "python"
		meta.Classes = c.Classes()
		meta.Labels = c.labels

		md, ok, err := loadSidecarMetadata(path)
		if err == nil && ok {
			err = md.apply(&meta)
		}
		if err != nil {
			c.Close()
			return nil, meta, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		return c, meta, nil
	default:
		return nil, meta, fmt.Errorf("%w: unsupported model format %q", ErrModelUnavailable, filepath.Ext(path))
	}
}

func loadNative(path string) (Classifier, ModelMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ModelMetadata{}, fmt.Errorf("read model file: %w", err)
	}

	var mf modelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, ModelMetadata{}, fmt.Errorf("parse model file: %w", err)
	}

	if len(mf.Features) > 0 && !slices.Equal(mf.Features, features.Names()) {
		return nil, ModelMetadata{}, fmt.Errorf("model features %v do not match extractor order %v", mf.Features, features.Names())
	}

	var c Classifier
	switch mf.Type {
	case "softmax":
		if mf.Softmax == nil {
			return nil, ModelMetadata{}, fmt.Errorf("softmax model has no parameters")
		}
		if err := mf.Softmax.validate(); err != nil {
			return nil, ModelMetadata{}, err
		}
		c = mf.Softmax
	case "forest":
		if mf.Forest == nil {
			return nil, ModelMetadata{}, fmt.Errorf("forest model has no trees")
		}
		if err := mf.Forest.validate(); err != nil {
			return nil, ModelMetadata{}, err
		}
		c = mf.Forest
	default:
		return nil, ModelMetadata{}, fmt.Errorf("unknown model type %q", mf.Type)
	}

	if len(mf.Labels) > 0 && len(mf.Labels) != c.Classes() {
		return nil, ModelMetadata{}, fmt.Errorf("model lists %d labels for %d classes", len(mf.Labels), c.Classes())
	}

	return c, ModelMetadata{
		Backend:   mf.Type,
		Path:      path,
		Version:   mf.Version,
		TrainedAt: mf.TrainedAt,
		Features:  features.Names(),
		Labels:    mf.Labels,
		Classes:   c.Classes(),
	}, nil
}

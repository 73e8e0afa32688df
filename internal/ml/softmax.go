package ml

import (
	"context"
	"fmt"
	"math"

	"cipher-scan/internal/features"
)

// softmaxModel is a multinomial logistic regression. Inputs are standardized
// with Mean and Scale when present, then p = softmax(W·x + b).
type softmaxModel struct {
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
	Mean    []float64   `json:"mean,omitempty"`
	Scale   []float64   `json:"scale,omitempty"`
}

func (m *softmaxModel) validate() error {
	if len(m.Weights) < 2 {
		return fmt.Errorf("softmax model needs at least 2 classes, got %d", len(m.Weights))
	}
	if len(m.Bias) != len(m.Weights) {
		return fmt.Errorf("softmax model has %d biases for %d classes", len(m.Bias), len(m.Weights))
	}
	for i, w := range m.Weights {
		if len(w) != features.Size {
			return fmt.Errorf("class %d has %d weights, expected %d", i, len(w), features.Size)
		}
	}
	if len(m.Mean) != 0 && len(m.Mean) != features.Size {
		return fmt.Errorf("mean has %d entries, expected %d", len(m.Mean), features.Size)
	}
	if len(m.Scale) != 0 && len(m.Scale) != features.Size {
		return fmt.Errorf("scale has %d entries, expected %d", len(m.Scale), features.Size)
	}
	for i, s := range m.Scale {
		if s == 0 {
			return fmt.Errorf("scale %d is zero", i)
		}
	}
	return nil
}

func (m *softmaxModel) Classes() int { return len(m.Weights) }

func (m *softmaxModel) PredictProba(_ context.Context, x []float64) ([]float64, error) {
	if len(x) != features.Size {
		return nil, fmt.Errorf("expected %d features, got %d", features.Size, len(x))
	}

	z := make([]float64, features.Size)
	copy(z, x)
	for i := range z {
		if len(m.Mean) > 0 {
			z[i] -= m.Mean[i]
		}
		if len(m.Scale) > 0 {
			z[i] /= m.Scale[i]
		}
	}

	logits := make([]float64, len(m.Weights))
	maxLogit := math.Inf(-1)
	for c, w := range m.Weights {
		s := m.Bias[c]
		for i, wi := range w {
			s += wi * z[i]
		}
		logits[c] = s
		if s > maxLogit {
			maxLogit = s
		}
	}

	var sum float64
	for c, l := range logits {
		logits[c] = math.Exp(l - maxLogit)
		sum += logits[c]
	}
	for c := range logits {
		logits[c] /= sum
	}
	return logits, nil
}

package ml

import (
	"fmt"
	"math"
	"sort"
)

// sumTolerance bounds how far a distribution may drift from summing to 1.
const sumTolerance = 1e-6

// Distribution is a probability for every label of a vocabulary, in
// vocabulary order.
type Distribution struct {
	vocab Vocabulary
	probs []float64
}

// Ranked is one entry of a ranking.
type Ranked struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// NewDistribution validates probs against vocab: one finite value in [0,1]
// per label, summing to 1 within tolerance. probs is copied.
func NewDistribution(vocab Vocabulary, probs []float64) (Distribution, error) {
	if len(probs) != vocab.Len() {
		return Distribution{}, fmt.Errorf("expected %d probabilities, got %d", vocab.Len(), len(probs))
	}

	var sum float64
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 1 {
			return Distribution{}, fmt.Errorf("invalid probability %d: %f", i, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > sumTolerance {
		return Distribution{}, fmt.Errorf("probabilities sum to %f, expected 1", sum)
	}

	out := make([]float64, len(probs))
	copy(out, probs)
	return Distribution{vocab: vocab, probs: out}, nil
}

func (d Distribution) Len() int { return len(d.probs) }

// Prob returns the probability assigned to label.
func (d Distribution) Prob(label string) (float64, bool) {
	i, ok := d.vocab.Index(label)
	if !ok {
		return 0, false
	}
	return d.probs[i], true
}

// Probabilities returns a copy of the probabilities in vocabulary order.
func (d Distribution) Probabilities() []float64 {
	out := make([]float64, len(d.probs))
	copy(out, d.probs)
	return out
}

// Map returns the distribution keyed by label.
func (d Distribution) Map() map[string]float64 {
	m := make(map[string]float64, len(d.probs))
	for i, p := range d.probs {
		m[d.vocab.Label(i)] = p
	}
	return m
}

// Argmax returns the index of the highest probability. Ties resolve to the
// lowest index. It returns -1 for an empty distribution.
func (d Distribution) Argmax() int {
	best := -1
	for i, p := range d.probs {
		if best < 0 || p > d.probs[best] {
			best = i
		}
	}
	return best
}

// TopLabel returns the most probable label and its probability.
func TopLabel(d Distribution) (string, float64) {
	i := d.Argmax()
	if i < 0 {
		return "", 0
	}
	return d.vocab.Label(i), d.probs[i]
}

// TopK returns the k most probable labels in descending order of
// probability. Equal probabilities keep vocabulary order, so the lower index
// ranks first. k is clamped to [0, d.Len()].
func TopK(d Distribution, k int) []Ranked {
	if k <= 0 {
		return []Ranked{}
	}
	if k > len(d.probs) {
		k = len(d.probs)
	}

	idx := make([]int, len(d.probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return d.probs[idx[a]] > d.probs[idx[b]]
	})

	out := make([]Ranked, k)
	for i := 0; i < k; i++ {
		out[i] = Ranked{Label: d.vocab.Label(idx[i]), Probability: d.probs[idx[i]]}
	}
	return out
}

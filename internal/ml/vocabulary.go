package ml

import (
	"fmt"
	"strings"
)

// DefaultLabels is the label order the shipped cipher model was trained with.
// The encoder that produced the class indices sorted the algorithm names, so
// "3DES" comes first.
var DefaultLabels = []string{
	"3DES",
	"AES",
	"Blowfish",
	"ChaCha20",
	"DES",
	"RC4",
	"RSA",
	"SHA-256",
}

// Vocabulary maps class indices 0..N-1 to algorithm labels. It is immutable
// once built and safe for concurrent use.
type Vocabulary struct {
	labels []string
	index  map[string]int
}

// NewVocabulary builds a vocabulary from labels in class-index order.
func NewVocabulary(labels []string) (Vocabulary, error) {
	if len(labels) == 0 {
		return Vocabulary{}, fmt.Errorf("vocabulary must contain at least one label")
	}

	v := Vocabulary{
		labels: make([]string, len(labels)),
		index:  make(map[string]int, len(labels)),
	}
	for i, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			return Vocabulary{}, fmt.Errorf("label %d is empty", i)
		}
		if prev, dup := v.index[l]; dup {
			return Vocabulary{}, fmt.Errorf("label %q appears at index %d and %d", l, prev, i)
		}
		v.labels[i] = l
		v.index[l] = i
	}
	return v, nil
}

// DefaultVocabulary returns the vocabulary built from DefaultLabels.
func DefaultVocabulary() Vocabulary {
	v, err := NewVocabulary(DefaultLabels)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Vocabulary) Len() int { return len(v.labels) }

// Label returns the label at class index i.
func (v Vocabulary) Label(i int) string { return v.labels[i] }

// Index returns the class index of label.
func (v Vocabulary) Index(label string) (int, bool) {
	i, ok := v.index[label]
	return i, ok
}

// Labels returns a copy of the labels in index order.
func (v Vocabulary) Labels() []string {
	out := make([]string, len(v.labels))
	copy(out, v.labels)
	return out
}

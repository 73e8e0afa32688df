// Package features turns raw text or binary payloads into the fixed-order
// statistical feature vector the cipher classifier was trained on.
//
// The field order is a contract with the trained model and must not change.
package features

// Size is the number of fields in a Vector.
const Size = 8

// Field indices, in training order.
const (
	Length = iota
	LetterRatio
	DigitRatio
	HexRatio
	Base64Flag
	ShannonEntropy
	AvgValue
	SpaceRatio
)

var names = [Size]string{
	"length",
	"letter_ratio",
	"digit_ratio",
	"hex_ratio",
	"base64_flag",
	"shannon_entropy",
	"avg_value",
	"space_ratio",
}

// Vector is an immutable feature vector. The zero value is the all-zero vector.
type Vector [Size]float64

// Names returns the field names in vector order.
func Names() []string {
	out := make([]string, Size)
	copy(out, names[:])
	return out
}

// Slice returns a copy of the vector as a slice for classifiers.
func (v Vector) Slice() []float64 {
	out := make([]float64, Size)
	copy(out, v[:])
	return out
}

// Map returns the vector keyed by field name.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, Size)
	for i, n := range names {
		m[n] = v[i]
	}
	return m
}

func (v Vector) IsZero() bool {
	return v == Vector{}
}

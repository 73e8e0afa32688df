package features

import (
	"strings"
	"unicode"
)

// FromText extracts features over the Unicode code points of text after
// trimming surrounding whitespace. Whitespace-only or empty text yields the
// zero vector.
func FromText(text string) Vector {
	s := strings.TrimSpace(text)
	if s == "" {
		return Vector{}
	}

	var (
		n, letters, digits, hex, spaces int
		sum                             float64
		counts                          = make(map[rune]int)
	)
	for _, r := range s {
		n++
		counts[r]++
		sum += float64(r)
		if unicode.IsLetter(r) {
			letters++
		}
		if unicode.IsDigit(r) {
			digits++
		}
		if isHex(r) {
			hex++
		}
		if unicode.IsSpace(r) {
			spaces++
		}
	}

	var v Vector
	v[Length] = float64(n)
	v[LetterRatio] = Ratio(letters, n)
	v[DigitRatio] = Ratio(digits, n)
	v[HexRatio] = Ratio(hex, n)
	if LooksLikeBase64(s) {
		v[Base64Flag] = 1
	}
	v[ShannonEntropy] = Entropy(counts, n)
	v[AvgValue] = sum / float64(n)
	v[SpaceRatio] = Ratio(spaces, n)
	return v
}

// FromBytes extracts features over raw byte values. Character classes are
// ASCII only, whitespace means the 0x20 byte alone, and base64_flag is always 0.
func FromBytes(data []byte) Vector {
	if len(data) == 0 {
		return Vector{}
	}

	var (
		letters, digits, hex, spaces int
		sum                          float64
		counts                       = make(map[byte]int, 256)
	)
	for _, b := range data {
		counts[b]++
		sum += float64(b)
		switch {
		case b >= 'a' && b <= 'f', b >= 'A' && b <= 'F':
			letters++
			hex++
		case b >= 'g' && b <= 'z', b >= 'G' && b <= 'Z':
			letters++
		case b >= '0' && b <= '9':
			digits++
			hex++
		case b == ' ':
			spaces++
		}
	}

	n := len(data)
	var v Vector
	v[Length] = float64(n)
	v[LetterRatio] = Ratio(letters, n)
	v[DigitRatio] = Ratio(digits, n)
	v[HexRatio] = Ratio(hex, n)
	v[ShannonEntropy] = Entropy(counts, n)
	v[AvgValue] = sum / float64(n)
	v[SpaceRatio] = Ratio(spaces, n)
	return v
}

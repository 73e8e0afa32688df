package features

import (
	"math"
	"regexp"
	"strings"
)

var base64Shape = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// Entropy returns the base-2 Shannon entropy of the frequency distribution
// in counts, where total is the number of observed elements.
func Entropy[K comparable](counts map[K]int, total int) float64 {
	if total == 0 {
		return 0
	}
	var h float64
	n := float64(total)
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// Ratio returns hits as a fraction of n, or 0 when n is 0.
func Ratio(hits, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(hits) / float64(n)
}

// LooksLikeBase64 reports whether s, trimmed of surrounding whitespace, has the
// shape of padded standard base64: alphabet A-Za-z0-9+/ with up to two trailing
// '=' and a length divisible by 4. Nothing is decoded, so any alphanumeric string
// of length 4k matches and unpadded or URL-safe base64 does not.
func LooksLikeBase64(s string) bool {
	t := strings.TrimSpace(s)
	return base64Shape.MatchString(t) && len(t)%4 == 0
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

package matching

import (
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
)

// Fixed fuzzy thresholds on a 0..100 scale.
const (
	SkillThreshold         = 80.0
	CertificationThreshold = 70.0
)

// Ratio is the normalized InDel similarity of a and b: 2*LCS/(len(a)+len(b))*100,
// with lengths counted in runes. Two empty strings are identical (100).
func Ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	return 200 * float64(edlib.LCS(a, b)) / float64(total)
}

// PartialRatio is the best Ratio between the shorter string and any
// equally long (or edge-truncated) window of the longer one.
func PartialRatio(a, b string) float64 {
	s, l := []rune(a), []rune(b)
	if len(s) == 0 || len(l) == 0 {
		return 0
	}
	if len(s) > len(l) {
		s, l = l, s
	}
	best := partialBest(s, l)
	if len(s) == len(l) {
		if alt := partialBest(l, s); alt > best {
			best = alt
		}
	}
	return best
}

func partialBest(s, l []rune) float64 {
	m, n := len(s), len(l)
	short := string(s)
	best := 0.0
	consider := func(w []rune) bool {
		if r := Ratio(short, string(w)); r > best {
			best = r
		}
		return best == 100
	}
	for i := 1; i < m; i++ {
		if consider(l[:i]) {
			return best
		}
	}
	for i := 0; i+m <= n; i++ {
		if consider(l[i : i+m]) {
			return best
		}
	}
	for i := m - 1; i >= 1; i-- {
		if consider(l[n-i:]) {
			return best
		}
	}
	return best
}

// FuzzyContains reports whether needle matches any candidate by Ratio or
// PartialRatio at or above threshold. Inputs are expected lowercased.
func FuzzyContains(needle string, candidates []string, threshold float64) bool {
	for _, c := range candidates {
		if Ratio(needle, c) >= threshold || PartialRatio(needle, c) >= threshold {
			return true
		}
	}
	return false
}

// normalizeList lowercases, trims, drops empties and de-duplicates in first-seen order.
func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

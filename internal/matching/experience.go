package matching

import (
	"regexp"
	"sort"
	"strconv"
)

var (
	experiencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+)[+\s]*years?\s+(?:of\s+)?experience`),
		regexp.MustCompile(`(?i)experience[:\s]+(\d+)[+\s]*years?`),
		regexp.MustCompile(`(?i)(\d+)[+\s]*years?\s+working`),
	}
	yearPattern = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
)

// ExtractExperienceYears finds a candidate's years of experience in free text.
// Explicit phrases win; otherwise the span between the earliest and latest
// distinct four-digit years is used. Returns 0 when nothing is found.
func ExtractExperienceYears(text string) int {
	for _, re := range experiencePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
	}
	seen := map[int]struct{}{}
	var years []int
	for _, y := range yearPattern.FindAllString(text, -1) {
		n, _ := strconv.Atoi(y)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		years = append(years, n)
	}
	if len(years) < 2 {
		return 0
	}
	sort.Ints(years)
	return years[len(years)-1] - years[0]
}

// ExperienceScore grades years against the accepted [minYears, maxYears] range.
func ExperienceScore(years, minYears, maxYears int) float64 {
	switch {
	case years >= minYears && years <= maxYears:
		return 100
	case years > maxYears:
		return 80
	case minYears <= 0:
		return 100
	default:
		return float64(years) / float64(minYears) * 100
	}
}

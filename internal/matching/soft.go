package matching

import (
	"strings"
	"unicode"

	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
	"github.com/fairyhunter13/ai-resume-matcher/pkg/vecmath"
)

// Soft-match component weights.
const (
	WeightTFIDF     = 0.3
	WeightEmbedding = 0.5
	WeightKeywords  = 0.2
)

// MaxKeywords bounds the job keywords considered for keyword density.
const MaxKeywords = 20

// SoftMatch scores the free text and embeddings of a resume against a job.
// Missing embeddings contribute 0 to the semantic component.
func SoftMatch(r domain.ResumeRecord, j domain.JobRecord) domain.SoftMatchResult {
	res := domain.SoftMatchResult{
		TFIDFSimilarity:     TFIDFCosine(documentText(r.ProcessedText, r.RawText), documentText(j.ProcessedText, j.RawText)) * 100,
		EmbeddingSimilarity: EmbeddingSimilarity(r.Embedding, j.Embedding),
		KeywordDensity:      KeywordDensity(j.RawText, r.RawText),
	}
	res.OverallSoftMatch = res.TFIDFSimilarity*WeightTFIDF +
		res.EmbeddingSimilarity*WeightEmbedding +
		res.KeywordDensity*WeightKeywords
	return res
}

// EmbeddingSimilarity is the cosine of two embeddings on a 0..100 scale;
// 0 when either is absent, zero or of a different dimension.
func EmbeddingSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return vecmath.Percent(vecmath.Cosine(a, b))
}

// ExtractKeywords returns up to limit distinct lowercase words longer than three
// runes from text, in first-seen order, with punctuation and stop words removed.
func ExtractKeywords(text string, limit int) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if len(out) >= limit {
			break
		}
		w = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
				return r
			}
			return -1
		}, w)
		if len([]rune(w)) <= 3 {
			continue
		}
		if _, stop := keywordStopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// KeywordDensity is the percentage of the job's keywords that occur as
// substrings of the lowercased resume text. No keywords yields 0.
func KeywordDensity(jobText, resumeText string) float64 {
	keywords := ExtractKeywords(jobText, MaxKeywords)
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(resumeText)
	hits := 0
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords)) * 100
}

func documentText(processed, raw string) string {
	if strings.TrimSpace(processed) != "" {
		return processed
	}
	return raw
}

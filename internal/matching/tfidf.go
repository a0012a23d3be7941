package matching

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// MaxTFIDFFeatures caps the vocabulary fitted over a document pair.
const MaxTFIDFFeatures = 2000

// tokenize lowercases text and splits it into word tokens of at least two runes.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

// terms returns the unigrams and bigrams of a document after stop word removal.
func terms(text string) []string {
	toks := tokenize(text)
	kept := make([]string, 0, len(toks))
	for _, t := range toks {
		if _, stop := englishStopWords[t]; !stop {
			kept = append(kept, t)
		}
	}
	out := make([]string, 0, len(kept)*2)
	out = append(out, kept...)
	for i := 0; i+1 < len(kept); i++ {
		out = append(out, kept[i]+" "+kept[i+1])
	}
	return out
}

// TFIDFCosine fits a TF-IDF model on exactly the two documents and returns
// their cosine similarity in [0,1]. An empty vocabulary yields 0.
func TFIDFCosine(docA, docB string) float64 {
	docs := [2][]string{terms(docA), terms(docB)}
	counts := [2]map[string]float64{{}, {}}
	total := map[string]int{}
	df := map[string]int{}
	for i, d := range docs {
		for _, t := range d {
			if counts[i][t] == 0 {
				df[t]++
			}
			counts[i][t]++
			total[t]++
		}
	}
	if len(total) == 0 {
		return 0
	}

	vocab := make([]string, 0, len(total))
	for t := range total {
		vocab = append(vocab, t)
	}
	if len(vocab) > MaxTFIDFFeatures {
		sort.Slice(vocab, func(i, j int) bool {
			if total[vocab[i]] != total[vocab[j]] {
				return total[vocab[i]] > total[vocab[j]]
			}
			return vocab[i] < vocab[j]
		})
		vocab = vocab[:MaxTFIDFFeatures]
	}
	// Fixed iteration order keeps float summation bit-identical across calls.
	sort.Strings(vocab)

	const n = 2.0
	var dot, normA, normB float64
	for _, t := range vocab {
		idf := math.Log((1+n)/(1+float64(df[t]))) + 1
		a := counts[0][t] * idf
		b := counts[1][t] * idf
		dot += a * b
		normA += a * a
		normB += b * b
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	c := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(0, math.Min(1, c))
}

package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
)

func TestTFIDFCosine(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 1.0, TFIDFCosine("golang microservices kubernetes", "golang microservices kubernetes"), 1e-9)
	assert.Equal(t, 0.0, TFIDFCosine("golang backend", "pastry chef"))
	assert.Equal(t, 0.0, TFIDFCosine("the and of", "is was were"), "stop words only leave an empty vocabulary")
	assert.Equal(t, 0.0, TFIDFCosine("", ""))

	partial := TFIDFCosine("python developer with sql", "senior python engineer")
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, 1.0)
}

func TestTerms_BigramsSkipStopWords(t *testing.T) {
	t.Parallel()
	got := terms("Experience with Docker and the Kubernetes API")
	assert.Equal(t, []string{"experience", "docker", "kubernetes", "api", "experience docker", "docker kubernetes", "kubernetes api"}, got)
}

func TestExtractKeywords(t *testing.T) {
	t.Parallel()
	got := ExtractKeywords("We need Python, Python and SQL! Docker/Kubernetes would help; cloud.", MaxKeywords)
	assert.Equal(t, []string{"need", "python", "dockerkubernetes", "help", "cloud"}, got)

	many := ""
	for i := 0; i < 30; i++ {
		many += "keyword" + string(rune('a'+i%26)) + string(rune('a'+i/26)) + " "
	}
	assert.Len(t, ExtractKeywords(many, MaxKeywords), MaxKeywords)
}

func TestKeywordDensity(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, KeywordDensity("a an the", "anything"))
	assert.InDelta(t, 50.0, KeywordDensity("python docker", "Senior PYTHON developer"), 1e-9)
	assert.InDelta(t, 100.0, KeywordDensity("python docker", "python and docker"), 1e-9)
}

func TestEmbeddingSimilarity(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, EmbeddingSimilarity(nil, []float32{1, 0}))
	assert.Equal(t, 0.0, EmbeddingSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.InDelta(t, 100.0, EmbeddingSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.Equal(t, 0.0, EmbeddingSimilarity([]float32{1, 0}, []float32{-1, 0}))
}

func TestSoftMatch(t *testing.T) {
	t.Parallel()
	r := domain.ResumeRecord{
		RawText:       "Python developer, built Docker pipelines",
		ProcessedText: "python developer built docker pipelines",
		Embedding:     []float32{1, 0, 0},
	}
	j := domain.JobRecord{
		RawText:       "Python Docker",
		ProcessedText: "python docker",
		Embedding:     []float32{1, 0, 0},
	}
	res := SoftMatch(r, j)
	assert.InDelta(t, 100.0, res.EmbeddingSimilarity, 1e-6)
	assert.InDelta(t, 100.0, res.KeywordDensity, 1e-9)
	assert.Greater(t, res.TFIDFSimilarity, 0.0)
	want := res.TFIDFSimilarity*WeightTFIDF + res.EmbeddingSimilarity*WeightEmbedding + res.KeywordDensity*WeightKeywords
	assert.InDelta(t, want, res.OverallSoftMatch, 1e-9)
	assert.Equal(t, res, SoftMatch(r, j))
}

func TestSoftMatch_MissingEmbeddings(t *testing.T) {
	t.Parallel()
	res := SoftMatch(domain.ResumeRecord{RawText: "x"}, domain.JobRecord{})
	assert.Equal(t, 0.0, res.EmbeddingSimilarity)
	assert.Equal(t, 0.0, res.KeywordDensity)
	assert.Equal(t, 0.0, res.OverallSoftMatch)
}

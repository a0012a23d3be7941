package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
)

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(Options{
		HardWeight:      DefaultHardWeight,
		SoftWeight:      DefaultSoftWeight,
		HighThreshold:   DefaultHighThreshold,
		MediumThreshold: DefaultMediumThreshold,
	})
	require.NoError(t, err)
	return e
}

type fixedEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	return f.vec, f.err
}

func TestVerdictBoundaries(t *testing.T) {
	t.Parallel()
	e := defaultEngine(t)
	tests := []struct {
		score float64
		want  domain.Verdict
	}{
		{100, domain.VerdictHigh},
		{75.0, domain.VerdictHigh},
		{74.999, domain.VerdictMedium},
		{50.0, domain.VerdictMedium},
		{49.999, domain.VerdictLow},
		{0, domain.VerdictLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.Verdict(tt.score), "score %v", tt.score)
	}
}

func TestNewEngine_Renormalizes(t *testing.T) {
	t.Parallel()
	e, err := NewEngine(Options{HardWeight: 2, SoftWeight: 6, HighThreshold: 75, MediumThreshold: 50})
	require.NoError(t, err)
	hw, sw := e.Weights()
	assert.InDelta(t, 0.25, hw, 1e-12)
	assert.InDelta(t, 0.75, sw, 1e-12)

	e = defaultEngine(t)
	hw, sw = e.Weights()
	assert.Equal(t, 0.4, hw)
	assert.Equal(t, 0.6, sw)
}

func TestNewEngine_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		opts Options
	}{
		{"negative", Options{HardWeight: -1, SoftWeight: 1, HighThreshold: 75, MediumThreshold: 50}},
		{"zero sum", Options{HighThreshold: 75, MediumThreshold: 50}},
		{"inverted thresholds", Options{HardWeight: 1, SoftWeight: 1, HighThreshold: 40, MediumThreshold: 50}},
	}
	for _, tt := range tests {
		_, err := NewEngine(tt.opts)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, tt.name)
	}
}

func TestEvaluate_RangeAndFields(t *testing.T) {
	t.Parallel()
	e := defaultEngine(t)
	r := domain.ResumeRecord{
		ID:            "r1",
		Skills:        []string{"Python", "AWS"},
		RawText:       "Python engineer with 4 years of experience on AWS",
		ProcessedText: "python engineer with 4 years of experience on aws",
		Embedding:     []float32{0.6, 0.8},
	}
	j := domain.JobRecord{
		ID:             "j1",
		RequiredSkills: []string{"python", "sql"},
		OptionalSkills: []string{"docker"},
		MinExperience:  2,
		RawText:        "Python SQL engineer",
		ProcessedText:  "python sql engineer",
		Embedding:      []float32{0.6, 0.8},
	}
	ev := e.Evaluate(context.Background(), r, j)
	assert.Equal(t, "r1", ev.ResumeID)
	assert.Equal(t, "j1", ev.JobID)
	assert.GreaterOrEqual(t, ev.RelevanceScore, 0.0)
	assert.LessOrEqual(t, ev.RelevanceScore, 100.0)
	assert.InDelta(t, ev.HardMatchScore*0.4+ev.SoftMatchScore*0.6, ev.RelevanceScore, 1e-9)
	assert.InDelta(t, 35.0, ev.Analysis.Hard.SkillsMatch, 1e-9)
	assert.Equal(t, []string{"python"}, ev.MatchedSkills)
	assert.Equal(t, []string{"sql"}, ev.MissingSkills)
	assert.Equal(t, []string{"Matched skills: python"}, ev.Feedback.Strengths)
	assert.Equal(t, []string{"Missing key skills: sql"}, ev.Feedback.Improvements)
	assert.Len(t, ev.Feedback.Suggestions, 1)
	assert.Equal(t, e.Verdict(ev.RelevanceScore), ev.Verdict)
	assert.Equal(t, ev, e.Evaluate(context.Background(), r, j))
}

func TestEvaluate_EmbedsMissingVectorsWithoutMutatingInput(t *testing.T) {
	t.Parallel()
	emb := &fixedEmbedder{vec: []float32{1, 0}}
	e, err := NewEngine(Options{HardWeight: 0.4, SoftWeight: 0.6, HighThreshold: 75, MediumThreshold: 50, Embedder: emb})
	require.NoError(t, err)
	r := domain.ResumeRecord{ID: "r", ProcessedText: "golang"}
	j := domain.JobRecord{ID: "j", RawText: "golang"}
	ev := e.Evaluate(context.Background(), r, j)
	assert.Equal(t, 2, emb.calls)
	assert.Nil(t, r.Embedding)
	assert.Nil(t, j.Embedding)
	assert.InDelta(t, 100.0, ev.Analysis.Soft.EmbeddingSimilarity, 1e-6)
}

func TestEvaluate_EmbedFailureDegrades(t *testing.T) {
	t.Parallel()
	emb := &fixedEmbedder{err: errors.New("encoder down")}
	e, err := NewEngine(Options{HardWeight: 0.4, SoftWeight: 0.6, HighThreshold: 75, MediumThreshold: 50, Embedder: emb})
	require.NoError(t, err)
	ev := e.Evaluate(context.Background(), domain.ResumeRecord{RawText: "x"}, domain.JobRecord{RawText: "y"})
	assert.Equal(t, 0.0, ev.Analysis.Soft.EmbeddingSimilarity)
}

func TestBatchEvaluate_SortsDescending(t *testing.T) {
	t.Parallel()
	e := defaultEngine(t)
	j := domain.JobRecord{ID: "j", RequiredSkills: []string{"go", "sql", "redis"}, Embedding: []float32{1, 0}}
	resumes := []domain.ResumeRecord{
		{ID: "weak", Skills: []string{"cobol"}, Embedding: []float32{0, 1}},
		{ID: "strong", Skills: []string{"go", "sql", "redis"}, Embedding: []float32{1, 0}},
		{ID: "mid", Skills: []string{"go"}, Embedding: []float32{1, 1}},
	}
	evs := e.BatchEvaluate(context.Background(), resumes, j)
	require.Len(t, evs, 3)
	assert.Equal(t, []string{"strong", "mid", "weak"}, []string{evs[0].ResumeID, evs[1].ResumeID, evs[2].ResumeID})
}

func TestSortByRelevance_StableTies(t *testing.T) {
	t.Parallel()
	evs := []domain.Evaluation{
		{ResumeID: "a", RelevanceScore: 42},
		{ResumeID: "b", RelevanceScore: 91},
		{ResumeID: "c", RelevanceScore: 67},
		{ResumeID: "d", RelevanceScore: 67},
	}
	SortByRelevance(evs)
	got := make([]string, 0, len(evs))
	for _, ev := range evs {
		got = append(got, ev.ResumeID)
	}
	assert.Equal(t, []string{"b", "c", "d", "a"}, got)
}

func TestClamp(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 100.0, Clamp(130, 0, 100))
	assert.Equal(t, 0.0, Clamp(-3, 0, 100))
	assert.Equal(t, 0.0, Clamp(nan(), 0, 100))
	assert.Equal(t, 42.5, Clamp(42.5, 0, 100))
}

func TestBuildFeedback_LimitsToSix(t *testing.T) {
	t.Parallel()
	fb := BuildFeedback([]string{"a", "b", "c", "d", "e", "f", "g"}, nil)
	assert.Equal(t, []string{"Matched skills: a, b, c, d, e, f"}, fb.Strengths)
	assert.Empty(t, fb.Improvements)
	assert.Empty(t, fb.Suggestions)
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}

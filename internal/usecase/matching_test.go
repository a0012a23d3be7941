package usecase_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
	"github.com/fairyhunter13/ai-resume-matcher/internal/domain/mocks"
	"github.com/fairyhunter13/ai-resume-matcher/internal/embedding"
	"github.com/fairyhunter13/ai-resume-matcher/internal/scoring"
	"github.com/fairyhunter13/ai-resume-matcher/internal/usecase"
)

type storeCall struct {
	ns       domain.Namespace
	recordID string
	text     string
	metadata map[string]any
}

type fakeVectors struct {
	stored    []storeCall
	storeErr  error
	recovery  embedding.Recovery
	neighbors []domain.Neighbor
	queries   []int
	embeds    int
	replaced  bool
	deleted   []string
}

func (f *fakeVectors) Delete(_ context.Context, ns domain.Namespace, recordID string) error {
	f.deleted = append(f.deleted, string(ns)+"/"+recordID)
	return nil
}

func (f *fakeVectors) Embed(_ context.Context, _ string) ([]float32, error) {
	f.embeds++
	return []float32{1, 0}, nil
}

func (f *fakeVectors) Store(_ context.Context, ns domain.Namespace, recordID, text string, metadata map[string]any) (embedding.StoreResult, error) {
	if f.storeErr != nil {
		return embedding.StoreResult{}, f.storeErr
	}
	f.stored = append(f.stored, storeCall{ns, recordID, text, metadata})
	return embedding.StoreResult{ID: embedding.StableID(recordID), Vector: []float32{0.6, 0.8}, Recovery: f.recovery, Replaced: f.replaced}, nil
}

func (f *fakeVectors) QueryNearest(_ context.Context, _ domain.Namespace, _ []float32, k int) ([]domain.Neighbor, error) {
	f.queries = append(f.queries, k)
	if len(f.neighbors) > k {
		return f.neighbors[:k], nil
	}
	return f.neighbors, nil
}

type fixture struct {
	resumes *mocks.MockResumeRepository
	jobs    *mocks.MockJobRepository
	evals   *mocks.MockEvaluationRepository
	vectors *fakeVectors
	svc     usecase.MatchingService
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	engine, err := scoring.NewEngine(scoring.Options{HardWeight: 0.4, SoftWeight: 0.6, HighThreshold: 75, MediumThreshold: 50})
	require.NoError(t, err)
	f := fixture{
		resumes: &mocks.MockResumeRepository{},
		jobs:    &mocks.MockJobRepository{},
		evals:   &mocks.MockEvaluationRepository{},
		vectors: &fakeVectors{},
	}
	f.svc = usecase.NewMatchingService(f.resumes, f.jobs, f.evals, f.vectors, engine, 0)
	return f
}

func (f fixture) assertExpectations(t *testing.T) {
	f.resumes.AssertExpectations(t)
	f.jobs.AssertExpectations(t)
	f.evals.AssertExpectations(t)
}

func saveEvaluations(m *mocks.MockEvaluationRepository) {
	m.On("Create", mock.Anything, mock.AnythingOfType("domain.Evaluation")).
		Return(func(_ domain.Context, e domain.Evaluation) domain.Evaluation {
			e.ID = "ev-" + e.ResumeID
			return e
		}, nil)
}

func TestNewMatchingService_DefaultTopK(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	assert.Equal(t, usecase.DefaultTopK, f.svc.TopK)
}

func TestIngestResume(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	name := "Ada Lovelace"
	f.resumes.On("Create", mock.Anything, mock.MatchedBy(func(r domain.ResumeRecord) bool {
		return r.ID != "" && r.ProcessedText == "senior go engineer aws" && len(r.Embedding) == 2
	})).Return("ignored", nil)

	got, err := f.svc.IngestResume(context.Background(), domain.ResumeRecord{CandidateName: &name, RawText: "Senior Go Engineer, AWS!"})
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, []float32{0.6, 0.8}, got.Embedding)
	require.Len(t, f.vectors.stored, 1)
	assert.Equal(t, domain.NamespaceResume, f.vectors.stored[0].ns)
	assert.Equal(t, got.ID, f.vectors.stored[0].recordID)
	assert.Equal(t, map[string]any{"name": name}, f.vectors.stored[0].metadata)
	f.assertExpectations(t)
}

func TestIngestResume_Errors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, err := f.svc.IngestResume(context.Background(), domain.ResumeRecord{RawText: " \x00 "})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	f.vectors.storeErr = fmt.Errorf("op=embedding.Store: %w: disk full", domain.ErrRetryable)
	_, err = f.svc.IngestResume(context.Background(), domain.ResumeRecord{ID: "r1", RawText: "python"})
	assert.ErrorIs(t, err, domain.ErrRetryable)
	f.assertExpectations(t)
}

func TestIngest_RepositoryFailureDropsNewIndexEntry(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.resumes.On("Create", mock.Anything, mock.Anything).Return("", assert.AnError)
	f.jobs.On("Create", mock.Anything, mock.Anything).Return("", assert.AnError)

	_, err := f.svc.IngestResume(context.Background(), domain.ResumeRecord{ID: "r1", RawText: "python"})
	assert.ErrorIs(t, err, assert.AnError)
	_, err = f.svc.IngestJob(context.Background(), domain.JobRecord{ID: "j1", RawText: "python"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"resume/r1", "job/j1"}, f.vectors.deleted)

	f.vectors.replaced = true
	_, err = f.svc.IngestResume(context.Background(), domain.ResumeRecord{ID: "r1", RawText: "python go"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Len(t, f.vectors.deleted, 2, "replaced entries are kept")
	f.assertExpectations(t)
}

func TestListResumesAndJobs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		limit     int
		resumeArg int
		jobArg    int
	}{
		{"defaults", 0, usecase.DefaultResumeListLimit, usecase.DefaultJobListLimit},
		{"explicit", 5, 5, 5},
		{"capped", 10_000, usecase.MaxListLimit, usecase.MaxListLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.resumes.On("List", mock.Anything, tt.resumeArg).Return([]domain.ResumeRecord{{ID: "r1"}}, nil)
			f.jobs.On("List", mock.Anything, tt.jobArg).Return([]domain.JobRecord{{ID: "j1"}}, nil)

			rs, err := f.svc.ListResumes(context.Background(), tt.limit)
			require.NoError(t, err)
			assert.Equal(t, "r1", rs[0].ID)
			js, err := f.svc.ListJobs(context.Background(), tt.limit)
			require.NoError(t, err)
			assert.Equal(t, "j1", js[0].ID)
			f.assertExpectations(t)
		})
	}

	f := newFixture(t)
	f.jobs.On("List", mock.Anything, usecase.DefaultJobListLimit).Return(nil, assert.AnError)
	_, err := f.svc.ListJobs(context.Background(), 0)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestIngestJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.vectors.recovery = embedding.RecoveryRebuilt
	f.jobs.On("Create", mock.Anything, mock.MatchedBy(func(j domain.JobRecord) bool { return j.ID == "j1" })).Return("j1", nil)

	got, err := f.svc.IngestJob(context.Background(), domain.JobRecord{ID: "j1", Title: "SRE", Company: "Acme", RawText: "SRE with Kubernetes"})
	require.NoError(t, err)
	assert.Equal(t, "sre with kubernetes", got.ProcessedText)
	assert.Equal(t, map[string]any{"title": "SRE", "company": "Acme"}, f.vectors.stored[0].metadata)

	neg := -1
	_, err = f.svc.IngestJob(context.Background(), domain.JobRecord{RawText: "x", MaxExperience: &neg})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	f.assertExpectations(t)
}

func TestEvaluateOne(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.resumes.On("Get", mock.Anything, "r1").Return(domain.ResumeRecord{ID: "r1", Skills: []string{"Python", "AWS"}, Embedding: []float32{1, 0}}, nil)
	f.jobs.On("Get", mock.Anything, "j1").Return(domain.JobRecord{
		ID: "j1", RequiredSkills: []string{"python", "sql"}, OptionalSkills: []string{"docker"}, Embedding: []float32{1, 0},
	}, nil)
	saveEvaluations(f.evals)

	ev, err := f.svc.EvaluateOne(context.Background(), "r1", "j1")
	require.NoError(t, err)
	assert.Equal(t, "ev-r1", ev.ID)
	assert.InDelta(t, 35.0, ev.Analysis.Hard.SkillsMatch, 1e-9)
	assert.Equal(t, []string{"sql"}, ev.MissingSkills)
	f.assertExpectations(t)
}

func TestEvaluateOne_NotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.resumes.On("Get", mock.Anything, "nope").Return(domain.ResumeRecord{}, domain.ErrNotFound)
	_, err := f.svc.EvaluateOne(context.Background(), "nope", "j1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.EvaluateOne(context.Background(), "", "j1")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	f.assertExpectations(t)
}

func TestEvaluateBatch_DiscoversCandidates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	job := domain.JobRecord{ID: "j1", RequiredSkills: []string{"go", "sql", "redis"}, Embedding: []float32{1, 0}}
	f.jobs.On("Get", mock.Anything, "j1").Return(job, nil)
	f.vectors.neighbors = []domain.Neighbor{{RecordID: "weak"}, {RecordID: "strong"}, {RecordID: "gone"}}
	f.resumes.On("GetMany", mock.Anything, []string{"weak", "strong", "gone"}).Return([]domain.ResumeRecord{
		{ID: "weak", Skills: []string{"cobol"}, Embedding: []float32{0, 1}},
		{ID: "strong", Skills: []string{"go", "sql", "redis"}, Embedding: []float32{1, 0}},
	}, nil)
	saveEvaluations(f.evals)

	evs, err := f.svc.EvaluateBatch(context.Background(), "j1", nil, 0)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "strong", evs[0].ResumeID)
	assert.Equal(t, "weak", evs[1].ResumeID)
	assert.GreaterOrEqual(t, evs[0].RelevanceScore, evs[1].RelevanceScore)
	assert.Equal(t, []int{usecase.DefaultTopK}, f.vectors.queries)
	f.evals.AssertNumberOfCalls(t, "Create", 2)
	f.assertExpectations(t)
}

func TestEvaluateBatch_ExplicitIDsAndEmptyIndex(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.jobs.On("Get", mock.Anything, "j1").Return(domain.JobRecord{ID: "j1", RawText: "go developer"}, nil)
	f.resumes.On("GetMany", mock.Anything, []string{"r1"}).Return([]domain.ResumeRecord{{ID: "r1", RawText: "go developer"}}, nil)
	f.resumes.On("GetMany", mock.Anything, []string{}).Return([]domain.ResumeRecord{}, nil)
	saveEvaluations(f.evals)

	evs, err := f.svc.EvaluateBatch(context.Background(), "j1", []string{"r1"}, 0)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Empty(t, f.vectors.queries)

	evs, err = f.svc.EvaluateBatch(context.Background(), "j1", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, evs)
	assert.Equal(t, []int{5}, f.vectors.queries)
	assert.Equal(t, 1, f.vectors.embeds, "job without embedding is embedded for discovery")
	f.assertExpectations(t)
}

func TestJobEvaluations(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	minScore := 60.0
	high := domain.VerdictHigh
	f.jobs.On("Get", mock.Anything, "j1").Return(domain.JobRecord{ID: "j1"}, nil)
	f.jobs.On("Get", mock.Anything, "missing").Return(domain.JobRecord{}, domain.ErrNotFound)
	f.evals.On("ListByJob", mock.Anything, "j1", domain.EvaluationFilter{MinScore: &minScore, Verdict: &high}).
		Return([]domain.Evaluation{{ID: "e1", RelevanceScore: 91, Verdict: domain.VerdictHigh}}, nil)

	got, err := f.svc.JobEvaluations(context.Background(), "j1", &minScore, &high)
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = f.svc.JobEvaluations(context.Background(), "missing", nil, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	bad := domain.Verdict("GREAT")
	_, err = f.svc.JobEvaluations(context.Background(), "j1", nil, &bad)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	tooHigh := 101.0
	_, err = f.svc.JobEvaluations(context.Background(), "j1", &tooHigh, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	f.assertExpectations(t)
}

func TestCandidatesAndSimilarJobs(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.jobs.On("Get", mock.Anything, "j1").Return(domain.JobRecord{ID: "j1", Embedding: []float32{1, 0}}, nil)
	f.resumes.On("Get", mock.Anything, "r1").Return(domain.ResumeRecord{ID: "r1", Embedding: []float32{0, 1}}, nil)
	f.vectors.neighbors = []domain.Neighbor{{RecordID: "a", SimilarityScore: 90}, {RecordID: "b", SimilarityScore: 40}}

	cands, err := f.svc.CandidatesForJob(context.Background(), "j1", 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.Neighbor{{RecordID: "a", SimilarityScore: 90}}, cands)

	jobs, err := f.svc.SimilarJobs(context.Background(), "r1", 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.Equal(t, []int{1, usecase.DefaultTopK}, f.vectors.queries)
	assert.Zero(t, f.vectors.embeds)
	f.assertExpectations(t)
}

type fakeEvents struct {
	batches [][]domain.Evaluation
	err     error
}

func (f *fakeEvents) PublishEvaluations(_ context.Context, evs []domain.Evaluation) error {
	f.batches = append(f.batches, evs)
	return f.err
}

func TestEvaluations_PublishEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	events := &fakeEvents{}
	f.svc.Events = events
	f.resumes.On("Get", mock.Anything, "r1").Return(domain.ResumeRecord{ID: "r1", Skills: []string{"go"}, Embedding: []float32{1, 0}}, nil)
	f.jobs.On("Get", mock.Anything, "j1").Return(domain.JobRecord{ID: "j1", RequiredSkills: []string{"go"}, Embedding: []float32{1, 0}}, nil)
	f.resumes.On("GetMany", mock.Anything, []string{"r1"}).Return([]domain.ResumeRecord{{ID: "r1", Embedding: []float32{1, 0}}}, nil)
	saveEvaluations(f.evals)

	ev, err := f.svc.EvaluateOne(context.Background(), "r1", "j1")
	require.NoError(t, err)
	_, err = f.svc.EvaluateBatch(context.Background(), "j1", []string{"r1"}, 0)
	require.NoError(t, err)

	require.Len(t, events.batches, 2)
	assert.Equal(t, []domain.Evaluation{ev}, events.batches[0])
	assert.Equal(t, "ev-r1", events.batches[1][0].ID)

	events.err = fmt.Errorf("broker down")
	_, err = f.svc.EvaluateOne(context.Background(), "r1", "j1")
	assert.NoError(t, err, "publish failures do not fail a stored evaluation")
	f.assertExpectations(t)
}

package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-resume-matcher/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestResumeRepo_Create(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		rec     domain.ResumeRecord
		id      any
		execErr error
		wantErr string
	}{
		{name: "provided id", rec: domain.ResumeRecord{ID: "r-1", Skills: []string{"go"}}, id: "r-1"},
		{name: "generated id", rec: domain.ResumeRecord{Skills: []string{"go"}}, id: pgxmock.AnyArg()},
		{name: "database error", rec: domain.ResumeRecord{ID: "r-2"}, id: "r-2", execErr: assert.AnError, wantErr: "op=resume.create"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := newMock(t)
			exp := m.ExpectExec("INSERT INTO resumes").
				WithArgs(tt.id, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg())
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("INSERT", 1))
			}
			id, err := postgres.NewResumeRepo(m).Create(context.Background(), tt.rec)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, id)
				if tt.rec.ID != "" {
					assert.Equal(t, tt.rec.ID, id)
				}
			}
			assert.NoError(t, m.ExpectationsWereMet())
		})
	}
}

func TestResumeRepo_Get(t *testing.T) {
	t.Parallel()
	m := newMock(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	doc, err := json.Marshal(domain.ResumeRecord{Skills: []string{"python"}, RawText: "python dev", Embedding: []float32{0.5, 0.5}})
	require.NoError(t, err)
	m.ExpectQuery("SELECT doc, created_at FROM resumes").WithArgs("r-1").
		WillReturnRows(pgxmock.NewRows([]string{"doc", "created_at"}).AddRow(doc, created))
	m.ExpectQuery("SELECT doc, created_at FROM resumes").WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"doc", "created_at"}))

	repo := postgres.NewResumeRepo(m)
	rec, err := repo.Get(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, "r-1", rec.ID)
	assert.Equal(t, []string{"python"}, rec.Skills)
	assert.Equal(t, []float32{0.5, 0.5}, rec.Embedding)
	assert.Equal(t, created, rec.CreatedAt)

	_, err = repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestResumeRepo_GetManyKeepsRequestedOrder(t *testing.T) {
	t.Parallel()
	m := newMock(t)
	now := time.Now().UTC()
	docA, _ := json.Marshal(domain.ResumeRecord{RawText: "a"})
	docB, _ := json.Marshal(domain.ResumeRecord{RawText: "b"})
	m.ExpectQuery("SELECT id, doc, created_at FROM resumes").WithArgs([]string{"b", "x", "a"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "doc", "created_at"}).
			AddRow("a", docA, now).
			AddRow("b", docB, now))

	repo := postgres.NewResumeRepo(m)
	got, err := repo.GetMany(context.Background(), []string{"b", "x", "a"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)

	empty, err := repo.GetMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestRepos_List(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	resumeDoc, _ := json.Marshal(domain.ResumeRecord{RawText: "go engineer", Embedding: []float32{1, 0}})
	jobDoc, _ := json.Marshal(domain.JobRecord{Title: "Backend", Embedding: []float32{0, 1}})

	m := newMock(t)
	m.ExpectQuery(`SELECT id, doc, created_at FROM resumes ORDER BY created_at DESC`).WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "doc", "created_at"}).
			AddRow("r2", resumeDoc, now).
			AddRow("r1", resumeDoc, now.Add(-time.Hour)))
	m.ExpectQuery(`SELECT id, doc, created_at FROM jobs ORDER BY created_at DESC`).WithArgs(20).
		WillReturnRows(pgxmock.NewRows([]string{"id", "doc", "created_at"}).AddRow("j1", jobDoc, now))
	m.ExpectQuery(`SELECT id, doc, created_at FROM jobs ORDER BY created_at DESC`).WithArgs(5).
		WillReturnError(assert.AnError)

	resumes, err := postgres.NewResumeRepo(m).List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, resumes, 2)
	assert.Equal(t, "r2", resumes[0].ID)
	assert.Nil(t, resumes[0].Embedding)
	assert.Equal(t, "go engineer", resumes[1].RawText)

	jobs := postgres.NewJobRepo(m)
	got, err := jobs.List(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Backend", got[0].Title)
	assert.Nil(t, got[0].Embedding)
	_, err = jobs.List(context.Background(), 5)
	assert.ErrorIs(t, err, assert.AnError)

	_, err = jobs.List(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_CreateAndGet(t *testing.T) {
	t.Parallel()
	m := newMock(t)
	maxExp := 5
	job := domain.JobRecord{ID: "j-1", Title: "Backend Engineer", Company: "Acme", RequiredSkills: []string{"go"}, MinExperience: 2, MaxExperience: &maxExp}
	m.ExpectExec("INSERT INTO jobs").
		WithArgs("j-1", "Backend Engineer", "Acme", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	doc, err := json.Marshal(job)
	require.NoError(t, err)
	m.ExpectQuery("SELECT doc, created_at FROM jobs").WithArgs("j-1").
		WillReturnRows(pgxmock.NewRows([]string{"doc", "created_at"}).AddRow(doc, time.Now().UTC()))
	m.ExpectQuery("SELECT doc, created_at FROM jobs").WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"doc", "created_at"}))

	repo := postgres.NewJobRepo(m)
	id, err := repo.Create(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "j-1", id)

	got, err := repo.Get(context.Background(), "j-1")
	require.NoError(t, err)
	assert.Equal(t, job.RequiredSkills, got.RequiredSkills)
	require.NotNil(t, got.MaxExperience)
	assert.Equal(t, 5, *got.MaxExperience)

	_, err = repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestEvaluationRepo_Create(t *testing.T) {
	t.Parallel()
	m := newMock(t)
	m.ExpectExec("INSERT INTO evaluations").
		WithArgs(pgxmock.AnyArg(), "r-1", "j-1", 80.0, 70.0, 86.6, "HIGH",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	in := domain.Evaluation{ResumeID: "r-1", JobID: "j-1", RelevanceScore: 80, HardMatchScore: 70, SoftMatchScore: 86.6, Verdict: domain.VerdictHigh}
	out, err := postgres.NewEvaluationRepo(m).Create(context.Background(), in)
	require.NoError(t, err)
	assert.NotEmpty(t, out.ID)
	assert.False(t, out.CreatedAt.IsZero())
	assert.Equal(t, in.RelevanceScore, out.RelevanceScore)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestEvaluationRepo_ListByJob(t *testing.T) {
	t.Parallel()
	minScore := 60.0
	high := domain.VerdictHigh
	tests := []struct {
		name   string
		filter domain.EvaluationFilter
		query  string
		args   []any
	}{
		{"no filter", domain.EvaluationFilter{}, `WHERE job_id=\$1 ORDER BY`, []any{"j-1"}},
		{"min score", domain.EvaluationFilter{MinScore: &minScore}, `relevance_score >= \$2 ORDER BY`, []any{"j-1", 60.0}},
		{"both", domain.EvaluationFilter{MinScore: &minScore, Verdict: &high}, `relevance_score >= \$2 AND verdict = \$3`, []any{"j-1", 60.0, "HIGH"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := newMock(t)
			feedback, _ := json.Marshal(domain.Feedback{Strengths: []string{"Matched skills: go"}})
			analysis, _ := json.Marshal(domain.Analysis{Hard: domain.MatchResult{SkillsMatch: 70}})
			m.ExpectQuery(tt.query).WithArgs(tt.args...).
				WillReturnRows(pgxmock.NewRows([]string{"id", "resume_id", "job_id", "relevance_score", "hard_match_score", "soft_match_score",
					"verdict", "matched_skills", "missing_skills", "feedback", "analysis", "created_at"}).
					AddRow("e-1", "r-1", "j-1", 91.0, 90.0, 91.6, "HIGH", []byte(`["go"]`), []byte(`[]`), feedback, analysis, time.Now().UTC()))

			got, err := postgres.NewEvaluationRepo(m).ListByJob(context.Background(), "j-1", tt.filter)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, domain.VerdictHigh, got[0].Verdict)
			assert.Equal(t, []string{"go"}, got[0].MatchedSkills)
			assert.Equal(t, []string{}, got[0].MissingSkills)
			assert.Equal(t, 70.0, got[0].Analysis.Hard.SkillsMatch)
			assert.Equal(t, []string{"Matched skills: go"}, got[0].Feedback.Strengths)
			assert.NoError(t, m.ExpectationsWereMet())
		})
	}
}

func TestCleanupService(t *testing.T) {
	t.Parallel()
	m := newMock(t)
	m.ExpectExec("DELETE FROM evaluations").WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	svc := postgres.NewCleanupService(m, 0)
	assert.Equal(t, 90, svc.RetentionDays)
	n, err := svc.CleanupOldData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()
	m := newMock(t)
	m.ExpectExec("CREATE TABLE IF NOT EXISTS resumes").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, postgres.EnsureSchema(context.Background(), m))

	m.ExpectExec("CREATE TABLE").WillReturnError(assert.AnError)
	err := postgres.EnsureSchema(context.Background(), m)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, m.ExpectationsWereMet())
}

package postgres

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
)

// EvaluationRepo persists scored evaluations.
type EvaluationRepo struct{ Pool PgxPool }

// NewEvaluationRepo constructs an EvaluationRepo with the given pool.
func NewEvaluationRepo(p PgxPool) *EvaluationRepo { return &EvaluationRepo{Pool: p} }

// Create inserts e, assigning its ID and CreatedAt.
func (r *EvaluationRepo) Create(ctx domain.Context, e domain.Evaluation) (domain.Evaluation, error) {
	tracer := otel.Tracer("repo.evaluations")
	ctx, span := tracer.Start(ctx, "evaluations.Create")
	defer span.End()
	dbAttrs(span, "INSERT", "evaluations")

	e.ID = uuid.New().String()
	e.CreatedAt = time.Now().UTC()
	matched, missing, feedback, analysis, err := encodeEvaluation(e)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.create: %w", err)
	}
	q := `INSERT INTO evaluations (id, resume_id, job_id, relevance_score, hard_match_score, soft_match_score, verdict, matched_skills, missing_skills, feedback, analysis, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err = r.Pool.Exec(ctx, q, e.ID, e.ResumeID, e.JobID, e.RelevanceScore, e.HardMatchScore, e.SoftMatchScore,
		string(e.Verdict), matched, missing, feedback, analysis, e.CreatedAt)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.create: %w", err)
	}
	return e, nil
}

// ListByJob returns the evaluations stored for jobID, best first.
func (r *EvaluationRepo) ListByJob(ctx domain.Context, jobID string, f domain.EvaluationFilter) ([]domain.Evaluation, error) {
	tracer := otel.Tracer("repo.evaluations")
	ctx, span := tracer.Start(ctx, "evaluations.ListByJob")
	defer span.End()
	dbAttrs(span, "SELECT", "evaluations")

	var sb strings.Builder
	sb.WriteString(`SELECT id, resume_id, job_id, relevance_score, hard_match_score, soft_match_score, verdict, matched_skills, missing_skills, feedback, analysis, created_at FROM evaluations WHERE job_id=$1`)
	args := []any{jobID}
	if f.MinScore != nil {
		args = append(args, *f.MinScore)
		fmt.Fprintf(&sb, " AND relevance_score >= $%d", len(args))
	}
	if f.Verdict != nil {
		args = append(args, string(*f.Verdict))
		fmt.Fprintf(&sb, " AND verdict = $%d", len(args))
	}
	sb.WriteString(" ORDER BY relevance_score DESC, created_at ASC")

	rows, err := r.Pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("op=evaluation.list_by_job: %w", err)
	}
	defer rows.Close()
	out := []domain.Evaluation{}
	for rows.Next() {
		var e domain.Evaluation
		var verdict string
		var matched, missing, feedback, analysis []byte
		if err := rows.Scan(&e.ID, &e.ResumeID, &e.JobID, &e.RelevanceScore, &e.HardMatchScore, &e.SoftMatchScore,
			&verdict, &matched, &missing, &feedback, &analysis, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=evaluation.list_by_job: %w", err)
		}
		e.Verdict = domain.Verdict(verdict)
		if err := decodeEvaluation(&e, matched, missing, feedback, analysis); err != nil {
			return nil, fmt.Errorf("op=evaluation.list_by_job: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=evaluation.list_by_job: %w", err)
	}
	return out, nil
}

func encodeEvaluation(e domain.Evaluation) (matched, missing, feedback, analysis []byte, err error) {
	if matched, err = json.Marshal(nonNil(e.MatchedSkills)); err != nil {
		return
	}
	if missing, err = json.Marshal(nonNil(e.MissingSkills)); err != nil {
		return
	}
	if feedback, err = json.Marshal(e.Feedback); err != nil {
		return
	}
	analysis, err = json.Marshal(e.Analysis)
	return
}

func decodeEvaluation(e *domain.Evaluation, matched, missing, feedback, analysis []byte) error {
	for _, p := range []struct {
		b []byte
		v any
	}{{matched, &e.MatchedSkills}, {missing, &e.MissingSkills}, {feedback, &e.Feedback}, {analysis, &e.Analysis}} {
		if err := json.Unmarshal(p.b, p.v); err != nil {
			return err
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

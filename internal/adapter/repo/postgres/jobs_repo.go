package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
)

// JobRepo persists job descriptions as JSONB documents.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

// Create stores j and returns its id (generated when empty). Storing an
// existing id replaces the document.
func (r *JobRepo) Create(ctx domain.Context, j domain.JobRecord) (string, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Create")
	defer span.End()
	dbAttrs(span, "INSERT", "jobs")
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	doc, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("op=job.create: %w", err)
	}
	q := `INSERT INTO jobs (id, title, company, doc, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$5)
	ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, company=EXCLUDED.company, doc=EXCLUDED.doc, updated_at=EXCLUDED.updated_at`
	if _, err := r.Pool.Exec(ctx, q, j.ID, j.Title, j.Company, doc, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("op=job.create: %w", err)
	}
	return j.ID, nil
}

// Get loads a job by id.
func (r *JobRepo) Get(ctx domain.Context, id string) (domain.JobRecord, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Get")
	defer span.End()
	dbAttrs(span, "SELECT", "jobs")
	var doc []byte
	var created time.Time
	if err := r.Pool.QueryRow(ctx, `SELECT doc, created_at FROM jobs WHERE id=$1`, id).Scan(&doc, &created); err != nil {
		return domain.JobRecord{}, fmt.Errorf("op=job.get: %w", notFound(err))
	}
	var j domain.JobRecord
	if err := json.Unmarshal(doc, &j); err != nil {
		return domain.JobRecord{}, fmt.Errorf("op=job.get: %w", err)
	}
	j.ID, j.CreatedAt = id, created
	return j, nil
}

// List returns up to limit jobs, newest first, without embeddings.
func (r *JobRepo) List(ctx domain.Context, limit int) ([]domain.JobRecord, error) {
	ctx, span := otel.Tracer("repo.jobs").Start(ctx, "jobs.List")
	defer span.End()
	dbAttrs(span, "SELECT", "jobs")
	if limit <= 0 {
		return nil, fmt.Errorf("op=job.list: %w: limit must be positive", domain.ErrInvalidArgument)
	}
	rows, err := r.Pool.Query(ctx, `SELECT id, doc, created_at FROM jobs ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("op=job.list: %w", err)
	}
	defer rows.Close()
	out := []domain.JobRecord{}
	for rows.Next() {
		var id string
		var doc []byte
		var created time.Time
		if err := rows.Scan(&id, &doc, &created); err != nil {
			return nil, fmt.Errorf("op=job.list: %w", err)
		}
		var j domain.JobRecord
		if err := json.Unmarshal(doc, &j); err != nil {
			return nil, fmt.Errorf("op=job.list: %w", err)
		}
		j.ID, j.CreatedAt, j.Embedding = id, created, nil
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job.list: %w", err)
	}
	return out, nil
}

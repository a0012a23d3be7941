package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
)

// ResumeRepo persists resumes as JSONB documents.
type ResumeRepo struct{ Pool PgxPool }

// NewResumeRepo constructs a ResumeRepo with the given pool.
func NewResumeRepo(p PgxPool) *ResumeRepo { return &ResumeRepo{Pool: p} }

// Create stores r and returns its id (generated when empty). Storing an
// existing id replaces the document.
func (r *ResumeRepo) Create(ctx domain.Context, rec domain.ResumeRecord) (string, error) {
	ctx, span := otel.Tracer("repo.resumes").Start(ctx, "resumes.Create")
	defer span.End()
	dbAttrs(span, "INSERT", "resumes")
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("op=resume.create: %w", err)
	}
	now := time.Now().UTC()
	q := `INSERT INTO resumes (id, candidate_name, candidate_email, doc, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$5)
	ON CONFLICT (id) DO UPDATE SET candidate_name=EXCLUDED.candidate_name, candidate_email=EXCLUDED.candidate_email, doc=EXCLUDED.doc, updated_at=EXCLUDED.updated_at`
	if _, err := r.Pool.Exec(ctx, q, rec.ID, rec.CandidateName, rec.CandidateEmail, doc, now); err != nil {
		return "", fmt.Errorf("op=resume.create: %w", err)
	}
	return rec.ID, nil
}

// Get loads a resume by id.
func (r *ResumeRepo) Get(ctx domain.Context, id string) (domain.ResumeRecord, error) {
	ctx, span := otel.Tracer("repo.resumes").Start(ctx, "resumes.Get")
	defer span.End()
	dbAttrs(span, "SELECT", "resumes")
	var doc []byte
	var created time.Time
	if err := r.Pool.QueryRow(ctx, `SELECT doc, created_at FROM resumes WHERE id=$1`, id).Scan(&doc, &created); err != nil {
		return domain.ResumeRecord{}, fmt.Errorf("op=resume.get: %w", notFound(err))
	}
	var rec domain.ResumeRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return domain.ResumeRecord{}, fmt.Errorf("op=resume.get: %w", err)
	}
	rec.ID, rec.CreatedAt = id, created
	return rec, nil
}

// GetMany loads the resumes with the given ids in the requested order.
// Unknown ids are skipped.
func (r *ResumeRepo) GetMany(ctx domain.Context, ids []string) ([]domain.ResumeRecord, error) {
	ctx, span := otel.Tracer("repo.resumes").Start(ctx, "resumes.GetMany")
	defer span.End()
	dbAttrs(span, "SELECT", "resumes")
	if len(ids) == 0 {
		return []domain.ResumeRecord{}, nil
	}
	rows, err := r.Pool.Query(ctx, `SELECT id, doc, created_at FROM resumes WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("op=resume.get_many: %w", err)
	}
	defer rows.Close()
	byID := make(map[string]domain.ResumeRecord, len(ids))
	for rows.Next() {
		var id string
		var doc []byte
		var created time.Time
		if err := rows.Scan(&id, &doc, &created); err != nil {
			return nil, fmt.Errorf("op=resume.get_many: %w", err)
		}
		var rec domain.ResumeRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, fmt.Errorf("op=resume.get_many: %w", err)
		}
		rec.ID, rec.CreatedAt = id, created
		byID[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=resume.get_many: %w", err)
	}
	out := make([]domain.ResumeRecord, 0, len(byID))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			out = append(out, rec)
			delete(byID, id)
		}
	}
	return out, nil
}

// List returns up to limit resumes, newest first, without embeddings.
func (r *ResumeRepo) List(ctx domain.Context, limit int) ([]domain.ResumeRecord, error) {
	ctx, span := otel.Tracer("repo.resumes").Start(ctx, "resumes.List")
	defer span.End()
	dbAttrs(span, "SELECT", "resumes")
	if limit <= 0 {
		return nil, fmt.Errorf("op=resume.list: %w: limit must be positive", domain.ErrInvalidArgument)
	}
	rows, err := r.Pool.Query(ctx, `SELECT id, doc, created_at FROM resumes ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("op=resume.list: %w", err)
	}
	defer rows.Close()
	out := []domain.ResumeRecord{}
	for rows.Next() {
		var id string
		var doc []byte
		var created time.Time
		if err := rows.Scan(&id, &doc, &created); err != nil {
			return nil, fmt.Errorf("op=resume.list: %w", err)
		}
		var rec domain.ResumeRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, fmt.Errorf("op=resume.list: %w", err)
		}
		rec.ID, rec.CreatedAt, rec.Embedding = id, created, nil
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=resume.list: %w", err)
	}
	return out, nil
}

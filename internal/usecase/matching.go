// Package usecase contains application business logic services.
package usecase

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
	"github.com/fairyhunter13/ai-resume-matcher/internal/embedding"
	obsctx "github.com/fairyhunter13/ai-resume-matcher/internal/observability"
	"github.com/fairyhunter13/ai-resume-matcher/pkg/textx"
)

// DefaultTopK is the number of candidates discovered for a batch evaluation.
const DefaultTopK = 50

// Listing limits.
const (
	DefaultResumeListLimit = 10
	DefaultJobListLimit    = 20
	MaxListLimit           = 100
)

// VectorStore is the subset of the embedding store the service needs.
type VectorStore interface {
	Embed(ctx domain.Context, text string) ([]float32, error)
	Store(ctx domain.Context, ns domain.Namespace, recordID, text string, metadata map[string]any) (embedding.StoreResult, error)
	QueryNearest(ctx domain.Context, ns domain.Namespace, vector []float32, k int) ([]domain.Neighbor, error)
	Delete(ctx domain.Context, ns domain.Namespace, recordID string) error
}

// Evaluator scores resumes against jobs.
type Evaluator interface {
	Evaluate(ctx domain.Context, r domain.ResumeRecord, j domain.JobRecord) domain.Evaluation
	BatchEvaluate(ctx domain.Context, resumes []domain.ResumeRecord, j domain.JobRecord) []domain.Evaluation
}

// EventPublisher announces stored evaluations to downstream consumers.
type EventPublisher interface {
	PublishEvaluations(ctx domain.Context, evs []domain.Evaluation) error
}

// MatchingService ingests resumes and jobs, evaluates them and keeps the results.
type MatchingService struct {
	Resumes     domain.ResumeRepository
	Jobs        domain.JobRepository
	Evaluations domain.EvaluationRepository
	Vectors     VectorStore
	Engine      Evaluator
	TopK        int
	// Events is optional.
	Events EventPublisher
}

// NewMatchingService constructs a MatchingService with its dependencies.
func NewMatchingService(r domain.ResumeRepository, j domain.JobRepository, e domain.EvaluationRepository, v VectorStore, engine Evaluator, topK int) MatchingService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return MatchingService{Resumes: r, Jobs: j, Evaluations: e, Vectors: v, Engine: engine, TopK: topK}
}

// IngestResume indexes and stores a resume, returning it with its ID and embedding set.
func (s MatchingService) IngestResume(ctx domain.Context, r domain.ResumeRecord) (domain.ResumeRecord, error) {
	r.RawText = textx.SanitizeText(r.RawText)
	if r.RawText == "" {
		return domain.ResumeRecord{}, fmt.Errorf("%w: raw_text required", domain.ErrInvalidArgument)
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if strings.TrimSpace(r.ProcessedText) == "" {
		r.ProcessedText = textx.Normalize(r.RawText)
	}
	meta := map[string]any{}
	if r.CandidateName != nil {
		meta["name"] = *r.CandidateName
	}
	if r.CandidateEmail != nil {
		meta["email"] = *r.CandidateEmail
	}
	res, err := s.Vectors.Store(ctx, domain.NamespaceResume, r.ID, r.ProcessedText, meta)
	if err != nil {
		return domain.ResumeRecord{}, fmt.Errorf("op=matching.IngestResume: %w", err)
	}
	logRecovery(ctx, domain.NamespaceResume, r.ID, res.Recovery)
	r.Embedding = res.Vector
	if _, err := s.Resumes.Create(ctx, r); err != nil {
		s.dropOrphan(ctx, domain.NamespaceResume, r.ID, res.Replaced)
		return domain.ResumeRecord{}, fmt.Errorf("op=matching.IngestResume: %w", err)
	}
	return r, nil
}

// IngestJob indexes and stores a job, returning it with its ID and embedding set.
func (s MatchingService) IngestJob(ctx domain.Context, j domain.JobRecord) (domain.JobRecord, error) {
	j.RawText = textx.SanitizeText(j.RawText)
	if j.RawText == "" {
		return domain.JobRecord{}, fmt.Errorf("%w: raw_text required", domain.ErrInvalidArgument)
	}
	if j.MinExperience < 0 || (j.MaxExperience != nil && *j.MaxExperience < 0) {
		return domain.JobRecord{}, fmt.Errorf("%w: experience bounds must be non-negative", domain.ErrInvalidArgument)
	}
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if strings.TrimSpace(j.ProcessedText) == "" {
		j.ProcessedText = textx.Normalize(j.RawText)
	}
	res, err := s.Vectors.Store(ctx, domain.NamespaceJob, j.ID, j.ProcessedText, map[string]any{"title": j.Title, "company": j.Company})
	if err != nil {
		return domain.JobRecord{}, fmt.Errorf("op=matching.IngestJob: %w", err)
	}
	logRecovery(ctx, domain.NamespaceJob, j.ID, res.Recovery)
	j.Embedding = res.Vector
	if _, err := s.Jobs.Create(ctx, j); err != nil {
		s.dropOrphan(ctx, domain.NamespaceJob, j.ID, res.Replaced)
		return domain.JobRecord{}, fmt.Errorf("op=matching.IngestJob: %w", err)
	}
	return j, nil
}

// EvaluateOne scores a stored resume against a stored job and persists the evaluation.
func (s MatchingService) EvaluateOne(ctx domain.Context, resumeID, jobID string) (domain.Evaluation, error) {
	if resumeID == "" || jobID == "" {
		return domain.Evaluation{}, fmt.Errorf("%w: resume_id and job_id required", domain.ErrInvalidArgument)
	}
	r, err := s.Resumes.Get(ctx, resumeID)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=matching.EvaluateOne: %w", err)
	}
	j, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=matching.EvaluateOne: %w", err)
	}
	saved, err := s.Evaluations.Create(ctx, s.Engine.Evaluate(ctx, r, j))
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=matching.EvaluateOne: %w", err)
	}
	s.publish(ctx, []domain.Evaluation{saved})
	return saved, nil
}

// EvaluateBatch scores resumes against a job, best first. Without resumeIDs the
// candidates are the topK resumes nearest to the job embedding.
func (s MatchingService) EvaluateBatch(ctx domain.Context, jobID string, resumeIDs []string, topK int) ([]domain.Evaluation, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: job_id required", domain.ErrInvalidArgument)
	}
	ctx = obsctx.ContextWithAttrs(ctx, slog.String("job_id", jobID))
	j, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("op=matching.EvaluateBatch: %w", err)
	}
	if len(resumeIDs) == 0 {
		if topK <= 0 {
			topK = s.TopK
		}
		neighbors, err := s.nearest(ctx, domain.NamespaceResume, j.Embedding, j.ProcessedText, j.RawText, topK)
		if err != nil {
			return nil, fmt.Errorf("op=matching.EvaluateBatch: %w", err)
		}
		resumeIDs = make([]string, 0, len(neighbors))
		for _, n := range neighbors {
			resumeIDs = append(resumeIDs, n.RecordID)
		}
	}
	resumes, err := s.Resumes.GetMany(ctx, resumeIDs)
	if err != nil {
		return nil, fmt.Errorf("op=matching.EvaluateBatch: %w", err)
	}
	if len(resumes) < len(resumeIDs) {
		obsctx.LoggerFromContext(ctx).Warn("some resumes not found; skipped",
			slog.Int("requested", len(resumeIDs)), slog.Int("found", len(resumes)))
	}
	evs := s.Engine.BatchEvaluate(ctx, resumes, j)
	out := make([]domain.Evaluation, 0, len(evs))
	for _, ev := range evs {
		saved, err := s.Evaluations.Create(ctx, ev)
		if err != nil {
			return nil, fmt.Errorf("op=matching.EvaluateBatch: %w", err)
		}
		out = append(out, saved)
	}
	s.publish(ctx, out)
	return out, nil
}

// JobEvaluations lists the stored evaluations of a job, optionally filtered.
func (s MatchingService) JobEvaluations(ctx domain.Context, jobID string, minScore *float64, verdict *domain.Verdict) ([]domain.Evaluation, error) {
	if verdict != nil && !verdict.Valid() {
		return nil, fmt.Errorf("%w: unknown verdict %q", domain.ErrInvalidArgument, *verdict)
	}
	if minScore != nil && (*minScore < 0 || *minScore > 100) {
		return nil, fmt.Errorf("%w: min_score must be within 0..100", domain.ErrInvalidArgument)
	}
	if _, err := s.Jobs.Get(ctx, jobID); err != nil {
		return nil, fmt.Errorf("op=matching.JobEvaluations: %w", err)
	}
	evs, err := s.Evaluations.ListByJob(ctx, jobID, domain.EvaluationFilter{MinScore: minScore, Verdict: verdict})
	if err != nil {
		return nil, fmt.Errorf("op=matching.JobEvaluations: %w", err)
	}
	return evs, nil
}

// CandidatesForJob returns the k resumes nearest to a job without scoring them.
func (s MatchingService) CandidatesForJob(ctx domain.Context, jobID string, k int) ([]domain.Neighbor, error) {
	j, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("op=matching.CandidatesForJob: %w", err)
	}
	if k <= 0 {
		k = s.TopK
	}
	out, err := s.nearest(ctx, domain.NamespaceResume, j.Embedding, j.ProcessedText, j.RawText, k)
	if err != nil {
		return nil, fmt.Errorf("op=matching.CandidatesForJob: %w", err)
	}
	return out, nil
}

// SimilarJobs returns the k jobs nearest to a resume.
func (s MatchingService) SimilarJobs(ctx domain.Context, resumeID string, k int) ([]domain.Neighbor, error) {
	r, err := s.Resumes.Get(ctx, resumeID)
	if err != nil {
		return nil, fmt.Errorf("op=matching.SimilarJobs: %w", err)
	}
	if k <= 0 {
		k = s.TopK
	}
	out, err := s.nearest(ctx, domain.NamespaceJob, r.Embedding, r.ProcessedText, r.RawText, k)
	if err != nil {
		return nil, fmt.Errorf("op=matching.SimilarJobs: %w", err)
	}
	return out, nil
}

// nearest queries ns with vec, embedding the record text first when vec is absent.
func (s MatchingService) nearest(ctx domain.Context, ns domain.Namespace, vec []float32, processed, raw string, k int) ([]domain.Neighbor, error) {
	if vec == nil {
		text := processed
		if strings.TrimSpace(text) == "" {
			text = raw
		}
		var err error
		if vec, err = s.Vectors.Embed(ctx, text); err != nil {
			return nil, err
		}
	}
	return s.Vectors.QueryNearest(ctx, ns, vec, k)
}

// ListResumes returns the newest resumes. limit 0 means the default; the
// result never exceeds MaxListLimit.
func (s MatchingService) ListResumes(ctx domain.Context, limit int) ([]domain.ResumeRecord, error) {
	out, err := s.Resumes.List(ctx, listLimit(limit, DefaultResumeListLimit))
	if err != nil {
		return nil, fmt.Errorf("op=matching.ListResumes: %w", err)
	}
	return out, nil
}

// ListJobs returns the newest jobs, bounded like ListResumes.
func (s MatchingService) ListJobs(ctx domain.Context, limit int) ([]domain.JobRecord, error) {
	out, err := s.Jobs.List(ctx, listLimit(limit, DefaultJobListLimit))
	if err != nil {
		return nil, fmt.Errorf("op=matching.ListJobs: %w", err)
	}
	return out, nil
}

func listLimit(limit, def int) int {
	switch {
	case limit <= 0:
		return def
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

// dropOrphan removes a freshly indexed record whose database write failed so
// neighbour queries never return ids the repositories do not know. A replaced
// entry stays: the previous row still exists and now matches newer text.
func (s MatchingService) dropOrphan(ctx domain.Context, ns domain.Namespace, id string, replaced bool) {
	lg := obsctx.LoggerFromContext(ctx)
	if replaced {
		lg.Warn("record write failed after re-indexing; index holds the new text",
			slog.String("namespace", string(ns)), slog.String("record_id", id))
		return
	}
	if err := s.Vectors.Delete(ctx, ns, id); err != nil {
		lg.Error("removing orphaned index entry failed",
			slog.String("namespace", string(ns)), slog.String("record_id", id), slog.Any("error", err))
	}
}

// publish is best effort: evaluations are already stored when it runs.
func (s MatchingService) publish(ctx domain.Context, evs []domain.Evaluation) {
	if s.Events == nil || len(evs) == 0 {
		return
	}
	if err := s.Events.PublishEvaluations(ctx, evs); err != nil {
		obsctx.LoggerFromContext(ctx).Warn("publishing evaluation events failed",
			slog.Int("count", len(evs)), slog.Any("error", err))
	}
}

func logRecovery(ctx domain.Context, ns domain.Namespace, id string, rec embedding.Recovery) {
	if rec == embedding.RecoveryNone {
		return
	}
	obsctx.LoggerFromContext(ctx).Warn("vector index recovered during write",
		slog.String("namespace", string(ns)), slog.String("record_id", id), slog.String("recovery", rec.String()))
}

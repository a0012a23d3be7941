package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-resume-matcher/internal/config"
	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
)

// Matcher is the matching use case surface exposed over HTTP.
type Matcher interface {
	IngestResume(ctx context.Context, r domain.ResumeRecord) (domain.ResumeRecord, error)
	IngestJob(ctx context.Context, j domain.JobRecord) (domain.JobRecord, error)
	EvaluateOne(ctx context.Context, resumeID, jobID string) (domain.Evaluation, error)
	EvaluateBatch(ctx context.Context, jobID string, resumeIDs []string, topK int) ([]domain.Evaluation, error)
	JobEvaluations(ctx context.Context, jobID string, minScore *float64, verdict *domain.Verdict) ([]domain.Evaluation, error)
	CandidatesForJob(ctx context.Context, jobID string, k int) ([]domain.Neighbor, error)
	SimilarJobs(ctx context.Context, resumeID string, k int) ([]domain.Neighbor, error)
	ListResumes(ctx context.Context, limit int) ([]domain.ResumeRecord, error)
	ListJobs(ctx context.Context, limit int) ([]domain.JobRecord, error)
}

// Server aggregates handlers dependencies.
type Server struct {
	Cfg         config.Config
	Matching    Matcher
	DBCheck     func(ctx context.Context) error
	RedisCheck  func(ctx context.Context) error
	QdrantCheck func(ctx context.Context) error
}

// NewServer constructs a Server with its dependencies.
func NewServer(cfg config.Config, m Matcher, dbCheck, redisCheck, qdrantCheck func(ctx context.Context) error) *Server {
	return &Server{Cfg: cfg, Matching: m, DBCheck: dbCheck, RedisCheck: redisCheck, QdrantCheck: qdrantCheck}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New(validator.WithRequiredStructEnabled()) })
	return validate
}

type resumeRequest struct {
	ID             string                  `json:"id" validate:"omitempty,max=100"`
	CandidateName  *string                 `json:"candidate_name" validate:"omitempty,max=200"`
	CandidateEmail *string                 `json:"candidate_email" validate:"omitempty,email"`
	Skills         []string                `json:"skills" validate:"max=200,dive,required,max=100"`
	Education      []domain.EducationEntry `json:"education" validate:"max=50"`
	Certifications []string                `json:"certifications" validate:"max=100,dive,required,max=200"`
	RawText        string                  `json:"raw_text" validate:"required,max=200000"`
	ProcessedText  string                  `json:"processed_text" validate:"max=200000"`
}

type jobRequest struct {
	ID                     string   `json:"id" validate:"omitempty,max=100"`
	Title                  string   `json:"title" validate:"max=200"`
	Company                string   `json:"company" validate:"max=200"`
	RequiredSkills         []string `json:"required_skills" validate:"max=200,dive,required,max=100"`
	OptionalSkills         []string `json:"optional_skills" validate:"max=200,dive,required,max=100"`
	MinExperience          int      `json:"min_experience" validate:"min=0,max=60"`
	MaxExperience          *int     `json:"max_experience" validate:"omitempty,min=0,max=60"`
	EducationRequirements  []string `json:"education_requirements" validate:"max=50,dive,required,max=200"`
	CertificationsRequired []string `json:"certifications_required" validate:"max=100,dive,required,max=200"`
	RawText                string   `json:"raw_text" validate:"required,max=200000"`
	ProcessedText          string   `json:"processed_text" validate:"max=200000"`
}

type evaluateRequest struct {
	ResumeID string `json:"resume_id" validate:"required,max=100"`
	JobID    string `json:"job_id" validate:"required,max=100"`
}

type batchRequest struct {
	JobID     string   `json:"job_id" validate:"required,max=100"`
	ResumeIDs []string `json:"resume_ids" validate:"max=500,dive,required,max=100"`
	TopK      int      `json:"top_k" validate:"min=0,max=500"`
}

// acceptsJSON rejects requests whose Accept header excludes JSON with 406.
func acceptsJSON(w http.ResponseWriter, r *http.Request) bool {
	a := r.Header.Get("Accept")
	if a == "" || a == "*/*" || strings.Contains(a, "application/json") || strings.Contains(a, "application/*") {
		return true
	}
	writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{
		Code: "INVALID_ARGUMENT", Message: "not acceptable", Details: map[string]any{"accept": a},
	}})
	return false
}

// decodeAndValidate reads a JSON body into dst and runs struct validation,
// writing the error response itself when either step fails.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeTooLarge(w, mbe.Limit)
			return false
		}
		writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
		return false
	}
	if err := getValidator().Struct(dst); err != nil {
		verrs := map[string]string{}
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				verrs[strings.ToLower(fe.Field())] = fe.Tag()
			}
		}
		writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
		return false
	}
	return true
}

func checkIDs(w http.ResponseWriter, r *http.Request, fields map[string]string) bool {
	var errs []ValidationError
	for field, id := range fields {
		if id == "" {
			continue
		}
		if res := ValidateRecordID(field, id); !res.Valid {
			errs = append(errs, res.Errors...)
		}
	}
	if len(errs) > 0 {
		writeError(w, r, fmt.Errorf("%w: invalid id", domain.ErrInvalidArgument), errs)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, field string) (string, bool) {
	id := chi.URLParam(r, "id")
	if res := ValidateRecordID(field, id); !res.Valid {
		writeError(w, r, fmt.Errorf("%w: invalid %s", domain.ErrInvalidArgument, field), res.Errors)
		return "", false
	}
	return id, true
}

// CreateResumeHandler ingests a resume and indexes its embedding.
func (s *Server) CreateResumeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		var req resumeRequest
		if !decodeAndValidate(w, r, &req) || !checkIDs(w, r, map[string]string{"id": req.ID}) {
			return
		}
		rec, err := s.Matching.IngestResume(r.Context(), domain.ResumeRecord{
			ID:             req.ID,
			CandidateName:  req.CandidateName,
			CandidateEmail: req.CandidateEmail,
			Skills:         req.Skills,
			Education:      req.Education,
			Certifications: req.Certifications,
			RawText:        req.RawText,
			ProcessedText:  req.ProcessedText,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": rec.ID, "embedding_dim": len(rec.Embedding)})
	}
}

// CreateJobHandler ingests a job posting and indexes its embedding.
func (s *Server) CreateJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		var req jobRequest
		if !decodeAndValidate(w, r, &req) || !checkIDs(w, r, map[string]string{"id": req.ID}) {
			return
		}
		if req.MaxExperience != nil && *req.MaxExperience < req.MinExperience {
			writeError(w, r, fmt.Errorf("%w: max_experience below min_experience", domain.ErrInvalidArgument),
				map[string]string{"max_experience": "gtefield"})
			return
		}
		rec, err := s.Matching.IngestJob(r.Context(), domain.JobRecord{
			ID:                     req.ID,
			Title:                  req.Title,
			Company:                req.Company,
			RequiredSkills:         req.RequiredSkills,
			OptionalSkills:         req.OptionalSkills,
			MinExperience:          req.MinExperience,
			MaxExperience:          req.MaxExperience,
			EducationRequirements:  req.EducationRequirements,
			CertificationsRequired: req.CertificationsRequired,
			RawText:                req.RawText,
			ProcessedText:          req.ProcessedText,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": rec.ID, "embedding_dim": len(rec.Embedding)})
	}
}

// EvaluateHandler scores one resume against one job.
func (s *Server) EvaluateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		var req evaluateRequest
		if !decodeAndValidate(w, r, &req) || !checkIDs(w, r, map[string]string{"resume_id": req.ResumeID, "job_id": req.JobID}) {
			return
		}
		ev, err := s.Matching.EvaluateOne(r.Context(), req.ResumeID, req.JobID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

// EvaluateBatchHandler scores many resumes against a job, best first.
func (s *Server) EvaluateBatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		var req batchRequest
		if !decodeAndValidate(w, r, &req) || !checkIDs(w, r, map[string]string{"job_id": req.JobID}) {
			return
		}
		for _, id := range req.ResumeIDs {
			if !checkIDs(w, r, map[string]string{"resume_ids": id}) {
				return
			}
		}
		evs, err := s.Matching.EvaluateBatch(r.Context(), req.JobID, req.ResumeIDs, req.TopK)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if evs == nil {
			evs = []domain.Evaluation{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"job_id": req.JobID, "count": len(evs), "evaluations": evs})
	}
}

// JobEvaluationsHandler lists stored evaluations of a job, filtered by min_score and verdict.
func (s *Server) JobEvaluationsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		jobID, ok := pathID(w, r, "job_id")
		if !ok {
			return
		}
		q := r.URL.Query()
		minScore, res := ValidateMinScore(q.Get("min_score"))
		verdict, res2 := ValidateVerdict(q.Get("verdict"))
		if errs := append(res.Errors, res2.Errors...); len(errs) > 0 {
			writeError(w, r, fmt.Errorf("%w: invalid query", domain.ErrInvalidArgument), errs)
			return
		}
		evs, err := s.Matching.JobEvaluations(r.Context(), jobID, minScore, verdict)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if evs == nil {
			evs = []domain.Evaluation{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "count": len(evs), "evaluations": evs})
	}
}

// ListResumesHandler lists the newest resumes.
func (s *Server) ListResumesHandler() http.HandlerFunc {
	return listHandler("resumes", s.Matching.ListResumes)
}

// ListJobsHandler lists the newest jobs.
func (s *Server) ListJobsHandler() http.HandlerFunc {
	return listHandler("jobs", s.Matching.ListJobs)
}

func listHandler[T any](key string, list func(context.Context, int) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		limit, res := ValidateLimit(r.URL.Query().Get("limit"))
		if !res.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid limit", domain.ErrInvalidArgument), res.Errors)
			return
		}
		out, err := list(r.Context(), limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if out == nil {
			out = []T{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(out), key: out})
	}
}

// JobCandidatesHandler returns the resumes nearest to a job by embedding.
func (s *Server) JobCandidatesHandler() http.HandlerFunc {
	return s.neighborsHandler("job_id", "candidates", s.Matching.CandidatesForJob)
}

// ResumeJobsHandler returns the jobs nearest to a resume by embedding.
func (s *Server) ResumeJobsHandler() http.HandlerFunc {
	return s.neighborsHandler("resume_id", "jobs", s.Matching.SimilarJobs)
}

func (s *Server) neighborsHandler(idField, key string, query func(context.Context, string, int) ([]domain.Neighbor, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		id, ok := pathID(w, r, idField)
		if !ok {
			return
		}
		k, res := ValidateTopK(r.URL.Query().Get("k"))
		if !res.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid k", domain.ErrInvalidArgument), res.Errors)
			return
		}
		out, err := query(r.Context(), id, k)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if out == nil {
			out = []domain.Neighbor{}
		}
		writeJSON(w, http.StatusOK, map[string]any{idField: id, key: out})
	}
}

// ReadyzHandler returns a readiness handler that checks DB, Redis and Qdrant.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	deps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"db", s.DBCheck},
		{"redis", s.RedisCheck},
		{"qdrant", s.QdrantCheck},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, len(deps))
		ok := true
		for _, p := range deps {
			if p.fn == nil {
				continue
			}
			if err := p.fn(ctx); err != nil {
				ok = false
				checks = append(checks, check{Name: p.name, OK: false, Details: err.Error()})
				continue
			}
			checks = append(checks, check{Name: p.name, OK: true})
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}

package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrRetryable marks a failure that left no partial state behind; the caller may retry.
	ErrRetryable = errors.New("retryable")
	// ErrIndexCorrupt is reported when a vector index cannot be brought back in line with its metadata.
	ErrIndexCorrupt = errors.New("index corrupt")
	ErrInternal     = errors.New("internal error")
)

// Verdict is the tiered classification of a relevance score.
type Verdict string

const (
	VerdictHigh   Verdict = "HIGH"
	VerdictMedium Verdict = "MEDIUM"
	VerdictLow    Verdict = "LOW"
)

// Valid reports whether v is one of the known tiers.
func (v Verdict) Valid() bool {
	return v == VerdictHigh || v == VerdictMedium || v == VerdictLow
}

// EducationEntry is one extracted degree mention with its surrounding text.
type EducationEntry struct {
	Degree  string `json:"degree" yaml:"degree"`
	Context string `json:"context" yaml:"context"`
}

// ResumeRecord is a candidate resume with its extracted structured fields.
// Scorers treat it as read-only.
type ResumeRecord struct {
	ID             string           `json:"id" yaml:"id"`
	CandidateName  *string          `json:"candidate_name,omitempty" yaml:"candidate_name,omitempty"`
	CandidateEmail *string          `json:"candidate_email,omitempty" yaml:"candidate_email,omitempty"`
	Skills         []string         `json:"skills" yaml:"skills"`
	Education      []EducationEntry `json:"education" yaml:"education"`
	Certifications []string         `json:"certifications" yaml:"certifications"`
	RawText        string           `json:"raw_text" yaml:"raw_text"`
	ProcessedText  string           `json:"processed_text" yaml:"processed_text"`
	// Embedding is nil when absent.
	Embedding []float32 `json:"embedding,omitempty" yaml:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"-"`
}

// JobRecord is a job description with its extracted requirements.
type JobRecord struct {
	ID                     string    `json:"id" yaml:"id"`
	Title                  string    `json:"title,omitempty" yaml:"title,omitempty"`
	Company                string    `json:"company,omitempty" yaml:"company,omitempty"`
	RequiredSkills         []string  `json:"required_skills" yaml:"required_skills"`
	OptionalSkills         []string  `json:"optional_skills" yaml:"optional_skills"`
	MinExperience          int       `json:"min_experience" yaml:"min_experience"`
	MaxExperience          *int      `json:"max_experience,omitempty" yaml:"max_experience,omitempty"`
	EducationRequirements  []string  `json:"education_requirements" yaml:"education_requirements"`
	CertificationsRequired []string  `json:"certifications_required" yaml:"certifications_required"`
	RawText                string    `json:"raw_text" yaml:"raw_text"`
	ProcessedText          string    `json:"processed_text" yaml:"processed_text"`
	Embedding              []float32 `json:"embedding,omitempty" yaml:"embedding,omitempty"`
	CreatedAt              time.Time `json:"created_at,omitempty" yaml:"-"`
}

// ExperienceRange returns the accepted [min, max] years. A missing or inverted
// maximum falls back to min+10. Negative minimums are treated as zero.
func (j JobRecord) ExperienceRange() (minYears, maxYears int) {
	minYears = j.MinExperience
	if minYears < 0 {
		minYears = 0
	}
	maxYears = minYears + 10
	if j.MaxExperience != nil && *j.MaxExperience >= minYears {
		maxYears = *j.MaxExperience
	}
	return minYears, maxYears
}

// MatchDetails carries the auxiliary facts behind the experience score.
type MatchDetails struct {
	ResumeExperienceYears int    `json:"resume_experience"`
	RequiredExperience    string `json:"required_experience"`
	MinExperience         int    `json:"min_experience"`
	MaxExperience         int    `json:"max_experience"`
}

// MatchResult is the hard-match breakdown. Every score is in [0,100].
type MatchResult struct {
	SkillsMatch           float64      `json:"skills_match"`
	EducationMatch        float64      `json:"education_match"`
	ExperienceMatch       float64      `json:"experience_match"`
	CertificationMatch    float64      `json:"certification_match"`
	MatchedSkills         []string     `json:"matched_skills"`
	MissingSkills         []string     `json:"missing_skills"`
	MatchedCertifications []string     `json:"matched_certifications"`
	MissingCertifications []string     `json:"missing_certifications"`
	OverallHardMatch      float64      `json:"overall_hard_match"`
	Details               MatchDetails `json:"details"`
}

// SoftMatchResult is the lexical/semantic similarity breakdown.
type SoftMatchResult struct {
	TFIDFSimilarity     float64 `json:"tfidf_similarity"`
	EmbeddingSimilarity float64 `json:"embedding_similarity"`
	KeywordDensity      float64 `json:"keyword_density"`
	OverallSoftMatch    float64 `json:"overall_soft_match"`
}

// Feedback is the deterministic, template based explanation of an evaluation.
type Feedback struct {
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Suggestions  []string `json:"suggestions"`
}

// Analysis keeps the scorer outputs an evaluation was derived from.
type Analysis struct {
	Hard MatchResult     `json:"hard"`
	Soft SoftMatchResult `json:"soft"`
}

// Evaluation is the outcome of scoring one resume against one job.
// Invariant: 0 <= RelevanceScore <= 100. ID and CreatedAt are assigned on persistence.
type Evaluation struct {
	ID             string    `json:"id,omitempty"`
	ResumeID       string    `json:"resume_id"`
	JobID          string    `json:"job_id"`
	RelevanceScore float64   `json:"relevance_score"`
	HardMatchScore float64   `json:"hard_match_score"`
	SoftMatchScore float64   `json:"soft_match_score"`
	MatchedSkills  []string  `json:"matched_skills"`
	MissingSkills  []string  `json:"missing_skills"`
	Verdict        Verdict   `json:"verdict"`
	Feedback       Feedback  `json:"feedback"`
	Analysis       Analysis  `json:"analysis"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// EvaluationFilter narrows a job's stored evaluations. Nil fields do not filter.
type EvaluationFilter struct {
	MinScore *float64
	Verdict  *Verdict
}

// Repositories (ports)

type ResumeRepository interface {
	Create(ctx Context, r ResumeRecord) (string, error)
	Get(ctx Context, id string) (ResumeRecord, error)
	GetMany(ctx Context, ids []string) ([]ResumeRecord, error)
	List(ctx Context, limit int) ([]ResumeRecord, error)
}

type JobRepository interface {
	Create(ctx Context, j JobRecord) (string, error)
	Get(ctx Context, id string) (JobRecord, error)
	List(ctx Context, limit int) ([]JobRecord, error)
}

type EvaluationRepository interface {
	Create(ctx Context, e Evaluation) (Evaluation, error)
	ListByJob(ctx Context, jobID string, f EvaluationFilter) ([]Evaluation, error)
}

// Context is an alias to std context so ports stay readable.
type Context = context.Context

// Package scoring fuses hard and soft match scores into a relevance score,
// assigns a verdict tier and renders template feedback.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/fairyhunter13/ai-resume-matcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-resume-matcher/internal/config"
	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
	"github.com/fairyhunter13/ai-resume-matcher/internal/matching"
	obsctx "github.com/fairyhunter13/ai-resume-matcher/internal/observability"
)

// Defaults used when no configuration is supplied.
const (
	DefaultHardWeight      = 0.4
	DefaultSoftWeight      = 0.6
	DefaultHighThreshold   = 75.0
	DefaultMediumThreshold = 50.0
)

// feedbackListLimit caps the skills named in each feedback sentence.
const feedbackListLimit = 6

// Embedder produces an embedding for a record that arrives without one.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options configures an Engine.
type Options struct {
	HardWeight      float64
	SoftWeight      float64
	HighThreshold   float64
	MediumThreshold float64
	// Embedder is optional; without it records lacking embeddings score 0 on the semantic component.
	Embedder Embedder
}

// OptionsFromConfig maps the fusion settings of cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		HardWeight:      cfg.HardMatchWeight,
		SoftWeight:      cfg.SoftMatchWeight,
		HighThreshold:   cfg.HighThreshold,
		MediumThreshold: cfg.MediumThreshold,
	}
}

// Engine evaluates resume/job pairs. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	hardWeight float64
	softWeight float64
	high       float64
	medium     float64
	embedder   Embedder
}

// NewEngine validates opts and renormalizes the weights so they sum to 1.
func NewEngine(opts Options) (*Engine, error) {
	hw, sw := opts.HardWeight, opts.SoftWeight
	if hw < 0 || sw < 0 || math.IsNaN(hw) || math.IsNaN(sw) || math.IsInf(hw, 0) || math.IsInf(sw, 0) {
		return nil, fmt.Errorf("%w: weights must be finite and non-negative (hard=%v soft=%v)", domain.ErrInvalidArgument, hw, sw)
	}
	sum := hw + sw
	if sum <= 0 {
		return nil, fmt.Errorf("%w: weights must not both be zero", domain.ErrInvalidArgument)
	}
	if math.Abs(sum-1) > 1e-9 {
		slog.Warn("fusion weights renormalized",
			slog.Float64("hard_weight", hw), slog.Float64("soft_weight", sw),
			slog.Float64("hard_weight_normalized", hw/sum), slog.Float64("soft_weight_normalized", sw/sum))
		hw, sw = hw/sum, sw/sum
	}
	if opts.MediumThreshold < 0 || opts.HighThreshold > 100 || opts.MediumThreshold > opts.HighThreshold {
		return nil, fmt.Errorf("%w: thresholds must satisfy 0 <= medium (%v) <= high (%v) <= 100",
			domain.ErrInvalidArgument, opts.MediumThreshold, opts.HighThreshold)
	}
	return &Engine{hardWeight: hw, softWeight: sw, high: opts.HighThreshold, medium: opts.MediumThreshold, embedder: opts.Embedder}, nil
}

// Weights returns the effective (normalized) hard and soft weights.
func (e *Engine) Weights() (hard, soft float64) { return e.hardWeight, e.softWeight }

// Evaluate scores one resume against one job. The inputs are not modified.
func (e *Engine) Evaluate(ctx context.Context, r domain.ResumeRecord, j domain.JobRecord) domain.Evaluation {
	if r.Embedding == nil {
		r.Embedding = e.embed(ctx, "resume", r.ID, r.ProcessedText, r.RawText)
	}
	if j.Embedding == nil {
		j.Embedding = e.embed(ctx, "job", j.ID, j.ProcessedText, j.RawText)
	}

	hard := matching.HardMatch(r, j)
	soft := matching.SoftMatch(r, j)
	relevance := Clamp(hard.OverallHardMatch*e.hardWeight+soft.OverallSoftMatch*e.softWeight, 0, 100)
	verdict := e.Verdict(relevance)

	ev := domain.Evaluation{
		ResumeID:       r.ID,
		JobID:          j.ID,
		RelevanceScore: relevance,
		HardMatchScore: hard.OverallHardMatch,
		SoftMatchScore: soft.OverallSoftMatch,
		MatchedSkills:  hard.MatchedSkills,
		MissingSkills:  hard.MissingSkills,
		Verdict:        verdict,
		Feedback:       BuildFeedback(hard.MatchedSkills, hard.MissingSkills),
		Analysis:       domain.Analysis{Hard: hard, Soft: soft},
	}
	observability.ObserveEvaluation(string(verdict), relevance)
	return ev
}

// BatchEvaluate scores every resume against j independently and returns the
// evaluations ordered by descending relevance; ties keep input order.
func (e *Engine) BatchEvaluate(ctx context.Context, resumes []domain.ResumeRecord, j domain.JobRecord) []domain.Evaluation {
	if j.Embedding == nil {
		j.Embedding = e.embed(ctx, "job", j.ID, j.ProcessedText, j.RawText)
	}
	out := make([]domain.Evaluation, 0, len(resumes))
	for _, r := range resumes {
		out = append(out, e.Evaluate(ctx, r, j))
	}
	SortByRelevance(out)
	return out
}

// Verdict maps a relevance score to its tier. Lower bounds are inclusive.
func (e *Engine) Verdict(score float64) domain.Verdict {
	switch {
	case score >= e.high:
		return domain.VerdictHigh
	case score >= e.medium:
		return domain.VerdictMedium
	default:
		return domain.VerdictLow
	}
}

func (e *Engine) embed(ctx context.Context, kind, id, processed, raw string) []float32 {
	if e.embedder == nil {
		return nil
	}
	text := processed
	if strings.TrimSpace(text) == "" {
		text = raw
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		obsctx.LoggerFromContext(ctx).Warn("embedding unavailable; semantic similarity scored as 0",
			slog.String("kind", kind), slog.String("id", id), slog.Any("error", err))
		return nil
	}
	return vec
}

// SortByRelevance stable-sorts evaluations by descending relevance score.
func SortByRelevance(evs []domain.Evaluation) {
	sort.SliceStable(evs, func(a, b int) bool { return evs[a].RelevanceScore > evs[b].RelevanceScore })
}

// Clamp bounds v to [lo, hi]; NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// BuildFeedback renders the deterministic strengths/improvements/suggestions template.
func BuildFeedback(matched, missing []string) domain.Feedback {
	fb := domain.Feedback{Strengths: []string{}, Improvements: []string{}, Suggestions: []string{}}
	if len(matched) > 0 {
		fb.Strengths = append(fb.Strengths, "Matched skills: "+strings.Join(head(matched, feedbackListLimit), ", "))
	}
	if len(missing) > 0 {
		fb.Improvements = append(fb.Improvements, "Missing key skills: "+strings.Join(head(missing, feedbackListLimit), ", "))
		fb.Suggestions = append(fb.Suggestions, "Consider projects or a micro-course to demonstrate these skills.")
	}
	return fb
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Package seed loads resume and job fixtures from YAML files and ingests them.
//
// Records without an id get one derived from their namespace and text, so
// re-seeding the same file updates records in place instead of duplicating them.
package seed

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
	obsctx "github.com/fairyhunter13/ai-resume-matcher/internal/observability"
)

// DefaultPath is the fixture file seeded by SeedDefault.
const DefaultPath = "configs/seeds/demo.yaml"

// File is the YAML layout of a seed file.
type File struct {
	Resumes []domain.ResumeRecord `yaml:"resumes"`
	Jobs    []domain.JobRecord    `yaml:"jobs"`
}

// Ingester stores records; usecase.MatchingService satisfies it.
type Ingester interface {
	IngestResume(ctx domain.Context, r domain.ResumeRecord) (domain.ResumeRecord, error)
	IngestJob(ctx domain.Context, j domain.JobRecord) (domain.JobRecord, error)
}

// Report counts the records ingested from a file.
type Report struct {
	Resumes int `json:"resumes"`
	Jobs    int `json:"jobs"`
	Skipped int `json:"skipped"`
}

// Load reads and parses a seed file. Paths outside the working directory are
// rejected unless SEED_ALLOW_ABSPATHS=1.
func Load(path string) (File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return File{}, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return File{}, err
	}
	abs, wd = filepath.Clean(abs), filepath.Clean(wd)
	if os.Getenv("SEED_ALLOW_ABSPATHS") != "1" {
		if !strings.HasPrefix(abs, wd+string(os.PathSeparator)) && abs != wd {
			return File{}, fmt.Errorf("%w: disallowed path: %s", domain.ErrInvalidArgument, abs)
		}
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return File{}, fmt.Errorf("%w: seed file not found: %s", domain.ErrNotFound, path)
		}
		return File{}, err
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return File{}, fmt.Errorf("%w: yaml parse: %v", domain.ErrInvalidArgument, err)
	}
	if len(f.Resumes) == 0 && len(f.Jobs) == 0 {
		return File{}, fmt.Errorf("%w: no records to seed in %s", domain.ErrInvalidArgument, path)
	}
	return f, nil
}

// SeedFile loads path and ingests its records, jobs first.
func SeedFile(ctx domain.Context, ing Ingester, path string) (Report, error) {
	f, err := Load(path)
	if err != nil {
		return Report{}, fmt.Errorf("op=seed.SeedFile: %w", err)
	}
	return Ingest(ctx, ing, f)
}

// SeedDefault seeds DefaultPath.
func SeedDefault(ctx domain.Context, ing Ingester) (Report, error) {
	return SeedFile(ctx, ing, DefaultPath)
}

// Ingest stores every record of f. Records without raw text and repeated ids
// are skipped; the first ingest failure aborts.
func Ingest(ctx domain.Context, ing Ingester, f File) (Report, error) {
	lg := obsctx.LoggerFromContext(ctx)
	var rep Report
	seen := map[string]struct{}{}
	for _, j := range f.Jobs {
		if strings.TrimSpace(j.RawText) == "" {
			rep.Skipped++
			continue
		}
		if j.ID == "" {
			j.ID = ID(domain.NamespaceJob, j.RawText)
		}
		if _, dup := seen["job:"+j.ID]; dup {
			lg.Warn("duplicate job in seed file", slog.String("id", j.ID))
			rep.Skipped++
			continue
		}
		seen["job:"+j.ID] = struct{}{}
		if _, err := ing.IngestJob(ctx, j); err != nil {
			return rep, fmt.Errorf("op=seed.Ingest job=%s: %w", j.ID, err)
		}
		rep.Jobs++
	}
	for _, r := range f.Resumes {
		if strings.TrimSpace(r.RawText) == "" {
			rep.Skipped++
			continue
		}
		if r.ID == "" {
			r.ID = ID(domain.NamespaceResume, r.RawText)
		}
		if _, dup := seen["resume:"+r.ID]; dup {
			lg.Warn("duplicate resume in seed file", slog.String("id", r.ID))
			rep.Skipped++
			continue
		}
		seen["resume:"+r.ID] = struct{}{}
		if _, err := ing.IngestResume(ctx, r); err != nil {
			return rep, fmt.Errorf("op=seed.Ingest resume=%s: %w", r.ID, err)
		}
		rep.Resumes++
	}
	lg.Info("seed ingested", slog.Int("jobs", rep.Jobs), slog.Int("resumes", rep.Resumes), slog.Int("skipped", rep.Skipped))
	return rep, nil
}

// ID derives a deterministic record id from the namespace and text.
func ID(ns domain.Namespace, text string) string {
	sum := sha256.Sum256([]byte(string(ns) + ":" + strings.TrimSpace(text)))
	return fmt.Sprintf("%s-%x", ns, sum[:8])
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-resume-matcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-resume-matcher/internal/config"
	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
	"github.com/fairyhunter13/ai-resume-matcher/pkg/textx"
)

const appName = "matchctl"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "matchctl scores resumes against job postings and manages the embedding index",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// Config errors surface from the subcommand; the logger only needs identity fields.
			cfg, _ := config.Load()
			if cfg.OTELServiceName == "" {
				cfg.OTELServiceName = "ai-resume-matcher"
			}
			if cfg.LogLevel == "" || cfg.Validate() != nil {
				cfg.LogLevel = "info"
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.LogLevel = "debug"
			}
			slog.SetDefault(observability.NewLogger(cmd.ErrOrStderr(), cfg, appName))
		},
	}
	root.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	root.AddCommand(newEvaluateCmd(), newSeedCmd(), newQueryCmd(), newRebuildCmd())
	return root
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func readYAML(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func loadResume(path string) (domain.ResumeRecord, error) {
	var r domain.ResumeRecord
	if err := readYAML(path, &r); err != nil {
		return r, err
	}
	r.RawText = textx.SanitizeText(r.RawText)
	if strings.TrimSpace(r.ProcessedText) == "" {
		r.ProcessedText = textx.Normalize(r.RawText)
	}
	if r.ID == "" {
		r.ID = "resume"
	}
	return r, nil
}

func loadJob(path string) (domain.JobRecord, error) {
	var j domain.JobRecord
	if err := readYAML(path, &j); err != nil {
		return j, err
	}
	j.RawText = textx.SanitizeText(j.RawText)
	if strings.TrimSpace(j.ProcessedText) == "" {
		j.ProcessedText = textx.Normalize(j.RawText)
	}
	if j.ID == "" {
		j.ID = "job"
	}
	return j, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

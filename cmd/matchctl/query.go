package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-resume-matcher/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-resume-matcher/internal/app"
	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
)

// maxTopK matches the HTTP API bound on neighbour queries.
const maxTopK = httpserver.MaxTopK

func newQueryCmd() *cobra.Command {
	var jobPath, resumePath string
	var k int
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List the resumes nearest to a job file (or the jobs nearest to a resume file)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (jobPath == "") == (resumePath == "") {
				return errors.New("exactly one of --job or --resume is required")
			}
			if k < 1 || k > maxTopK {
				return fmt.Errorf("%w: --top-k must be between 1 and %d", domain.ErrInvalidArgument, maxTopK)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ns, text := domain.NamespaceResume, ""
			if jobPath != "" {
				j, err := loadJob(jobPath)
				if err != nil {
					return err
				}
				text = j.ProcessedText
			} else {
				r, err := loadResume(resumePath)
				if err != nil {
					return err
				}
				ns, text = domain.NamespaceJob, r.ProcessedText
			}
			ctx := cmd.Context()
			rdb, err := app.NewRedis(cfg)
			if err != nil {
				return err
			}
			st, err := app.OpenStore(ctx, cfg, app.NewEncoder(cfg, rdb), app.NewQdrant(cfg))
			if err != nil {
				return err
			}
			defer func() { _ = st.Close(ctx) }()
			out, err := st.QueryNearestText(ctx, ns, text, k)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"namespace": ns, "neighbors": out})
		},
	}
	cmd.Flags().StringVarP(&jobPath, "job", "j", "", "job YAML file; queries the resume namespace")
	cmd.Flags().StringVarP(&resumePath, "resume", "r", "", "resume YAML file; queries the job namespace")
	cmd.Flags().IntVarP(&k, "top-k", "k", 10, "number of neighbours")
	return cmd
}

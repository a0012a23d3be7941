package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-resume-matcher/internal/adapter/encoder/hashing"
	"github.com/fairyhunter13/ai-resume-matcher/internal/app"
	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
)

// encoderEmbedder embeds one text at a time through a batch encoder.
type encoderEmbedder struct{ enc domain.Encoder }

func (e encoderEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.enc.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, errors.New("encoder returned no vector")
	}
	return vecs[0], nil
}

func newEvaluateCmd() *cobra.Command {
	var resumePath, jobPath string
	var online bool
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a resume YAML file against a job YAML file without touching the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			r, err := loadResume(resumePath)
			if err != nil {
				return err
			}
			j, err := loadJob(jobPath)
			if err != nil {
				return err
			}
			var enc domain.Encoder = hashing.New(cfg.EmbeddingDim)
			if online {
				enc = app.NewEncoder(cfg, nil)
			}
			engine, err := app.NewEngine(cfg, encoderEmbedder{enc: enc})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), engine.Evaluate(cmd.Context(), r, j))
		},
	}
	cmd.Flags().StringVarP(&resumePath, "resume", "r", "", "resume YAML file")
	cmd.Flags().StringVarP(&jobPath, "job", "j", "", "job YAML file")
	cmd.Flags().BoolVar(&online, "online", false, "use the configured encoder (OpenAI when OPENAI_API_KEY is set) instead of the offline hashing encoder")
	_ = cmd.MarkFlagRequired("resume")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

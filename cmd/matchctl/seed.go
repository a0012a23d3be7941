package main

import (
	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-resume-matcher/internal/app"
	"github.com/fairyhunter13/ai-resume-matcher/internal/seed"
)

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Ingest resumes and jobs from a YAML fixture file into the database and index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			deps, err := app.Bootstrap(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = deps.Close(ctx) }()
			rep, err := seed.SeedFile(ctx, deps.Matching, file)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", seed.DefaultPath, "seed YAML file")
	return cmd
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-resume-matcher/internal/app"
	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
	"github.com/fairyhunter13/ai-resume-matcher/internal/embedding"
)

func newRebuildCmd() *cobra.Command {
	var namespace string
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Re-embed a namespace from its stored texts and rewrite its vector index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			targets := domain.Namespaces
			if namespace != "all" {
				ns, err := domain.ParseNamespace(namespace)
				if err != nil {
					return err
				}
				targets = []domain.Namespace{ns}
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
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
			reports := make([]map[string]any, 0, len(targets))
			for _, ns := range targets {
				rep, err := st.Rebuild(ctx, ns)
				if err != nil {
					return err
				}
				reports = append(reports, reportJSON(rep))
			}
			return printJSON(cmd.OutOrStdout(), reports)
		},
	}
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "all", "namespace to rebuild: resume, job or all")
	return cmd
}

func reportJSON(rep embedding.RebuildReport) map[string]any {
	return map[string]any{
		"namespace":  rep.Namespace,
		"reembedded": rep.Reembedded,
		"dropped":    rep.Dropped,
		"size":       rep.Size,
		"recovery":   rep.Recovery().String(),
	}
}

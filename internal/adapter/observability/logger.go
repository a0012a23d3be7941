package observability

import (
	"io"
	"log/slog"
	"os"

	"github.com/fairyhunter13/ai-resume-matcher/internal/config"
)

// NewLogger returns the JSON logger for one matcher process. Every record
// carries the deployment identity plus the embedding and index backends in
// use, so scores can be traced back to the setup that produced them.
func NewLogger(w io.Writer, cfg config.Config, component string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	return slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("component", component),
		slog.String("env", cfg.AppEnv),
		slog.String("version", cfg.AppVersion),
		slog.String("embedder", embedderName(cfg)),
		slog.String("vector_backend", cfg.VectorBackend),
	)
}

// SetupLogger is the API server logger on stdout.
func SetupLogger(cfg config.Config) *slog.Logger {
	return NewLogger(os.Stdout, cfg, "api")
}

func embedderName(cfg config.Config) string {
	if cfg.UseOpenAI() {
		return "openai:" + cfg.EmbeddingModel
	}
	return "hashing"
}

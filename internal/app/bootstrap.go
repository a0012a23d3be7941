package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-resume-matcher/internal/adapter/events/redpanda"
	"github.com/fairyhunter13/ai-resume-matcher/internal/adapter/repo/postgres"
	qdrantcli "github.com/fairyhunter13/ai-resume-matcher/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/ai-resume-matcher/internal/config"
	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
	"github.com/fairyhunter13/ai-resume-matcher/internal/embedding"
	"github.com/fairyhunter13/ai-resume-matcher/internal/scoring"
	"github.com/fairyhunter13/ai-resume-matcher/internal/usecase"
)

// Deps holds the long-lived infrastructure shared by the server and the CLI.
type Deps struct {
	Pool     *pgxpool.Pool
	Redis    redis.UniversalClient
	Qdrant   *qdrantcli.Client
	Store    *embedding.Store
	Engine   *scoring.Engine
	Events   *redpanda.Publisher
	Matching usecase.MatchingService
}

// Bootstrap connects to Postgres (ensuring the schema), Redis and Qdrant as
// configured, opens the embedding store and builds the matching service.
func Bootstrap(ctx context.Context, cfg config.Config) (*Deps, error) {
	d := &Deps{}
	fail := func(err error) (*Deps, error) {
		_ = d.Close(ctx)
		return nil, fmt.Errorf("op=app.Bootstrap: %w", err)
	}
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return fail(err)
	}
	d.Pool = pool
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		return fail(err)
	}
	if d.Redis, err = NewRedis(cfg); err != nil {
		return fail(err)
	}
	d.Qdrant = NewQdrant(cfg)
	if d.Store, err = OpenStore(ctx, cfg, NewEncoder(cfg, d.Redis), d.Qdrant); err != nil {
		return fail(err)
	}
	if d.Engine, err = NewEngine(cfg, d.Store); err != nil {
		return fail(err)
	}
	d.Matching = usecase.NewMatchingService(
		postgres.NewResumeRepo(pool),
		postgres.NewJobRepo(pool),
		postgres.NewEvaluationRepo(pool),
		d.Store, d.Engine, cfg.BatchTopK,
	)
	if len(cfg.KafkaBrokers) > 0 {
		if d.Events, err = redpanda.New(ctx, cfg.KafkaBrokers, cfg.EvaluationsTopic); err != nil {
			return fail(err)
		}
		d.Matching.Events = d.Events
	}
	slog.Info("matcher ready",
		slog.String("vector_backend", cfg.VectorBackend),
		slog.Int("dim", d.Store.Dim()),
		slog.Int("resumes_indexed", d.Store.Len(domain.NamespaceResume)),
		slog.Int("jobs_indexed", d.Store.Len(domain.NamespaceJob)))
	return d, nil
}

// Close persists the store and releases connections.
func (d *Deps) Close(ctx context.Context) error {
	var errs []error
	if d.Store != nil {
		errs = append(errs, d.Store.Close(ctx))
	}
	if d.Events != nil {
		errs = append(errs, d.Events.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
	return errors.Join(errs...)
}

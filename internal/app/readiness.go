package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Pinger is the minimal interface for a dependency capable of Ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuildReadinessChecks returns the db, redis and qdrant readiness checks.
// The database is mandatory; redis and qdrant checks are nil when the
// dependency is not in use, so readiness skips them.
func BuildReadinessChecks(pool Pinger, rdb redis.UniversalClient, qdrant Pinger) (
	dbCheck func(ctx context.Context) error,
	redisCheck func(ctx context.Context) error,
	qdrantCheck func(ctx context.Context) error,
) {
	dbCheck = func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}
	if rdb != nil {
		redisCheck = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if qdrant != nil {
		qdrantCheck = qdrant.Ping
	}
	return dbCheck, redisCheck, qdrantCheck
}

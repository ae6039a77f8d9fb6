// Package metrics implements the optional sidecar mirror of PerfLogger
// batch-completion events: a Redis counter set for live dashboards and a
// PostgreSQL run-ledger for longitudinal comparison across benchmark runs.
// Neither is required for a run's correctness -- the pipeline produces a
// correct decrypted spool with pkg/metrics entirely disabled; this package
// exists purely as the harness's monitoring amenity.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounters mirrors per-run batch-completion counts into Redis so a
// live dashboard can poll them without tailing a PerfLogger file.
type RedisCounters struct {
	client *redis.Client
	ctx    context.Context
	ttl    time.Duration
}

// NewRedisCounters dials addr and verifies connectivity with a Ping.
func NewRedisCounters(addr string) (*RedisCounters, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to metrics redis at %q: %w", addr, err)
	}

	return &RedisCounters{client: client, ctx: ctx, ttl: 24 * time.Hour}, nil
}

// IncrBatch increments the batch-completion counter for (runID, role) and
// records the role's most recent batch index, both expiring after ttl so a
// crashed run's counters don't linger forever.
func (r *RedisCounters) IncrBatch(runID, role string, batch int) error {
	countKey := fmt.Sprintf("hebench:%s:%s:batches_done", runID, role)
	lastKey := fmt.Sprintf("hebench:%s:%s:last_batch", runID, role)

	pipe := r.client.TxPipeline()
	pipe.Incr(r.ctx, countKey)
	pipe.Expire(r.ctx, countKey, r.ttl)
	pipe.Set(r.ctx, lastKey, batch, r.ttl)
	_, err := pipe.Exec(r.ctx)
	if err != nil {
		return fmt.Errorf("recording batch metric for run %q role %q: %w", runID, role, err)
	}
	return nil
}

// BatchesDone returns the number of batches (role) has reported complete
// for runID, or 0 if nothing has been recorded yet.
func (r *RedisCounters) BatchesDone(runID, role string) (int64, error) {
	countKey := fmt.Sprintf("hebench:%s:%s:batches_done", runID, role)
	n, err := r.client.Get(r.ctx, countKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading batch metric for run %q role %q: %w", runID, role, err)
	}
	return n, nil
}

// Close releases the underlying Redis connection pool.
func (r *RedisCounters) Close() error {
	return r.client.Close()
}

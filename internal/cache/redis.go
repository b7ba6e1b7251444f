package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gnan700/splitledger/internal/calculator"
	"github.com/gnan700/splitledger/internal/metrics"
)

const (
	keyPrefix        = "splitledger:balances:"
	generationPrefix = "splitledger:generation:"
)

var errStale = errors.New("group invalidated since the aggregate was read")

// Redis is a BalanceCache shared between server instances. Backend failures
// are logged and reported as misses, so reads fall back to recomputation.
// Generation keys carry no TTL, so a generation never moves backwards.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to addr and verifies the connection with PING.
func NewRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func key(groupID string) string {
	return keyPrefix + groupID
}

func generationKey(groupID string) string {
	return generationPrefix + groupID
}

func (r *Redis) Get(ctx context.Context, groupID string) (*calculator.Ledger, uint64, bool) {
	vals, err := r.client.MGet(ctx, key(groupID), generationKey(groupID)).Result()
	if err != nil {
		slog.Error("Redis MGET command failed", "error", err, "group_id", groupID)
		metrics.CacheErrors.WithLabelValues("get").Inc()
		return nil, 0, false
	}

	var gen uint64
	if s, ok := vals[1].(string); ok {
		if gen, err = strconv.ParseUint(s, 10, 64); err != nil {
			slog.Error("Invalid cache generation", "error", err, "group_id", groupID)
			metrics.CacheErrors.WithLabelValues("decode").Inc()
			return nil, 0, false
		}
	}

	data, ok := vals[0].(string)
	if !ok {
		return nil, gen, false
	}
	var ledger calculator.Ledger
	if err := json.Unmarshal([]byte(data), &ledger); err != nil {
		slog.Error("Failed to unmarshal cached balances", "error", err, "group_id", groupID)
		metrics.CacheErrors.WithLabelValues("decode").Inc()
		return nil, gen, false
	}
	return &ledger, gen, true
}

// Set writes the aggregate in a MULTI/EXEC guarded by WATCH on the
// generation key.
func (r *Redis) Set(ctx context.Context, groupID string, gen uint64, ledger *calculator.Ledger) {
	data, err := json.Marshal(ledger)
	if err != nil {
		slog.Error("Failed to marshal balances for caching", "error", err, "group_id", groupID)
		return
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, generationKey(groupID)).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(groupID), data, r.ttl)
			return nil
		})
		return err
	}, generationKey(groupID))

	switch {
	case err == nil:
	case errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
		metrics.CacheStaleWrites.Inc()
	default:
		slog.Error("Failed to SET balances to cache", "error", err, "group_id", groupID)
		metrics.CacheErrors.WithLabelValues("set").Inc()
	}
}

func (r *Redis) Invalidate(ctx context.Context, groupID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(groupID))
		pipe.Del(ctx, key(groupID))
		return nil
	})
	if err != nil {
		metrics.CacheErrors.WithLabelValues("del").Inc()
		return fmt.Errorf("failed to invalidate cached balances: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

package tickcache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bikeshrana/tradingd/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "tick:"

// Redis is a Cache backed by github.com/redis/go-redis/v9, grounded on
// the rate-limiter example's redis.Cmdable-parameterized TokenBucket:
// depend on the interface so a standalone client, a cluster client, or a
// test double all satisfy it.
type Redis struct {
	client redis.Cmdable
	logger zerolog.Logger
}

// NewRedis wraps an existing client. Passing a *redis.Client or
// *redis.ClusterClient both work since both implement redis.Cmdable.
func NewRedis(client redis.Cmdable, logger zerolog.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

func (r *Redis) Set(ctx context.Context, q types.Quote, ttl time.Duration) error {
	data, err := marshalQuote(q)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyPrefix+q.Symbol, data, ttl).Err()
}

func (r *Redis) Get(ctx context.Context, symbol string) (types.Quote, bool, error) {
	data, err := r.client.Get(ctx, keyPrefix+symbol).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.Quote{}, false, nil
	}
	if err != nil {
		return types.Quote{}, false, err
	}
	q, err := unmarshalQuote(data)
	if err != nil {
		return types.Quote{}, false, err
	}
	return q, true, nil
}

// Symbols uses KEYS rather than SCAN: the tick cache's key space is
// bounded by the number of configured instruments, not by user input, so
// the usual SCAN-over-KEYS production guidance doesn't apply here.
func (r *Redis) Symbols(ctx context.Context) ([]string, error) {
	keys, err := r.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(keys))
	for _, k := range keys {
		symbols = append(symbols, strings.TrimPrefix(k, keyPrefix))
	}
	return symbols, nil
}

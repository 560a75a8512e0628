package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// keyPrefix namespaces dedup keys in Redis.
const keyPrefix = "intake:fp:"

// redisCmdable is the subset of *redis.Client the mirror uses.
type redisCmdable interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisLedger mirrors recent fingerprints in Redis in front of an
// authoritative ledger. A Redis hit short-circuits the SQL query; a miss or
// a Redis error falls through to next.
type RedisLedger struct {
	rdb    redisCmdable
	window time.Duration
	next   Ledger
}

// NewRedisLedger wraps next with a Redis mirror whose keys expire after window.
func NewRedisLedger(rdb *redis.Client, window time.Duration, next Ledger) *RedisLedger {
	return newRedisLedger(rdb, window, next)
}

func newRedisLedger(rdb redisCmdable, window time.Duration, next Ledger) *RedisLedger {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLedger{rdb: rdb, window: window, next: next}
}

// Seen checks Redis first, then the wrapped ledger.
func (l *RedisLedger) Seen(ctx context.Context, fingerprint string, now time.Time) (bool, error) {
	n, err := l.rdb.Exists(ctx, keyPrefix+fingerprint).Result()
	if err != nil {
		log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("dedup mirror lookup failed")
	} else if n > 0 {
		return true, nil
	}
	return l.next.Seen(ctx, fingerprint, now)
}

// Remember writes the fingerprint with a TTL covering the rest of the window
// and then forwards to the wrapped ledger. Mirror failures are logged only.
func (l *RedisLedger) Remember(ctx context.Context, fingerprint string, at time.Time) error {
	ttl := l.window - time.Since(at)
	if ttl > 0 {
		if err := l.rdb.Set(ctx, keyPrefix+fingerprint, at.UTC().Unix(), ttl).Err(); err != nil {
			log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("dedup mirror write failed")
		}
	}
	if err := l.next.Remember(ctx, fingerprint, at); err != nil {
		return fmt.Errorf("dedup remember: %w", err)
	}
	return nil
}

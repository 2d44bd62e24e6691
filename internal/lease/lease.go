// Package lease keeps a single ledger writer alive per deployment: the
// process that holds the Redis key owns the event log.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RangeLedger/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	ErrHeld = errors.New("lease: held by another writer")
	ErrLost = errors.New("lease: lost")
)

// releaseLua deletes the key only while it still carries our token.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// refreshLua extends the TTL only while the key still carries our token.
const refreshLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// Lease is a Redis SETNX lock with a TTL, refreshed while the holder runs.
type Lease struct {
	rdb       redis.UniversalClient
	key       string
	ttl       time.Duration
	token     string
	releaseSc *redis.Script
	refreshSc *redis.Script
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func New(rdb redis.UniversalClient, key string, ttl time.Duration, metrics *observability.Metrics, logger zerolog.Logger) *Lease {
	return &Lease{
		rdb:       rdb,
		key:       key,
		ttl:       ttl,
		token:     uuid.NewString(),
		releaseSc: redis.NewScript(releaseLua),
		refreshSc: redis.NewScript(refreshLua),
		metrics:   metrics,
		logger:    logger,
	}
}

// Token identifies this holder.
func (l *Lease) Token() string { return l.token }

// Acquire takes the lease or returns ErrHeld.
func (l *Lease) Acquire(ctx context.Context) error {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("lease: acquire %s: %w", l.key, err)
	}
	if !ok {
		holder, _ := l.rdb.Get(ctx, l.key).Result()
		return fmt.Errorf("%w (key=%s holder=%s)", ErrHeld, l.key, holder)
	}
	l.setHeld(true)
	l.logger.Info().Str("key", l.key).Str("token", l.token).Dur("ttl", l.ttl).Msg("writer lease acquired")
	return nil
}

// Refresh extends the TTL, returning ErrLost if another holder has the key.
func (l *Lease) Refresh(ctx context.Context) error {
	n, err := l.refreshSc.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("lease: refresh %s: %w", l.key, err)
	}
	if n == 0 {
		l.setHeld(false)
		return ErrLost
	}
	return nil
}

// Keep refreshes the lease every ttl/3 until ctx ends. It returns ErrLost as
// soon as the key is gone or owned by someone else, and gives up after the
// TTL has passed without a successful refresh.
func (l *Lease) Keep(ctx context.Context) error {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	lastOK := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := l.Refresh(ctx)
			switch {
			case err == nil:
				lastOK = time.Now()
			case errors.Is(err, ErrLost):
				return err
			case ctx.Err() != nil:
				return nil
			default:
				l.logger.Warn().Err(err).Msg("lease refresh failed")
				if time.Since(lastOK) >= l.ttl {
					l.setHeld(false)
					return fmt.Errorf("%w: no refresh for %s: %v", ErrLost, l.ttl, err)
				}
			}
		}
	}
}

// Release drops the lease if we still hold it. Safe to call more than once.
func (l *Lease) Release() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.releaseSc.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		l.logger.Warn().Err(err).Msg("lease release failed")
	}
	l.setHeld(false)
}

func (l *Lease) setHeld(held bool) {
	if l.metrics == nil {
		return
	}
	v := 0.0
	if held {
		v = 1
	}
	l.metrics.LeaseHeld.Set(v)
}

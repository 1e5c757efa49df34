// Package lease provides a Redis-backed cycle lease so that two running
// instances never work the same accounts file at once.
package lease

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bardlex/stobixd/pkg/errors"
	"github.com/bardlex/stobixd/pkg/log"
)

// releaseScript deletes the key only while it still holds our token
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// renewScript extends the key's TTL only while it still holds our token
const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

// Store is the subset of *redis.Client the lease needs
type Store interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Config holds lease settings
type Config struct {
	URL string
	Key string
	TTL time.Duration
}

// RedisLease implements a single-holder lease with SET NX PX
type RedisLease struct {
	store  Store
	key    string
	ttl    time.Duration
	token  string
	logger *log.Logger
}

// New connects to Redis and returns a lease on cfg.Key
func New(cfg *Config, logger *log.Logger) (*RedisLease, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "redis_url",
			"invalid Redis URL")
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "redis_ping",
			"failed to ping Redis")
	}

	return NewWithStore(rdb, cfg.Key, cfg.TTL, logger), nil
}

// NewWithStore builds a lease over an existing store
func NewWithStore(store Store, key string, ttl time.Duration, logger *log.Logger) *RedisLease {
	return &RedisLease{
		store:  store,
		key:    key,
		ttl:    ttl,
		token:  uuid.NewString(),
		logger: logger.WithComponent("lease"),
	}
}

// Acquire takes the lease. It reports false when another holder has it.
func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.store.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeInternal, "lease_acquire",
			"failed to acquire cycle lease").WithContext("key", l.key)
	}
	if ok {
		l.logger.Debug("cycle lease acquired", "key", l.key, "ttl", l.ttl)
	}
	return ok, nil
}

// Renew resets the TTL of a lease this instance holds. It reports false
// when the lease expired or was taken by another holder.
func (l *RedisLease) Renew(ctx context.Context) (bool, error) {
	n, err := l.store.Eval(ctx, renewScript, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeInternal, "lease_renew",
			"failed to renew cycle lease").WithContext("key", l.key)
	}
	return n == 1, nil
}

// Release drops the lease if this instance still holds it
func (l *RedisLease) Release(ctx context.Context) error {
	n, err := l.store.Eval(ctx, releaseScript, []string{l.key}, l.token).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "lease_release",
			"failed to release cycle lease").WithContext("key", l.key)
	}
	if n == 0 {
		l.logger.Warn("cycle lease expired before release", "key", l.key)
	}
	return nil
}

// Health checks Redis connectivity
func (l *RedisLease) Health(ctx context.Context) error {
	return l.store.Ping(ctx).Err()
}

// Close closes the Redis connection
func (l *RedisLease) Close() error {
	return l.store.Close()
}

// Package coord serialises workflows that must not overlap, such as a delete
// and a flatten of the same collections.
package coord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("lock held by another run")

// Config configures the run lock.
type Config struct {
	// URL is a redis:// URL. Empty disables locking.
	URL string `mapstructure:"url" default:""`
	// LockTTLSeconds bounds how long a crashed run can block others.
	LockTTLSeconds int `mapstructure:"lock_ttl_seconds" default:"900"`
}

// Release gives a lock back.
type Release func(ctx context.Context) error

// Locker grants named run locks.
type Locker interface {
	Acquire(ctx context.Context, name string) (Release, error)
	Close() error
}

// New returns a Redis locker, or a no-op locker when cfg.URL is empty.
func New(cfg Config, log *zap.Logger) (Locker, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.URL == "" {
		log.Debug("Run lock disabled")
		return Noop{}, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	ttl := time.Duration(cfg.LockTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return NewRedis(redis.NewClient(opts), ttl, log), nil
}

// Noop grants every lock.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

func (Noop) Close() error { return nil }

// unlock deletes the key only if it still holds our token.
var unlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis implements Locker with SET NX and a per-acquisition token.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, ttl time.Duration, log *zap.Logger) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{client: client, ttl: ttl, log: log}
}

func key(name string) string {
	return "termsync:lock:" + name
}

// Acquire takes the lock or returns ErrLocked.
func (r *Redis) Acquire(ctx context.Context, name string) (Release, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key(name), token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, name)
	}
	r.log.Debug("Lock acquired", zap.String("lock", name), zap.Duration("ttl", r.ttl))

	return func(ctx context.Context) error {
		if err := unlock.Run(ctx, r.client, []string{key(name)}, token).Err(); err != nil {
			return fmt.Errorf("release %s: %w", name, err)
		}
		r.log.Debug("Lock released", zap.String("lock", name))
		return nil
	}, nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

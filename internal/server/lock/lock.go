// Package lock provides the mutual exclusion used to keep sweeps from
// overlapping when several server replicas share one catalog.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned by Acquire when another holder owns the lock.
var ErrBusy = errors.New("lock is busy")

// Locker hands out leases on a single named lock.
type Locker interface {
	Acquire(ctx context.Context) (Lease, error)
}

// Lease is a held lock. Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

// Noop always succeeds. Used when the server runs as a single replica.
type Noop struct{}

func (Noop) Acquire(context.Context) (Lease, error) { return noopLease{}, nil }

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }

// redisClient is the subset of redis.Cmdable used here.
type redisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// Redis is a single-instance Redis lock: SET NX with a TTL, released only
// by the holder of the random token stored under the key.
type Redis struct {
	rdb redisClient
	key string
	ttl time.Duration
}

func NewRedis(rdb redisClient, key string, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, key: key, ttl: ttl}
}

func (l *Redis) Acquire(ctx context.Context) (Lease, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBusy
	}
	return &redisLease{lock: l, token: token}, nil
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLease struct {
	lock  *Redis
	token string
}

func (r *redisLease) Release(ctx context.Context) error {
	if r.token == "" {
		return nil
	}
	err := unlockScript.Run(ctx, r.lock.rdb, []string{r.lock.key}, r.token).Err()
	r.token = ""
	return err
}

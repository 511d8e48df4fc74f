package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"call-automation/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotHeld = errors.New("lock: not held")

// Locker hands out single-holder, TTL-bounded locks. ok is false when someone
// else holds key; release is then nil.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// Redis is a Locker shared across API replicas.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

func NewRedis(rdb *redis.Client, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

func (l *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	full := l.prefix + key
	token := uuid.NewString()
	ok, err := utils.AcquireLock(ctx, l.rdb, full, token, ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	release := func(ctx context.Context) error {
		released, err := utils.ReleaseLock(ctx, l.rdb, full, token)
		if err != nil {
			return err
		}
		if !released {
			return ErrNotHeld
		}
		return nil
	}
	return release, true, nil
}

// Memory is a process-local Locker, used when Redis is not configured.
type Memory struct {
	mu    sync.Mutex
	held  map[string]memoryEntry
	clock func() time.Time
}

type memoryEntry struct {
	token   string
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{held: map[string]memoryEntry{}, clock: time.Now}
}

func (l *Memory) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, false, nil
	}
	token := uuid.NewString()
	l.held[key] = memoryEntry{token: token, expires: now.Add(ttl)}

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		e, ok := l.held[key]
		if !ok || e.token != token {
			return ErrNotHeld
		}
		delete(l.held, key)
		return nil
	}
	return release, true, nil
}

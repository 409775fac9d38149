package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrLockLost is returned by Release when the lock expired or was taken
// over before the cycle finished.
var ErrLockLost = errors.New("cron lock lost before release")

// Lock guards one cron cycle across replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfEquals(ctx context.Context, key, expected string) (bool, error)
}

// RedisLock belongs to whichever replica writes its token first. The TTL
// bounds how long a crashed holder blocks the next cycle.
type RedisLock struct {
	store  lockStore
	key    string
	holder string
	ttl    time.Duration
	token  string
}

// NewRedisLock builds a lock stored under key. holder names the replica in
// the stored token so operators can see who owns a stuck lock.
func NewRedisLock(store lockStore, key, holder string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("lock store required")
	case key == "":
		return nil, errors.New("lock key required")
	}
	if holder == "" {
		holder = "cron"
	}
	if ttl <= 0 {
		ttl = 2 * defaultInterval
	}
	return &RedisLock{store: store, key: key, holder: holder, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := l.holder + ":" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release deletes the key only while it still carries this holder's token.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	released, err := l.store.DelIfEquals(ctx, l.key, token)
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if !released {
		return ErrLockLost
	}
	return nil
}

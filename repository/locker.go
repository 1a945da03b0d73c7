package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/logistics_backend/config"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/bsm/redislock"
)

// Locker takes redislock locks. With no Redis client it serialises within the process only.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration

	mu    sync.Mutex
	local map[string]*sync.Mutex
}

func NewLocker(client *redislock.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Locker{client: client, ttl: ttl, local: map[string]*sync.Mutex{}}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	if l.client == nil {
		return l.lockLocal(key), nil
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), int(l.ttl/(50*time.Millisecond))),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, utils.Conflict("%s is busy, try again", key)
		}
		return nil, err
	}
	return func() {
		// Release with a fresh context; the request context may already be done.
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			config.LogError(config.GetLogger(), "repository", "Locker", "releasing lock", key, err)
		}
	}, nil
}

func (l *Locker) lockLocal(key string) func() {
	l.mu.Lock()
	m, ok := l.local[key]
	if !ok {
		m = &sync.Mutex{}
		l.local[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Package cache keeps upstream REST bodies for a short while so page loads do
// not hit the vendor APIs every time.
package cache

import (
	"context"
	"sync"
	"time"
)

// Store is a byte cache with per-entry TTL. Get reports ok=false on a miss;
// err is reserved for backend failures.
type Store interface {
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

type entry struct {
	val     []byte
	expires time.Time
}

// Memory is the in-process Store used when no Redis is configured.
type Memory struct {
	mu  sync.Mutex
	m   map[string]entry
	now func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{m: make(map[string]entry), now: time.Now}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.m, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.val...), true, nil
}

// Set with ttl <= 0 keeps the entry until overwritten.
func (c *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	e := entry{val: append([]byte(nil), val...)}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.m[key] = e
	return nil
}

// Package ratelimit implements fixed-window request limits per client key.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Noop allows everything.
type Noop struct{}

func (Noop) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true, Limit: -1, Remaining: -1}, nil
}

func decide(count int64, limit int, reset time.Time) Decision {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count <= int64(limit), Limit: limit, Remaining: remaining, ResetAt: reset}
}

func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

// Redis shares counters across replicas. Each window is its own key.
type Redis struct {
	rdb    goredis.UniversalClient
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedis(rdb goredis.UniversalClient, limit int, window time.Duration) *Redis {
	return &Redis{rdb: rdb, prefix: "equilix:ratelimit:", limit: limit, window: window, now: time.Now}
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	start := windowStart(r.now(), r.window)
	redisKey := r.prefix + key + ":" + strconv.FormatInt(start.UnixMilli(), 10)

	var incr *goredis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		incr = p.Incr(ctx, redisKey)
		p.PExpire(ctx, redisKey, r.window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit: %w", err)
	}
	return decide(incr.Val(), r.limit, start.Add(r.window)), nil
}

// Dial connects to addr and checks it with PING.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Memory keeps counters in process. Use it for a single replica.
type Memory struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	start time.Time
	count int64
}

const sweepThreshold = 10000

// NewMemory builds an in-process limiter. A nil now uses time.Now.
func NewMemory(limit int, window time.Duration, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{limit: limit, window: window, now: now, buckets: map[string]*bucket{}}
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	start := windowStart(m.now(), m.window)

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.buckets) >= sweepThreshold {
		for k, b := range m.buckets {
			if b.start.Before(start) {
				delete(m.buckets, k)
			}
		}
	}
	b, ok := m.buckets[key]
	if !ok || !b.start.Equal(start) {
		b = &bucket{start: start}
		m.buckets[key] = b
	}
	b.count++
	return decide(b.count, m.limit, start.Add(m.window)), nil
}

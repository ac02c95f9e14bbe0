// Package ratelimit bounds push-notification fan-out per user and event type
// with fixed-window counters. Denial never blocks the primary relay action; it
// only suppresses the notification that would otherwise follow it.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// Default per-event-type limits.
const (
	EventChatMessage   = "chat_message"
	EventMatchInterest = "match_interest"
	EventProfileView   = "profile_view"
)

// Rule is a fixed-window budget for one event type.
type Rule struct {
	Max    int
	Window time.Duration
}

// DefaultRules carries the notification budgets used in production.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		EventChatMessage:   {Max: 100, Window: time.Hour},
		EventMatchInterest: {Max: 10, Window: time.Hour},
		EventProfileView:   {Max: 50, Window: time.Hour},
	}
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter tracks one fixed-window counter per (user, event type). Windows
// reset lazily on access; a background sweep evicts fully expired buckets so
// memory stays bounded under user churn.
type Limiter struct {
	rules  map[string]Rule
	clock  func() time.Time
	shards [shardCount]limiterShard

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepOnce     sync.Once
	stopOnce      sync.Once
}

type limiterShard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects a time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithSweepInterval overrides how often expired buckets are evicted.
func WithSweepInterval(interval time.Duration) Option {
	return func(l *Limiter) {
		if interval > 0 {
			l.sweepInterval = interval
		}
	}
}

// NewLimiter constructs a limiter for the given rules. Event types without a
// rule are never limited.
func NewLimiter(rules map[string]Rule, options ...Option) *Limiter {
	if rules == nil {
		rules = DefaultRules()
	}
	limiter := &Limiter{
		rules:         rules,
		clock:         time.Now,
		sweepInterval: 10 * time.Minute,
		stopSweep:     make(chan struct{}),
	}
	for i := range limiter.shards {
		limiter.shards[i].buckets = make(map[string]*bucket)
	}
	for _, option := range options {
		option(limiter)
	}
	return limiter
}

func (l *Limiter) shardFor(key string) *limiterShard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key)) //nolint:errcheck
	return &l.shards[hasher.Sum32()%shardCount]
}

// Allow reports whether another event of this type may fan out for the user,
// incrementing the window counter when it may. A bucket whose reset time has
// passed is treated as fresh.
func (l *Limiter) Allow(userID, eventType string) bool {
	rule, limited := l.rules[eventType]
	if !limited || rule.Max <= 0 || rule.Window <= 0 {
		return true
	}

	key := userID + "\x00" + eventType
	shard := l.shardFor(key)
	now := l.clock()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, exists := shard.buckets[key]
	if !exists || !now.Before(entry.resetAt) {
		shard.buckets[key] = &bucket{count: 1, resetAt: now.Add(rule.Window)}
		return true
	}
	if entry.count >= rule.Max {
		return false
	}
	entry.count++
	return true
}

// Start launches the background sweep. Safe to call once; subsequent calls are
// no-ops.
func (l *Limiter) Start() {
	l.sweepOnce.Do(func() {
		go l.sweepLoop()
	})
}

// Stop terminates the background sweep.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopSweep)
	})
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stopSweep:
			return
		}
	}
}

func (l *Limiter) sweep() {
	now := l.clock()
	for i := range l.shards {
		shard := &l.shards[i]
		shard.mu.Lock()
		for key, entry := range shard.buckets {
			if !now.Before(entry.resetAt) {
				delete(shard.buckets, key)
			}
		}
		shard.mu.Unlock()
	}
}

// BucketCount reports live buckets across all shards, for observability.
func (l *Limiter) BucketCount() int {
	total := 0
	for i := range l.shards {
		shard := &l.shards[i]
		shard.mu.Lock()
		total += len(shard.buckets)
		shard.mu.Unlock()
	}
	return total
}

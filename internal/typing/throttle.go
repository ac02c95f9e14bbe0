package typing

import (
	"hash/fnv"
	"sync"
	"time"
)

const (
	// DefaultCooldown is the minimum interval between forwarded typing-start
	// events for one (sender, partner) pair.
	DefaultCooldown = time.Second

	shardCount = 32
)

// Throttle drops typing-start events issued faster than the cooldown for a
// given (sender, conversation partner) pair. Typing indicators are best-effort
// UX: a dropped start is silent, never an error.
type Throttle struct {
	cooldown time.Duration
	clock    func() time.Time
	shards   [shardCount]throttleShard
}

type throttleShard struct {
	mu       sync.Mutex
	accepted map[string]time.Time
}

// Option configures a Throttle.
type Option func(*Throttle)

// WithCooldown overrides the default cooldown interval.
func WithCooldown(cooldown time.Duration) Option {
	return func(t *Throttle) {
		if cooldown > 0 {
			t.cooldown = cooldown
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(t *Throttle) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// NewThrottle constructs a throttle with the default one second cooldown.
func NewThrottle(options ...Option) *Throttle {
	throttle := &Throttle{
		cooldown: DefaultCooldown,
		clock:    time.Now,
	}
	for i := range throttle.shards {
		throttle.shards[i].accepted = make(map[string]time.Time)
	}
	for _, option := range options {
		option(throttle)
	}
	return throttle
}

func pairKey(senderID, partnerID string) string {
	return senderID + "\x00" + partnerID
}

func (t *Throttle) shardFor(key string) *throttleShard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key)) //nolint:errcheck
	return &t.shards[hasher.Sum32()%shardCount]
}

// Accept reports whether a typing-start event for the pair should be forwarded
// and, when it should, records the acceptance time.
func (t *Throttle) Accept(senderID, partnerID string) bool {
	key := pairKey(senderID, partnerID)
	shard := t.shardFor(key)
	now := t.clock()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if last, seen := shard.accepted[key]; seen && now.Sub(last) < t.cooldown {
		return false
	}
	shard.accepted[key] = now
	return true
}

// Clear removes the cooldown state for the pair. Typing-stop events are never
// throttled, and clearing ensures the next typing-start is accepted
// immediately rather than waiting out a stale cooldown.
func (t *Throttle) Clear(senderID, partnerID string) {
	key := pairKey(senderID, partnerID)
	shard := t.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.accepted, key)
}

package presence

import (
	"hash/fnv"
	"sync"

	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/protocol"
)

const shardCount = 32

// EventSink receives events addressed to one open connection. Deliver must not
// block; a sink that cannot keep up drops the event.
type EventSink interface {
	Deliver(envelope protocol.Envelope)
}

// Registry tracks which connections each user currently holds and acts as the
// per-user broadcast room: publishing to a user reaches every open device.
// A user is online iff its connection set is non-empty.
type Registry struct {
	shards [shardCount]registryShard
}

type registryShard struct {
	mu      sync.RWMutex
	entries map[string]map[string]EventSink
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	registry := &Registry{}
	for i := range registry.shards {
		registry.shards[i].entries = make(map[string]map[string]EventSink)
	}
	return registry
}

func (r *Registry) shardFor(userID string) *registryShard {
	hasher := fnv.New32a()
	hasher.Write([]byte(userID)) //nolint:errcheck
	return &r.shards[hasher.Sum32()%shardCount]
}

// Add registers a connection under the user and reports whether the user
// transitioned from offline to online (the set was empty before this call).
func (r *Registry) Add(userID, connectionID string, sink EventSink) bool {
	shard := r.shardFor(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	connections, exists := shard.entries[userID]
	if !exists {
		connections = make(map[string]EventSink)
		shard.entries[userID] = connections
	}
	cameOnline := len(connections) == 0
	connections[connectionID] = sink
	return cameOnline
}

// Remove deregisters a connection and reports whether the user transitioned to
// offline (the set became empty). It is idempotent: removing an unknown
// connection is a no-op and never reports a transition.
func (r *Registry) Remove(userID, connectionID string) bool {
	shard := r.shardFor(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	connections, exists := shard.entries[userID]
	if !exists {
		return false
	}
	if _, registered := connections[connectionID]; !registered {
		return false
	}
	delete(connections, connectionID)
	if len(connections) > 0 {
		return false
	}
	delete(shard.entries, userID)
	return true
}

// IsOnline reports whether the user has at least one open connection.
func (r *Registry) IsOnline(userID string) bool {
	shard := r.shardFor(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	return len(shard.entries[userID]) > 0
}

// Connections returns the identifiers of the user's open connections.
func (r *Registry) Connections(userID string) []string {
	shard := r.shardFor(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	connections := shard.entries[userID]
	if len(connections) == 0 {
		return nil
	}
	identifiers := make([]string, 0, len(connections))
	for connectionID := range connections {
		identifiers = append(identifiers, connectionID)
	}
	return identifiers
}

// OnlineCount returns the number of users with at least one open connection.
func (r *Registry) OnlineCount() int {
	total := 0
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.RLock()
		total += len(shard.entries)
		shard.mu.RUnlock()
	}
	return total
}

// Publish fans an event out to every open connection of the user. Sinks are
// copied under the read lock and invoked outside it so a slow consumer never
// holds up registration traffic on the same shard.
func (r *Registry) Publish(userID string, envelope protocol.Envelope) {
	shard := r.shardFor(userID)
	shard.mu.RLock()
	connections := shard.entries[userID]
	if len(connections) == 0 {
		shard.mu.RUnlock()
		return
	}
	sinks := make([]EventSink, 0, len(connections))
	for _, sink := range connections {
		sinks = append(sinks, sink)
	}
	shard.mu.RUnlock()

	for _, sink := range sinks {
		sink.Deliver(envelope)
	}
}

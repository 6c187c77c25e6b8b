package store

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// shardCount is the number of independently locked partitions per store.
const shardCount = 32

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// shardedMap is a lock-striped map. A key always lives in the same shard, so
// per-key operations only need that shard's lock.
type shardedMap[V any] struct {
	shards [shardCount]*shard[V]
}

func newShardedMap[V any]() *shardedMap[V] {
	m := &shardedMap[V]{}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *shardedMap[V]) shardFor(key string) *shard[V] {
	return m.shards[xxhash.Sum64String(key)%shardCount]
}

func (m *shardedMap[V]) store(key string, v V) {
	s := m.shardFor(key)
	s.mu.Lock()
	s.items[key] = v
	s.mu.Unlock()
}

func (m *shardedMap[V]) load(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

func (m *shardedMap[V]) loadAndDelete(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if ok {
		delete(s.items, key)
	}
	return v, ok
}

func (m *shardedMap[V]) delete(key string) {
	s := m.shardFor(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// deleteIf removes key only when match accepts the stored value. match runs
// under the shard lock and must not call back into the map.
func (m *shardedMap[V]) deleteIf(key string, match func(V) bool) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if !ok || !match(v) {
		return false
	}
	delete(s.items, key)
	return true
}

// collect returns the values accepted by keep. Shards are visited one at a
// time, so the result is not an atomic view across shards.
func (m *shardedMap[V]) collect(keep func(V) bool) []V {
	var out []V
	for _, s := range m.shards {
		s.mu.RLock()
		for _, v := range s.items {
			if keep(v) {
				out = append(out, v)
			}
		}
		s.mu.RUnlock()
	}
	return out
}

func (m *shardedMap[V]) len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

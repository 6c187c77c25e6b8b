package store

import "time"

// MemoryResultStore is an in-memory, lock-striped [ResultStore].
//
// The zero value is not usable; create one with [NewMemoryResultStore].
type MemoryResultStore struct {
	m *shardedMap[PendingResult]
}

// NewMemoryResultStore creates an empty [MemoryResultStore].
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{m: newShardedMap[PendingResult]()}
}

// Put stores result keyed by its RequestID, replacing any previous value.
func (s *MemoryResultStore) Put(result PendingResult) {
	s.m.store(result.RequestID, result)
}

// Exists reports whether a result is buffered for requestID.
func (s *MemoryResultStore) Exists(requestID string) bool {
	_, ok := s.m.load(requestID)
	return ok
}

// Get returns the buffered result for requestID.
func (s *MemoryResultStore) Get(requestID string) (PendingResult, bool) {
	return s.m.load(requestID)
}

// Take atomically removes and returns the result for requestID.
func (s *MemoryResultStore) Take(requestID string) (PendingResult, bool) {
	return s.m.loadAndDelete(requestID)
}

// Remove deletes the result for requestID. Unknown ids are ignored.
func (s *MemoryResultStore) Remove(requestID string) {
	s.m.delete(requestID)
}

// RemoveIf deletes the result for requestID when match accepts it.
func (s *MemoryResultStore) RemoveIf(requestID string, match func(PendingResult) bool) bool {
	return s.m.deleteIf(requestID, match)
}

// FindOlderThan returns results whose IssuedAt is strictly before cutoff.
//
// The returned slice is a copy. Results stored while the scan is running may
// or may not be included.
func (s *MemoryResultStore) FindOlderThan(cutoff time.Time) []PendingResult {
	return s.m.collect(func(r PendingResult) bool {
		return r.IssuedAt.Before(cutoff)
	})
}

// Len returns the number of buffered results.
func (s *MemoryResultStore) Len() int {
	return s.m.len()
}

// MemoryConnectionStore is an in-memory, lock-striped [ConnectionStore].
//
// The zero value is not usable; create one with [NewMemoryConnectionStore].
type MemoryConnectionStore struct {
	m *shardedMap[ConnectionMarker]
}

// NewMemoryConnectionStore creates an empty [MemoryConnectionStore].
func NewMemoryConnectionStore() *MemoryConnectionStore {
	return &MemoryConnectionStore{m: newShardedMap[ConnectionMarker]()}
}

// Put stores marker keyed by its RequestID, replacing any previous value.
func (s *MemoryConnectionStore) Put(marker ConnectionMarker) {
	s.m.store(marker.RequestID, marker)
}

// Exists reports whether a marker is stored for requestID.
func (s *MemoryConnectionStore) Exists(requestID string) bool {
	_, ok := s.m.load(requestID)
	return ok
}

// Remove deletes the marker for requestID. Unknown ids are ignored.
func (s *MemoryConnectionStore) Remove(requestID string) {
	s.m.delete(requestID)
}

// RemoveIf deletes the marker for requestID when match accepts it.
func (s *MemoryConnectionStore) RemoveIf(requestID string, match func(ConnectionMarker) bool) bool {
	return s.m.deleteIf(requestID, match)
}

// FindOlderThan returns markers whose ConnectedAt is strictly before cutoff.
func (s *MemoryConnectionStore) FindOlderThan(cutoff time.Time) []ConnectionMarker {
	return s.m.collect(func(c ConnectionMarker) bool {
		return c.ConnectedAt.Before(cutoff)
	})
}

// Len returns the number of stored markers.
func (s *MemoryConnectionStore) Len() int {
	return s.m.len()
}

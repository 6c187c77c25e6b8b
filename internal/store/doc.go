// Package store holds the relay's in-flight state: pending coupon results
// waiting for a client and connection markers waiting for a result.
//
// The main components are:
//
//   - [PendingResult]: a backend outcome keyed by request id
//   - [ConnectionMarker]: proof that a client is listening for a request id
//   - [ResultStore] and [ConnectionStore]: the keyed stores consulted by the
//     delivery coordinator and swept by the reaper
//   - [MemoryResultStore] and [MemoryConnectionStore]: lock-striped in-memory
//     implementations
//
// Every single-key operation is atomic. Operations on different keys only
// contend when the keys hash to the same shard. Nothing is persisted; all
// state is lost when the process exits.
package store

// Package delivery decides when a coupon result reaches its client.
//
// A result and the client waiting for it arrive independently and in either
// order. [Coordinator] stores whichever side shows up first and hands the
// result to a [Transport] as soon as both sides exist, exactly once.
//
// Both entry points follow the same protocol: record your own side, then
// check for the other side, and if it is there try to claim the result with
// an atomic take. Because each caller writes before it reads, at least one of
// two racing callers sees the other, and because the take is atomic at most
// one of them pushes. Neither ordering can strand a result next to a live
// marker.
package delivery

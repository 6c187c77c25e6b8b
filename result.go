package couponrelay

import (
	"context"
	"time"

	"github.com/jpalmerr/couponrelay/internal/delivery"
	"github.com/jpalmerr/couponrelay/internal/store"
)

// Kind identifies which coupon operation produced a [Result].
type Kind = store.Kind

const (
	// KindIssue is the outcome of a coupon issuance request.
	KindIssue = store.KindIssue

	// KindRedeem is the outcome of a coupon redemption request.
	KindRedeem = store.KindRedeem
)

// Result is a backend outcome for one request id. It is also the payload
// delivered to the client.
type Result = store.PendingResult

// Outcome reports what [Relay.Submit] did with a result.
type Outcome = delivery.Outcome

const (
	// Buffered means no client was connected; the result is held until one
	// connects or the result is evicted.
	Buffered = delivery.OutcomeBuffered

	// Delivered means the result was pushed to a connected client.
	Delivered = delivery.OutcomeDelivered
)

// Input errors returned by [Relay.Submit] and [Relay.RegisterConnection].
var (
	ErrEmptyRequestID = store.ErrEmptyRequestID
	ErrUnknownKind    = store.ErrUnknownKind
)

// ParseKind converts s to a [Kind]. Matching is case-insensitive and accepts
// the legacy names "GIVE" and "USE".
func ParseKind(s string) (Kind, error) {
	return store.ParseKind(s)
}

// Transport delivers a result to a destination.
//
// Implementations must be safe for concurrent use and must not block for
// long; a push is fire-and-forget and is never retried.
type Transport interface {
	Name() string
	Push(ctx context.Context, destination string, result Result) error
}

// Clock supplies the current time to the relay. Inject a fixed or manual
// clock in tests to make eviction deterministic.
type Clock interface {
	Now() time.Time
}

// SweepReport counts what one eviction sweep removed.
type SweepReport struct {
	ConnectionsEvicted int
	ResultsEvicted     int
}

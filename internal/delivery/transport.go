package delivery

import (
	"context"

	"github.com/jpalmerr/couponrelay/internal/store"
)

// Transport pushes a result to the client listening on destination.
//
// Push is fire-and-forget: a nil error means the transport accepted the
// result, not that a client received it. Implementations must be safe for
// concurrent use and must not block for long.
type Transport interface {
	// Name labels the transport in logs and metrics.
	Name() string

	Push(ctx context.Context, destination string, result store.PendingResult) error
}

// Destinations maps a result kind to its outbound destination.
type Destinations struct {
	// IssuePrefix is prepended to the request id for ISSUE results.
	IssuePrefix string

	// RedeemPrefix is prepended to the request id for REDEEM results.
	RedeemPrefix string
}

// Validate checks that both prefixes are set and distinct.
func (d Destinations) Validate() error {
	if d.IssuePrefix == "" || d.RedeemPrefix == "" {
		return ErrEmptyPrefix
	}
	if d.IssuePrefix == d.RedeemPrefix {
		return ErrSamePrefix
	}
	return nil
}

// For returns the destination for a result of kind for requestID.
// Unknown kinds fall back to the redeem prefix, matching the reference relay.
func (d Destinations) For(kind store.Kind, requestID string) string {
	if kind == store.KindIssue {
		return d.IssuePrefix + requestID
	}
	return d.RedeemPrefix + requestID
}

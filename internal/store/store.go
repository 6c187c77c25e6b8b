package store

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies which coupon operation produced a result. It selects the
// destination prefix the result is pushed on.
type Kind string

const (
	// KindIssue is the outcome of a coupon issuance ("give") request.
	KindIssue Kind = "ISSUE"

	// KindRedeem is the outcome of a coupon redemption ("use") request.
	KindRedeem Kind = "REDEEM"
)

// ParseKind converts s to a [Kind].
//
// Matching is case-insensitive and also accepts the legacy names "GIVE" and
// "USE" still sent by older backends.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ISSUE", "GIVE":
		return KindIssue, nil
	case "REDEEM", "USE":
		return KindRedeem, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindIssue || k == KindRedeem
}

// String returns the kind name.
func (k Kind) String() string {
	return string(k)
}

// PendingResult is a backend outcome for one request id.
//
// It is also the payload pushed to the client, so it carries JSON tags.
type PendingResult struct {
	// RequestID correlates the result with a client connection.
	RequestID string `json:"requestId"`

	// Kind selects the delivery destination.
	Kind Kind `json:"kind"`

	// Success is the outcome flag.
	Success bool `json:"success"`

	// Detail is a human-readable failure message. nil on success.
	Detail *string `json:"detail"`

	// IssuedAt is when the result was produced; used for eviction.
	IssuedAt time.Time `json:"issuedAt"`
}

// Validate checks the fields the relay relies on.
func (r PendingResult) Validate() error {
	if strings.TrimSpace(r.RequestID) == "" {
		return ErrEmptyRequestID
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}
	return nil
}

// ConnectionMarker records that a client is connected for a request id.
type ConnectionMarker struct {
	// RequestID is the correlation key.
	RequestID string

	// ConnectionID distinguishes successive registrations for the same
	// request id, so releasing an old connection never removes a newer one.
	ConnectionID string

	// ConnectedAt is the registration time; used for eviction.
	ConnectedAt time.Time
}

// ResultStore holds results that arrived before their client connected.
//
// Implementations must be safe for concurrent use, and every method must be
// atomic with respect to its key.
type ResultStore interface {
	// Put stores result, replacing any previous result for the same id.
	Put(result PendingResult)

	// Exists reports whether a result is buffered for requestID.
	Exists(requestID string) bool

	// Get returns the buffered result for requestID.
	Get(requestID string) (PendingResult, bool)

	// Take removes and returns the buffered result for requestID. Of any
	// number of concurrent callers, at most one observes ok == true.
	Take(requestID string) (PendingResult, bool)

	// Remove deletes the result for requestID, if any.
	Remove(requestID string)

	// RemoveIf deletes the result for requestID only if match returns true
	// for the currently stored value. It reports whether a value was removed.
	RemoveIf(requestID string, match func(PendingResult) bool) bool

	// FindOlderThan returns a snapshot of results issued strictly before cutoff.
	FindOlderThan(cutoff time.Time) []PendingResult

	// Len returns the number of buffered results.
	Len() int
}

// ConnectionStore holds markers for clients waiting on a result.
//
// Implementations must be safe for concurrent use, and every method must be
// atomic with respect to its key.
type ConnectionStore interface {
	// Put stores marker, replacing any previous marker for the same id.
	Put(marker ConnectionMarker)

	// Exists reports whether a marker is stored for requestID.
	Exists(requestID string) bool

	// Remove deletes the marker for requestID, if any.
	Remove(requestID string)

	// RemoveIf deletes the marker for requestID only if match returns true
	// for the currently stored value. It reports whether a value was removed.
	RemoveIf(requestID string, match func(ConnectionMarker) bool) bool

	// FindOlderThan returns a snapshot of markers registered strictly before cutoff.
	FindOlderThan(cutoff time.Time) []ConnectionMarker

	// Len returns the number of stored markers.
	Len() int
}

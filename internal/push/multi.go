package push

import (
	"context"
	"errors"
	"strings"

	"github.com/jpalmerr/couponrelay/internal/delivery"
	"github.com/jpalmerr/couponrelay/internal/store"
)

// Multi pushes every result to each of its transports in order.
type Multi struct {
	transports []delivery.Transport
}

// NewMulti creates a [Multi] over transports.
func NewMulti(transports ...delivery.Transport) (*Multi, error) {
	if len(transports) == 0 {
		return nil, ErrNoTransports
	}
	return &Multi{transports: transports}, nil
}

// Name joins the names of the wrapped transports.
func (m *Multi) Name() string {
	names := make([]string, len(m.transports))
	for i, t := range m.transports {
		names[i] = t.Name()
	}
	return strings.Join(names, "+")
}

// Push succeeds when at least one transport accepts the result. When all of
// them fail the joined errors are returned.
func (m *Multi) Push(ctx context.Context, destination string, result store.PendingResult) error {
	var errs []error
	for _, t := range m.transports {
		if err := t.Push(ctx, destination, result); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(m.transports) {
		return errors.Join(errs...)
	}
	return nil
}

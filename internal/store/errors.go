package store

import "errors"

var (
	ErrEmptyRequestID = errors.New("request id is required")
	ErrUnknownKind    = errors.New("unknown coupon request kind")
)

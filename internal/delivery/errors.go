package delivery

import "errors"

var (
	ErrNilResultStore     = errors.New("result store is required")
	ErrNilConnectionStore = errors.New("connection store is required")
	ErrNilTransport       = errors.New("transport is required")
	ErrEmptyPrefix        = errors.New("destination prefixes must not be empty")
	ErrSamePrefix         = errors.New("issue and redeem prefixes must differ")
)

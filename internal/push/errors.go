package push

import "errors"

var (
	ErrNoSubscriber = errors.New("no subscriber for destination")
	ErrClosed       = errors.New("transport is closed")
	ErrWebhookURL   = errors.New("webhook url must be an absolute http or https url")
	ErrNoTransports = errors.New("at least one transport is required")
)

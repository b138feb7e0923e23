package domain

import "errors"

var (
	ErrNotConnected       = errors.New("not connected")
	ErrFeedNotReady       = errors.New("quote feed not ready")
	ErrTickerNotFound     = errors.New("ticker not found")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrOrderRejected      = errors.New("order rejected")
	ErrTransientQuery     = errors.New("transient query failure")
)

package protocol

import "errors"

var (
	ErrInvalidRecord   = errors.New("protocol: invalid record")
	ErrInvalidLayer    = errors.New("protocol: invalid layer record")
	ErrMissingVersion  = errors.New("protocol: missing version")
	ErrNegativeCount   = errors.New("protocol: negative count")
	ErrPayloadTooLarge = errors.New("protocol: payload too large")
)

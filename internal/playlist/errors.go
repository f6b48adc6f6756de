package playlist

import "errors"

var (
	// ErrSourceUnavailable wraps network and HTTP failures from a record source.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedRecord marks a listing or play entry missing required fields.
	ErrMalformedRecord = errors.New("malformed record")
)

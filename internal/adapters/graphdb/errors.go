package graphdb

import "errors"

// Sentinel kinds for Bolt store errors.
var (
	ErrConnect      = errors.New("graph database connection failed")
	ErrQueryFailed  = errors.New("graph database query failed")
	ErrDecodeRecord = errors.New("cannot decode graph database record")
)

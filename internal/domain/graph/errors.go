package graph

import "errors"

// Sentinel kinds for graph operations.
var (
	ErrEntityNotFound = errors.New("entity not found")
	ErrWriteConflict  = errors.New("concurrent write conflict")
	ErrInvalidBatch   = errors.New("invalid mutation batch")
	ErrUnboundedQuery = errors.New("unbounded temporal query")
)

package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidDeleteMode = errors.New("invalid delete mode")
	ErrInvalidScope      = errors.New("scope requires exactly one of project_id or assignee_id")
	ErrInvalidBatchOp    = errors.New("invalid batch operation")
)

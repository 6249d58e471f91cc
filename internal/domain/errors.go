package domain

import "errors"

var (
	ErrInvalidID           = errors.New("invalid id")
	ErrInvalidName         = errors.New("invalid name")
	ErrInvalidTitle        = errors.New("invalid title")
	ErrInvalidItemType     = errors.New("invalid item type")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrInvalidEstimate     = errors.New("invalid estimate")
	ErrInvalidEstimateMode = errors.New("invalid estimate mode")
	ErrInvalidParentID     = errors.New("invalid parent id")
	ErrParentCycle         = errors.New("parent assignment would create a cycle")
	ErrInvalidRole         = errors.New("invalid member role")
	ErrInvalidUserID       = errors.New("invalid user id")
	ErrInvalidReason       = errors.New("invalid reason")
	ErrInvalidDuration     = errors.New("duration must be positive")
	ErrInvalidMinutes      = errors.New("minutes must be positive")
	ErrInvalidStartTime    = errors.New("invalid start time")
	ErrInvalidWindow       = errors.New("invalid time window")
	ErrBlockerResolved     = errors.New("blocker already resolved")
)

// Dependency guard errors. Messages are surfaced verbatim to callers.
var (
	ErrInvalidDependencyType  = errors.New("invalid dependency type")
	ErrSelfDependency         = errors.New("dependency cannot point to itself")
	ErrDependencyCycle        = errors.New("dependency cycle detected")
	ErrDuplicateDependency    = errors.New("dependency already exists")
	ErrCrossProjectDependency = errors.New("dependency must not cross projects")
)

package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DependencyType identifies one of the four interval precedence modes.
type DependencyType string

// DependencyType values.
const (
	DependencyFinishToStart  DependencyType = "FS"
	DependencyStartToStart   DependencyType = "SS"
	DependencyFinishToFinish DependencyType = "FF"
	DependencyStartToFinish  DependencyType = "SF"
)

// Dependency is a precedence edge: ItemID (successor) depends on DependsOnID (predecessor).
type Dependency struct {
	ID          string
	ProjectID   string
	ItemID      string
	DependsOnID string
	Type        DependencyType
	LagMinutes  int
	CreatedAt   time.Time
}

// DependencyInput holds values for NewDependency.
type DependencyInput struct {
	ID          string
	ProjectID   string
	ItemID      string
	DependsOnID string
	Type        DependencyType
	LagMinutes  int
}

// NewDependency validates edge shape only; graph invariants are checked by the engine guard.
func NewDependency(in DependencyInput, now time.Time) (Dependency, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.ItemID = strings.TrimSpace(in.ItemID)
	in.DependsOnID = strings.TrimSpace(in.DependsOnID)
	if in.ID == "" || in.ProjectID == "" || in.ItemID == "" || in.DependsOnID == "" {
		return Dependency{}, ErrInvalidID
	}
	if in.ItemID == in.DependsOnID {
		return Dependency{}, ErrSelfDependency
	}
	depType, err := ParseDependencyType(string(in.Type))
	if err != nil {
		return Dependency{}, err
	}
	return Dependency{
		ID:          in.ID,
		ProjectID:   in.ProjectID,
		ItemID:      in.ItemID,
		DependsOnID: in.DependsOnID,
		Type:        depType,
		LagMinutes:  in.LagMinutes,
		CreatedAt:   now.UTC(),
	}, nil
}

// ChangeMetadata is the change-event metadata recorded when the edge is added or removed.
func (d Dependency) ChangeMetadata() map[string]string {
	return map[string]string{
		"dependency_id": d.ID,
		"depends_on_id": d.DependsOnID,
		"type":          string(d.Type),
		"lag_minutes":   strconv.Itoa(d.LagMinutes),
	}
}

// ParseDependencyType canonicalizes a dependency type; empty means FS.
func ParseDependencyType(raw string) (DependencyType, error) {
	switch DependencyType(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", DependencyFinishToStart:
		return DependencyFinishToStart, nil
	case DependencyStartToStart:
		return DependencyStartToStart, nil
	case DependencyFinishToFinish:
		return DependencyFinishToFinish, nil
	case DependencyStartToFinish:
		return DependencyStartToFinish, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDependencyType, raw)
	}
}

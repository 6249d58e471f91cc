package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/tempo/internal/domain"
)

// BatchOpKind names one batch operation.
type BatchOpKind string

// BatchOpKind values.
const (
	BatchAddDependency    BatchOpKind = "add_dependency"
	BatchRemoveDependency BatchOpKind = "remove_dependency"
	BatchScheduleBlock    BatchOpKind = "schedule_block"
	BatchSetStatus        BatchOpKind = "set_status"
)

// BatchOp is one operation in a batch; fields not used by Op are ignored.
type BatchOp struct {
	Op              BatchOpKind
	ItemID          string
	DependsOnID     string
	DependencyID    string
	Type            string
	LagMinutes      int
	StartAt         time.Time
	DurationMinutes int
	Status          domain.ItemStatus
}

// BatchResult reports the outcome of one batch operation.
type BatchResult struct {
	Index int
	Op    BatchOpKind
	ID    string
	Err   error
}

// OK reports whether the operation succeeded.
func (r BatchResult) OK() bool {
	return r.Err == nil
}

// ApplyBatch runs each operation independently, in order. One operation's failure,
// including a rejected cycle, never aborts its siblings.
func (s *Service) ApplyBatch(ctx context.Context, ops []BatchOp) []BatchResult {
	out := make([]BatchResult, 0, len(ops))
	failed := 0
	for idx, op := range ops {
		if err := ctx.Err(); err != nil {
			out = append(out, BatchResult{Index: idx, Op: op.Op, Err: err})
			failed++
			continue
		}
		id, err := s.applyBatchOp(ctx, op)
		if err != nil {
			failed++
		}
		out = append(out, BatchResult{Index: idx, Op: op.Op, ID: id, Err: err})
	}
	s.logger.Info("batch applied", "ops", len(ops), "failed", failed)
	return out
}

func (s *Service) applyBatchOp(ctx context.Context, op BatchOp) (string, error) {
	switch BatchOpKind(strings.TrimSpace(strings.ToLower(string(op.Op)))) {
	case BatchAddDependency:
		dep, err := s.AddDependency(ctx, AddDependencyInput{
			ItemID:      op.ItemID,
			DependsOnID: op.DependsOnID,
			Type:        op.Type,
			LagMinutes:  op.LagMinutes,
		})
		return dep.ID, err
	case BatchRemoveDependency:
		return op.DependencyID, s.RemoveDependency(ctx, op.DependencyID)
	case BatchScheduleBlock:
		block, err := s.ScheduleBlock(ctx, ScheduleBlockInput{
			ItemID:          op.ItemID,
			StartAt:         op.StartAt,
			DurationMinutes: op.DurationMinutes,
		})
		return block.ID, err
	case BatchSetStatus:
		item, err := s.SetItemStatus(ctx, op.ItemID, op.Status)
		return item.ID, err
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBatchOp, op.Op)
	}
}

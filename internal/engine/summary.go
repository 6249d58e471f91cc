package engine

import (
	"time"

	"github.com/hylla/tempo/internal/domain"
)

// Summary folds one item's blocks into a count, total minutes, and outer envelope.
type Summary struct {
	Count        int
	TotalMinutes int
	Start        *time.Time
	End          *time.Time
}

// Window returns the summary's schedule envelope.
func (s Summary) Window() Window {
	return Window{Start: s.Start, End: s.End}
}

// Summarize folds blocks into one envelope spanning the earliest start and latest end.
// Gaps and overlaps between blocks are not represented. Blocks with a non-positive
// duration are skipped; the integrity report lists them.
func Summarize(blocks []domain.ScheduledBlock) Summary {
	var out Summary
	for _, block := range blocks {
		out = fold(out, block)
	}
	return out
}

// SummarizeByItem summarizes a bulk prefetch of blocks keyed by item id.
func SummarizeByItem(blocks []domain.ScheduledBlock) map[string]Summary {
	out := map[string]Summary{}
	for _, block := range blocks {
		out[block.ItemID] = fold(out[block.ItemID], block)
	}
	return out
}

func fold(s Summary, block domain.ScheduledBlock) Summary {
	if block.DurationMinutes <= 0 {
		return s
	}
	start := block.StartAt.UTC()
	end := DeriveEnd(start, block.DurationMinutes)
	s.Count++
	s.TotalMinutes += block.DurationMinutes
	if s.Start == nil || start.Before(*s.Start) {
		s.Start = &start
	}
	if s.End == nil || end.After(*s.End) {
		s.End = &end
	}
	return s
}

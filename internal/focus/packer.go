package focus

import (
	"fmt"
	"time"

	"focuscal/internal/model"
)

const (
	DefaultTargetDuration = 90 * time.Minute
	DefaultMinDuration    = 60 * time.Minute
	DefaultMaxSuggestions = 5

	GenericBlockTitle = "Deep Work Focus Block"
	genericBlockNotes = "Protected time for uninterrupted deep work"
)

// Packer turns free intervals into focus-block suggestions.
type Packer struct {
	// Target is the preferred block length. Values below Min are raised
	// to Min so every block lies in [Min, Target].
	Target time.Duration
	// Min is the shortest block created on its own.
	Min time.Duration
	// Max caps the returned suggestions. Values outside
	// [1, DefaultMaxSuggestions] mean DefaultMaxSuggestions.
	Max int
}

// PackResult is the packer output.
type PackResult struct {
	// Suggestions is the chronological list after the Max cap.
	Suggestions []model.FocusBlockSuggestion
	// Generated is the number of blocks built before truncation.
	Generated int
}

// PackBlocks packs with the default suggestion cap.
func PackBlocks(free []model.TimeInterval, queue *TaskQueue, target, min time.Duration) []model.FocusBlockSuggestion {
	return Packer{Target: target, Min: min}.Pack(free, queue).Suggestions
}

func (p Packer) normalized() Packer {
	if p.Min <= 0 {
		p.Min = DefaultMinDuration
	}
	if p.Target <= 0 {
		p.Target = DefaultTargetDuration
	}
	if p.Target < p.Min {
		p.Target = p.Min
	}
	p.Max = clampMax(p.Max)
	return p
}

func clampMax(n int) int {
	if n <= 0 || n > DefaultMaxSuggestions {
		return DefaultMaxSuggestions
	}
	return n
}

// Pack walks the intervals in order. Each interval of at least Min yields
// floor(d/Target) blocks of Target plus one block for a remainder of at
// least Min. Every block takes the next task from queue, if any; tasks used
// by blocks that are later cut by the cap stay consumed. The full list is
// built first and then truncated to Max, keeping the earliest blocks.
func (p Packer) Pack(free []model.TimeInterval, queue *TaskQueue) PackResult {
	p = p.normalized()

	var all []model.FocusBlockSuggestion
	for _, iv := range free {
		d := iv.Duration()
		if d < p.Min {
			continue
		}

		cursor := iv.Start()
		full := int(d / p.Target)
		for range full {
			end := cursor.Add(p.Target)
			all = append(all, newSuggestion(cursor, end, queue))
			cursor = end
		}

		if rem := d % p.Target; rem >= p.Min {
			all = append(all, newSuggestion(cursor, cursor.Add(rem), queue))
		}
	}

	res := PackResult{Suggestions: all, Generated: len(all)}
	if p.Max > 0 && len(all) > p.Max {
		res.Suggestions = all[:p.Max:p.Max]
	}
	if res.Suggestions == nil {
		res.Suggestions = []model.FocusBlockSuggestion{}
	}
	return res
}

func newSuggestion(start, end time.Time, queue *TaskQueue) model.FocusBlockSuggestion {
	s := model.FocusBlockSuggestion{
		Title:     GenericBlockTitle,
		StartTime: start,
		EndTime:   end,
		BlockType: model.BlockTypeFocus,
		Notes:     genericBlockNotes,
	}
	if t, ok := queue.Pop(); ok {
		id := t.ID
		s.Title = "Focus: " + t.Title
		s.RelatedTaskID = &id
		s.Notes = fmt.Sprintf("Dedicated time for %q (%s priority)", t.Title, t.Priority)
	}
	return s
}

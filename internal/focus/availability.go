package focus

import (
	"slices"
	"time"

	"focuscal/internal/model"
)

// DefaultMinFreeSlot is the shortest gap worth reporting as free time.
const DefaultMinFreeSlot = 30 * time.Minute

// AvailabilityConfig controls FindFreeSlotsWith.
type AvailabilityConfig struct {
	Policy model.WorkingHoursPolicy

	// RangeStart / RangeEnd select calendar dates (inclusive). Days are
	// evaluated in RangeStart's location.
	RangeStart time.Time
	RangeEnd   time.Time

	// MinSlot drops shorter gaps. If zero, DefaultMinFreeSlot is used.
	MinSlot time.Duration
}

// FindFreeSlots returns the free intervals inside working hours for every
// date from rangeStart to rangeEnd, using the default 30 minute floor.
func FindFreeSlots(commitments []model.Commitment, policy model.WorkingHoursPolicy, rangeStart, rangeEnd time.Time) []model.TimeInterval {
	return FindFreeSlotsWith(commitments, AvailabilityConfig{
		Policy:     policy,
		RangeStart: rangeStart,
		RangeEnd:   rangeEnd,
	})
}

// FindFreeSlotsWith sweeps each working day from its start, emitting the gap
// before every commitment and the tail after the last one when the gap is at
// least cfg.MinSlot. Shorter gaps are dropped silently. Output is
// chronological across the whole range.
func FindFreeSlotsWith(commitments []model.Commitment, cfg AvailabilityConfig) []model.TimeInterval {
	if cfg.MinSlot <= 0 {
		cfg.MinSlot = DefaultMinFreeSlot
	}

	out := make([]model.TimeInterval, 0)
	for day := range Days(cfg.RangeStart, cfg.RangeEnd) {
		hours, ok := cfg.Policy.For(day.Weekday())
		if !ok {
			continue
		}
		dayStart, dayEnd, ok := hours.Window(day)
		if !ok {
			continue
		}
		out = append(out, freeSlotsInWindow(commitments, dayStart, dayEnd, cfg.MinSlot)...)
	}
	return out
}

func freeSlotsInWindow(commitments []model.Commitment, dayStart, dayEnd time.Time, minSlot time.Duration) []model.TimeInterval {
	// A commitment belongs to this day when it intersects the working
	// window, which also catches events that started the previous evening.
	today := make([]model.Commitment, 0)
	for _, c := range commitments {
		if c.Start.Before(dayEnd) && c.End.After(dayStart) {
			today = append(today, c)
		}
	}
	slices.SortStableFunc(today, func(a, b model.Commitment) int {
		return a.Start.Compare(b.Start)
	})

	var out []model.TimeInterval
	cursor := dayStart
	for _, c := range today {
		if c.Start.After(cursor) && c.Start.Sub(cursor) >= minSlot {
			out = append(out, model.MustInterval(cursor, c.Start))
		}
		if c.End.After(cursor) {
			cursor = c.End
		}
	}
	if dayEnd.After(cursor) && dayEnd.Sub(cursor) >= minSlot {
		out = append(out, model.MustInterval(cursor, dayEnd))
	}
	return out
}

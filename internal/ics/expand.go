package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "focuscal/internal/log"
	"focuscal/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone to which all occurrences will be converted.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the half-open window [RangeStart, RangeEnd).
	// Occurrences intersecting it are returned.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent is a safety cap to avoid infinite or extremely
	// large expansions. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the list of expanded occurrences and optionally
// information about truncation.
type ExpandResult struct {
	Occurrences []model.Occurrence
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
}

// ExpandOccurrences takes a list of ParsedEvent (typically for one or more ICS
// sources) and expands them into concrete occurrences within the given time
// range. It handles:
//
//   - Single non-recurring events
//   - RRULE-based recurrence (DAILY/WEEKLY/MONTHLY/YEARLY, etc.)
//   - EXDATE for exception removal
//   - RECURRENCE-ID overrides
//   - All-day semantics
//
// Occurrences are converted into ExpandConfig.DisplayLocation and sorted by
// start time.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Group base events and overrides by UID.
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	var uids []string
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			uids = append(uids, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	all := make([]model.Occurrence, 0)
	for _, uid := range uids {
		ov := overridesByUID[uid]
		truncated := false
		for _, ev := range baseByUID[uid] {
			occ, hitCap := expandEvent(ev, ov, cfg)
			truncated = truncated || hitCap
			all = append(all, occ...)
		}
		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", uid,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Start.Equal(all[j].Start) {
			return all[i].Start.Before(all[j].Start)
		}
		return all[i].End.Before(all[j].End)
	})
	result.Occurrences = all
	return result, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Occurrence, bool) {
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, overrides, cfg), false
	}
	return expandRecurringEvent(ev, overrides, cfg)
}

func expandSingleEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.Occurrence {
	start, end := ev.Start, ev.End
	if o, ok := findOverrideForStart(overrides, start); ok {
		start, end, ev = o.Start, o.End, o
	}
	if !overlaps(start, end, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []model.Occurrence{makeOccurrence(ev, start, end, cfg.DisplayLocation)}
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Occurrence, bool) {
	out := make([]model.Occurrence, 0)

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return out, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Instances that began before the window but are still running count too.
	dur := ev.End.Sub(ev.Start)
	loc := ev.Start.Location()
	starts := set.Between(cfg.RangeStart.Add(-dur).In(loc), cfg.RangeEnd.In(loc), true)

	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	applied := make(map[int64]bool, len(overrides))
	for _, occStart := range starts {
		occEnd := occStart.Add(dur)
		if ev.AllDay {
			day := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occStart, occEnd = day, day.AddDate(0, 0, max(1, int(dur/(24*time.Hour))))
		}

		baseEv := ev
		if o, ok := findOverrideForStart(overrides, occStart); ok {
			applied[o.Recurrence.UnixNano()] = true
			occStart, occEnd, baseEv = o.Start, o.End, o
		}
		if !overlaps(occStart, occEnd, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		out = append(out, makeOccurrence(baseEv, occStart, occEnd, cfg.DisplayLocation))
	}

	// An instance whose original slot lies outside the window may have been
	// moved into it.
	for _, o := range overrides {
		if o.Recurrence == nil || applied[o.Recurrence.UnixNano()] {
			continue
		}
		if !overlaps(o.Start, o.End, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		out = append(out, makeOccurrence(o, o.Start, o.End, cfg.DisplayLocation))
	}

	return out, hitCap
}

// findOverrideForStart finds an override whose RECURRENCE-ID is the given
// instance start.
func findOverrideForStart(overrides []ParsedEvent, instanceStart time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(instanceStart) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// makeOccurrence converts a (possibly overridden) ParsedEvent + specific
// start/end time into a model.Occurrence normalized into displayLoc.
func makeOccurrence(ev ParsedEvent, start, end time.Time, displayLoc *time.Location) model.Occurrence {
	startLocal := start.In(displayLoc)
	return model.Occurrence{
		SourceID:    ev.Source.ID,
		UID:         ev.UID,
		InstanceKey: startLocal.Format(time.RFC3339Nano),
		Summary:     ev.Summary,
		Location:    ev.Location,
		AllDay:      ev.AllDay,
		Busy:        ev.Busy(),
		Start:       startLocal,
		End:         end.In(displayLoc),
	}
}

// overlaps reports whether [aStart, aEnd) intersects [bStart, bEnd). A
// zero-length event counts when it sits inside the window.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Equal(aStart) {
		return !aStart.Before(bStart) && aStart.Before(bEnd)
	}
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

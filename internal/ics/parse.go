package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "focuscal/internal/log"
)

// ParsedEvent is the normalized representation of a VEVENT as produced
// by the ICS parser. Recurrence expansion operates on this type.
type ParsedEvent struct {
	Source Source

	UID string
	Seq int

	Summary  string
	Location string

	Start   time.Time
	End     time.Time
	AllDay  bool
	StartTZ string

	// Transparent is set for TRANSP:TRANSPARENT; such events do not block
	// time.
	Transparent bool
	// Cancelled is set for STATUS:CANCELLED.
	Cancelled bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID (if present)
	IsOverride bool       // true if this VEVENT is an override for a recurring instance
}

// Busy reports whether the event occupies time on the calendar.
func (e ParsedEvent) Busy() bool {
	return !e.Transparent && !e.Cancelled
}

// ParseICS parses a single ICS payload into a list of ParsedEvent.
//
//   - It relies on the underlying library's VTIMEZONE/TZID handling to
//     construct proper time.Time values (with Location set).
//   - It detects all-day events by inspecting the DTSTART value format.
//   - It records RRULE/EXDATE/RECURRENCE-ID but does not expand recurrences;
//     that is ExpandOccurrences' job.
//
// Malformed VEVENTs are logged and skipped; only an unreadable calendar is an
// error.
func ParseICS(src Source, body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedEvent, error) {
	out := ParsedEvent{Source: src}

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if seqProp := ve.GetProperty(ical.ComponentPropertySequence); seqProp != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(seqProp.Value)); err == nil {
			out.Seq = n
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyTransp); p != nil {
		out.Transparent = strings.EqualFold(strings.TrimSpace(p.Value), "TRANSPARENT")
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.Cancelled = strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED")
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	out.AllDay = isDateValue(dtStart)
	out.StartTZ = paramValue(dtStart, "TZID")

	if out.AllDay {
		start, err := ve.GetAllDayStartAt()
		if err != nil {
			return out, err
		}
		out.Start = start
		out.End = start.AddDate(0, 0, 1)
		if end, err := ve.GetAllDayEndAt(); err == nil && end.After(start) {
			out.End = end
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return out, err
		}
		out.Start = start
		// Without DTEND the event ends where it starts.
		out.End = start
		if end, err := ve.GetEndAt(); err == nil && !end.Before(start) {
			out.End = end
		}
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	// EXDATE may appear multiple times, each with a comma-separated list.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := propLocation(p, out.Start.Location())
		for part := range strings.SplitSeq(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if ridProp := ve.GetProperty("RECURRENCE-ID"); ridProp != nil {
		if t, err := parseICSTime(ridProp.Value, propLocation(ridProp, out.Start.Location())); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if strings.EqualFold(paramValue(p, "VALUE"), "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func paramValue(p *ical.IANAProperty, name string) string {
	if p == nil || p.ICalParameters == nil {
		return ""
	}
	if vs, ok := p.ICalParameters[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// propLocation resolves the property's TZID, falling back to def.
func propLocation(p *ical.IANAProperty, def *time.Location) *time.Location {
	if tz := paramValue(p, "TZID"); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	if def == nil {
		return time.UTC
	}
	return def
}

// parseICSTime parses a basic ICS date or date-time. Floating values are
// interpreted in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}

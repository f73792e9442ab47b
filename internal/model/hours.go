package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a wall-clock time of day, independent of date and zone.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM" (24h). "24:00" is accepted as end of day.
func ParseClockTime(s string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ClockTime{}, fmt.Errorf("clock time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return ClockTime{}, fmt.Errorf("clock time %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return ClockTime{}, fmt.Errorf("clock time %q: %w", s, err)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return ClockTime{}, fmt.Errorf("clock time %q: out of range", s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the instant at this clock time on the calendar date of day,
// in day's location.
func (c ClockTime) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, day.Location())
}

func (c ClockTime) Before(o ClockTime) bool {
	return c.Hour*60+c.Minute < o.Hour*60+o.Minute
}

func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ClockTime) UnmarshalText(b []byte) error {
	parsed, err := ParseClockTime(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// DayHours is the schedulable window for one weekday.
type DayHours struct {
	Start ClockTime `json:"start" yaml:"start"`
	End   ClockTime `json:"end" yaml:"end"`
}

// Window returns the working window on the given date. ok is false when the
// window is empty (end not after start).
func (h DayHours) Window(day time.Time) (start, end time.Time, ok bool) {
	start = h.Start.On(day)
	end = h.End.On(day)
	return start, end, start.Before(end)
}

// WorkingHoursPolicy holds an optional window per weekday. A nil entry marks
// a non-working day.
type WorkingHoursPolicy struct {
	days [7]*DayHours
}

var (
	DefaultWorkdayStart = ClockTime{Hour: 9}
	DefaultWorkdayEnd   = ClockTime{Hour: 17}
)

// DefaultWorkingHours is Monday to Friday, 09:00-17:00.
func DefaultWorkingHours() WorkingHoursPolicy {
	var p WorkingHoursPolicy
	for wd := time.Monday; wd <= time.Friday; wd++ {
		p.Set(wd, &DayHours{Start: DefaultWorkdayStart, End: DefaultWorkdayEnd})
	}
	return p
}

// Set assigns (or clears, with nil) the window for a weekday.
func (p *WorkingHoursPolicy) Set(wd time.Weekday, h *DayHours) {
	if h == nil {
		p.days[wd] = nil
		return
	}
	c := *h
	p.days[wd] = &c
}

// For returns the window for a weekday, or false for a non-working day.
func (p WorkingHoursPolicy) For(wd time.Weekday) (DayHours, bool) {
	h := p.days[wd]
	if h == nil {
		return DayHours{}, false
	}
	return *h, true
}

// IsZero reports whether no weekday has working hours.
func (p WorkingHoursPolicy) IsZero() bool {
	for _, d := range p.days {
		if d != nil {
			return false
		}
	}
	return true
}

// Map returns the policy keyed by lower-case weekday name, with nil for
// non-working days. This is the persisted form.
func (p WorkingHoursPolicy) Map() map[string]*DayHours {
	out := make(map[string]*DayHours, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		var h *DayHours
		if d := p.days[wd]; d != nil {
			c := *d
			h = &c
		}
		out[strings.ToLower(wd.String())] = h
	}
	return out
}

// WorkingHoursFromMap builds a policy from the persisted form. Keys are
// weekday names ("monday") or three-letter abbreviations ("mon"); missing
// keys are non-working days.
func WorkingHoursFromMap(m map[string]*DayHours) (WorkingHoursPolicy, error) {
	var p WorkingHoursPolicy
	for key, h := range m {
		wd, err := parseWeekday(key)
		if err != nil {
			return WorkingHoursPolicy{}, err
		}
		if h != nil && !h.Start.Before(h.End) {
			return WorkingHoursPolicy{}, fmt.Errorf("working hours for %s: start %s is not before end %s", key, h.Start, h.End)
		}
		p.Set(wd, h)
	}
	return p, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := strings.ToLower(wd.String())
		if key == name || key == name[:3] {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

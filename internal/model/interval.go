package model

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrEmptyInterval = errors.New("interval start must be before end")

// TimeInterval is a half-open [start, end) span with start < end.
// The zero value is not a valid interval; use NewTimeInterval.
type TimeInterval struct {
	start time.Time
	end   time.Time
}

func NewTimeInterval(start, end time.Time) (TimeInterval, error) {
	if !start.Before(end) {
		return TimeInterval{}, ErrEmptyInterval
	}
	return TimeInterval{start: start, end: end}, nil
}

// MustInterval is NewTimeInterval for callers that already guarantee start < end.
func MustInterval(start, end time.Time) TimeInterval {
	iv, err := NewTimeInterval(start, end)
	if err != nil {
		panic(err)
	}
	return iv
}

func (i TimeInterval) Start() time.Time        { return i.start }
func (i TimeInterval) End() time.Time          { return i.end }
func (i TimeInterval) Duration() time.Duration { return i.end.Sub(i.start) }

// Overlaps reports whether the two half-open spans share any instant.
func (i TimeInterval) Overlaps(start, end time.Time) bool {
	return i.start.Before(end) && start.Before(i.end)
}

type intervalJSON struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i TimeInterval) MarshalJSON() ([]byte, error) {
	return json.Marshal(intervalJSON{Start: i.start, End: i.end})
}

func (i *TimeInterval) UnmarshalJSON(data []byte) error {
	var raw intervalJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	iv, err := NewTimeInterval(raw.Start, raw.End)
	if err != nil {
		return err
	}
	*i = iv
	return nil
}

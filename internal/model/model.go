package model

import "time"

// CommitmentSource names where an occupied interval came from.
type CommitmentSource string

const (
	SourceMeeting      CommitmentSource = "meeting"
	SourceTimeBlock    CommitmentSource = "time_block"
	SourceCalendarFeed CommitmentSource = "calendar_feed"
)

// Commitment is an already-occupied interval that constrains availability.
// The engine only reads commitments; it never modifies them.
type Commitment struct {
	ID     string           `json:"id,omitempty"`
	Title  string           `json:"title,omitempty"`
	Source CommitmentSource `json:"source"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Interval returns the commitment as a TimeInterval. It fails for
// zero-length or inverted commitments.
func (c Commitment) Interval() (TimeInterval, error) {
	return NewTimeInterval(c.Start, c.End)
}

// Occurrence represents a single concrete instance of a subscribed calendar
// event (after recurrence expansion and timezone normalization).
type Occurrence struct {
	SourceID string // calendar source ID
	UID      string // iCalendar UID

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, typically derived from the local start time.
	InstanceKey string

	Summary  string
	Location string

	AllDay bool
	// Busy is false for TRANSP:TRANSPARENT and STATUS:CANCELLED events.
	Busy bool

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time
}

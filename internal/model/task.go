package model

import (
	"strings"
	"time"
)

// Priority orders task candidates; high-priority tasks are consumed first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority is case-insensitive. Unknown values are treated as low.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityMedium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Rank is 0 for high, 1 for medium, 2 for everything else.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// TaskCandidate is a pending task that may be attached to a focus block.
type TaskCandidate struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Priority  Priority  `json:"priority"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Preferences are the per-user scheduling settings read once per run.
type Preferences struct {
	WorkingHours WorkingHoursPolicy
	// OptimalFocusHours is the preferred focus-block length in hours.
	// Zero means "use the engine default".
	OptimalFocusHours float64
	// Timezone is an IANA zone name; empty means the configured default.
	Timezone  string
	UpdatedAt time.Time
	// Found is false when the user has no stored preferences and defaults
	// were substituted.
	Found bool
}

// DefaultPreferences returns Mon-Fri 09:00-17:00 and no duration override.
func DefaultPreferences() Preferences {
	return Preferences{WorkingHours: DefaultWorkingHours()}
}

// TargetDuration converts OptimalFocusHours, falling back to def.
func (p Preferences) TargetDuration(def time.Duration) time.Duration {
	if p.OptimalFocusHours <= 0 {
		return def
	}
	return time.Duration(p.OptimalFocusHours * float64(time.Hour))
}

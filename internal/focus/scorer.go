package focus

import (
	"time"

	"focuscal/internal/model"
)

// Confidence increments. They sum to 1 so a set that satisfies every signal
// scores exactly 1.
const (
	contentWeight = 0.4
	volumeWeight  = 0.3
	recencyWeight = 0.3

	volumeThreshold = 5
	recencyWindow   = 7 * 24 * time.Hour
)

// Signals are the inputs to Score.
type Signals struct {
	// WellFormed is true for a non-empty set whose blocks all have a
	// positive duration.
	WellFormed bool
	// SignalCount is the number of blocks generated before truncation.
	SignalCount int
	// LastUpdated is the newest timestamp on the run's inputs. Zero means
	// unknown and earns no recency credit.
	LastUpdated time.Time
}

// SignalsFor derives Signals from a packer result.
func SignalsFor(res PackResult, lastUpdated time.Time) Signals {
	wellFormed := len(res.Suggestions) > 0
	for _, s := range res.Suggestions {
		if !s.StartTime.Before(s.EndTime) {
			wellFormed = false
			break
		}
	}
	return Signals{
		WellFormed:  wellFormed,
		SignalCount: res.Generated,
		LastUpdated: lastUpdated,
	}
}

// Score rates how much a suggestion set can be trusted, in [0, 1]. It is a
// heuristic annotation and never a reason to withhold output.
func Score(s Signals, now time.Time) float64 {
	score := 0.0
	if s.WellFormed {
		score += contentWeight
	}
	if s.SignalCount > volumeThreshold {
		score += volumeWeight
	}
	if !s.LastUpdated.IsZero() {
		age := now.Sub(s.LastUpdated)
		if age >= 0 && age <= recencyWindow {
			score += recencyWeight
		}
	}
	return min(max(score, 0), 1)
}

// latestUpdate returns the newest non-zero timestamp among the preferences
// and tasks.
func latestUpdate(prefs model.Preferences, tasks []model.TaskCandidate) time.Time {
	latest := prefs.UpdatedAt
	for _, t := range tasks {
		if t.UpdatedAt.After(latest) {
			latest = t.UpdatedAt
		}
	}
	return latest
}

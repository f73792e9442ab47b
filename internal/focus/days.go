package focus

import (
	"iter"
	"time"
)

// StartOfDay returns midnight of t's calendar date in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Days yields midnight of every calendar date from start to end inclusive,
// in start's location. Each range over the result starts from the
// beginning, and nothing is yielded when end is on an earlier date.
func Days(start, end time.Time) iter.Seq[time.Time] {
	first := StartOfDay(start)
	last := StartOfDay(end.In(start.Location()))
	return func(yield func(time.Time) bool) {
		y, m, d := first.Date()
		for i := 0; ; i++ {
			// time.Date normalizes day overflow and keeps midnight on DST days.
			day := time.Date(y, m, d+i, 0, 0, 0, 0, first.Location())
			if day.After(last) {
				return
			}
			if !yield(day) {
				return
			}
		}
	}
}

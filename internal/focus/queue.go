package focus

import "focuscal/internal/model"

// TaskQueue hands out task candidates highest priority first, preserving
// input order within a priority. A queue belongs to a single engine run.
type TaskQueue struct {
	tiers [3][]model.TaskCandidate
	next  [3]int
}

// NewTaskQueue copies tasks into per-priority tiers; the caller's slice is
// never modified.
func NewTaskQueue(tasks []model.TaskCandidate) *TaskQueue {
	q := &TaskQueue{}
	for _, t := range tasks {
		r := t.Priority.Rank()
		q.tiers[r] = append(q.tiers[r], t)
	}
	return q
}

// Pop removes and returns the next task. ok is false once the queue is empty.
func (q *TaskQueue) Pop() (model.TaskCandidate, bool) {
	if q == nil {
		return model.TaskCandidate{}, false
	}
	for r := range q.tiers {
		if q.next[r] < len(q.tiers[r]) {
			t := q.tiers[r][q.next[r]]
			q.next[r]++
			return t, true
		}
	}
	return model.TaskCandidate{}, false
}

// Len is the number of tasks not yet popped.
func (q *TaskQueue) Len() int {
	if q == nil {
		return 0
	}
	n := 0
	for r := range q.tiers {
		n += len(q.tiers[r]) - q.next[r]
	}
	return n
}

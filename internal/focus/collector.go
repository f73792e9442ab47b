package focus

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	appLog "focuscal/internal/log"
	"focuscal/internal/model"
)

// CommitmentSource returns the commitments of a user that intersect
// [start, end).
type CommitmentSource interface {
	FetchCommitments(ctx context.Context, userID string, start, end time.Time) ([]model.Commitment, error)
}

// CommitmentSourceFunc adapts a function to CommitmentSource.
type CommitmentSourceFunc func(ctx context.Context, userID string, start, end time.Time) ([]model.Commitment, error)

func (f CommitmentSourceFunc) FetchCommitments(ctx context.Context, userID string, start, end time.Time) ([]model.Commitment, error) {
	return f(ctx, userID, start, end)
}

type namedSource struct {
	name string
	src  CommitmentSource
}

// Collector merges every registered commitment source into one list.
type Collector struct {
	sources []namedSource
}

func NewCollector() *Collector {
	return &Collector{}
}

// Add registers a source under a name used in logs and errors.
func (c *Collector) Add(name string, src CommitmentSource) *Collector {
	c.sources = append(c.sources, namedSource{name: name, src: src})
	return c
}

// Collect fetches all sources concurrently and returns the commitments that
// intersect [start, end), sorted by start. If any source fails the whole
// collection fails with ErrDataUnavailable; a partial list would report busy
// time as free.
func (c *Collector) Collect(ctx context.Context, userID string, start, end time.Time) ([]model.Commitment, error) {
	results := make([][]model.Commitment, len(c.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range c.sources {
		g.Go(func() error {
			items, err := s.src.FetchCommitments(gctx, userID, start, end)
			if err != nil {
				appLog.Error("commitment source failed", err, "source", s.name, "user_id", userID)
				return fmt.Errorf("%w: %s: %w", ErrDataUnavailable, s.name, err)
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]model.Commitment, 0)
	for _, items := range results {
		for _, cm := range items {
			if cm.Start.Before(end) && cm.End.After(start) && cm.Start.Before(cm.End) {
				merged = append(merged, cm)
			}
		}
	}
	slices.SortStableFunc(merged, func(a, b model.Commitment) int {
		if n := a.Start.Compare(b.Start); n != 0 {
			return n
		}
		return a.End.Compare(b.End)
	})

	appLog.Debug("commitments collected", "user_id", userID, "sources", len(c.sources), "count", len(merged))
	return merged, nil
}

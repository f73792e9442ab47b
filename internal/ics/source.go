package ics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"focuscal/internal/config"
	appLog "focuscal/internal/log"
	"focuscal/internal/model"
)

// CommitmentSource turns a user's subscribed calendar feeds into commitments.
type CommitmentSource struct {
	fetcher *Fetcher
	feeds   map[string][]Source
	loc     *time.Location
}

// NewCommitmentSource maps each configured user to their feeds. loc is the
// zone occurrences are normalized into; nil means time.Local.
func NewCommitmentSource(fetcher *Fetcher, users []config.UserConfig, loc *time.Location) *CommitmentSource {
	if loc == nil {
		loc = time.Local
	}
	feeds := make(map[string][]Source, len(users))
	for _, u := range users {
		for _, c := range u.ICS {
			if c.URL == "" {
				continue
			}
			feeds[u.ID] = append(feeds[u.ID], Source{ID: c.SourceID(), URL: c.URL})
		}
	}
	return &CommitmentSource{fetcher: fetcher, feeds: feeds, loc: loc}
}

// Feeds returns the feeds subscribed by userID.
func (s *CommitmentSource) Feeds(userID string) []Source {
	return s.feeds[userID]
}

// FetchCommitments fetches, parses and expands every feed of the user and
// returns the busy timed occurrences intersecting [start, end). All-day,
// transparent and cancelled events do not block time. A feed that can be
// neither fetched nor served from cache fails the whole call.
func (s *CommitmentSource) FetchCommitments(ctx context.Context, userID string, start, end time.Time) ([]model.Commitment, error) {
	feeds := s.feeds[userID]
	if len(feeds) == 0 {
		return []model.Commitment{}, nil
	}

	parsed := make([][]ParsedEvent, len(feeds))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range feeds {
		g.Go(func() error {
			res, err := s.fetcher.FetchOne(gctx, src)
			if err != nil {
				return fmt.Errorf("feed %s: %w", src.ID, err)
			}
			events, err := ParseICS(src, res.Body)
			if err != nil {
				return fmt.Errorf("feed %s: parse: %w", src.ID, err)
			}
			parsed[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var events []ParsedEvent
	for _, p := range parsed {
		events = append(events, p...)
	}
	expanded, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation: s.loc,
		RangeStart:      start,
		RangeEnd:        end,
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.Commitment, 0, len(expanded.Occurrences))
	for _, occ := range expanded.Occurrences {
		if occ.AllDay || !occ.Busy || !occ.End.After(occ.Start) {
			continue
		}
		out = append(out, model.Commitment{
			ID:     occ.SourceID + ":" + occ.UID + "@" + occ.InstanceKey,
			Title:  occ.Summary,
			Source: model.SourceCalendarFeed,
			Start:  occ.Start,
			End:    occ.End,
		})
	}

	appLog.Debug("calendar feeds collected", "user_id", userID, "feeds", len(feeds), "occurrences", len(expanded.Occurrences), "commitments", len(out))
	return out, nil
}

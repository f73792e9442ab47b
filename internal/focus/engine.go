package focus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	appLog "focuscal/internal/log"
	"focuscal/internal/model"
)

// TaskSource returns a user's pending tasks, highest priority first.
type TaskSource interface {
	FetchPendingTasks(ctx context.Context, userID string) ([]model.TaskCandidate, error)
}

// PreferenceSource returns a user's scheduling preferences, substituting
// defaults when none are stored.
type PreferenceSource interface {
	FetchPreferences(ctx context.Context, userID string) (model.Preferences, error)
}

// SuggestionSink stores a run's suggestions for later confirmation. Storing
// the same window again must replace earlier unconfirmed suggestions and
// leave confirmed blocks untouched.
type SuggestionSink interface {
	PersistSuggestions(ctx context.Context, userID string, start, end time.Time, suggestions []model.FocusBlockSuggestion) error
}

// Observer receives one call per finished run. outcome is "ok",
// "invalid_range" or "data_unavailable".
type Observer interface {
	ObserveRun(outcome string, duration time.Duration, generated, returned int, confidence float64)
}

const (
	OutcomeOK              = "ok"
	OutcomeInvalidRange    = "invalid_range"
	OutcomeDataUnavailable = "data_unavailable"

	DefaultSurfaceThreshold = 0.7
)

// Config holds engine-wide defaults. User preferences override the target
// duration and location per run.
type Config struct {
	// Location is used when the user has no timezone preference. If nil,
	// time.Local is used.
	Location *time.Location

	TargetDuration time.Duration
	MinDuration    time.Duration
	MinFreeSlot    time.Duration
	MaxSuggestions int

	// SurfaceThreshold is the confidence at or above which a result is
	// marked for proactive display.
	SurfaceThreshold float64

	// Now defaults to time.Now.
	Now func() time.Time
}

func (c Config) normalized() Config {
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.TargetDuration <= 0 {
		c.TargetDuration = DefaultTargetDuration
	}
	if c.MinDuration <= 0 {
		c.MinDuration = DefaultMinDuration
	}
	if c.MinFreeSlot <= 0 {
		c.MinFreeSlot = DefaultMinFreeSlot
	}
	c.MaxSuggestions = clampMax(c.MaxSuggestions)
	if c.SurfaceThreshold <= 0 {
		c.SurfaceThreshold = DefaultSurfaceThreshold
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Request selects a user and an inclusive date range. Only the calendar
// dates of RangeStart and RangeEnd are used; they are read in the user's
// zone regardless of the location they carry.
type Request struct {
	UserID     string
	RangeStart time.Time
	RangeEnd   time.Time
	// DryRun skips the suggestion sink.
	DryRun bool
}

// Result is a finished run. An empty Suggestions list is a valid outcome.
type Result struct {
	UserID string `json:"userId"`
	// RangeStart / RangeEnd are the day-aligned bounds that were searched:
	// midnight of the first date and midnight after the last date.
	RangeStart  time.Time                    `json:"rangeStart"`
	RangeEnd    time.Time                    `json:"rangeEnd"`
	Timezone    string                       `json:"timezone"`
	FreeSlots   []model.TimeInterval         `json:"freeSlots"`
	Suggestions []model.FocusBlockSuggestion `json:"suggestions"`
	Generated   int                          `json:"generated"`
	Confidence  float64                      `json:"confidence"`
	Surface     bool                         `json:"surface"`
	Persisted   bool                         `json:"persisted"`
	GeneratedAt time.Time                    `json:"generatedAt"`
}

// Engine runs the collect, find, pack, score, persist pipeline. It holds no
// per-run state, so one Engine may serve concurrent requests.
type Engine struct {
	collector *Collector
	tasks     TaskSource
	prefs     PreferenceSource
	sink      SuggestionSink
	observer  Observer
	cfg       Config
}

// NewEngine wires an engine. sink and observer may be nil.
func NewEngine(cfg Config, collector *Collector, tasks TaskSource, prefs PreferenceSource, sink SuggestionSink, observer Observer) *Engine {
	if collector == nil {
		collector = NewCollector()
	}
	return &Engine{
		collector: collector,
		tasks:     tasks,
		prefs:     prefs,
		sink:      sink,
		observer:  observer,
		cfg:       cfg.normalized(),
	}
}

// Collector exposes the engine's commitment collector.
func (e *Engine) Collector() *Collector {
	return e.collector
}

// Suggest computes focus-block suggestions for req. It returns
// ErrInvalidRange before touching any collaborator when the range is
// inverted, and ErrDataUnavailable when a read or the final write fails;
// in both cases no suggestions are returned.
func (e *Engine) Suggest(ctx context.Context, req Request) (Result, error) {
	started := e.cfg.Now()

	res, err := e.run(ctx, req)
	outcome := OutcomeOK
	switch {
	case errors.Is(err, ErrInvalidRange):
		outcome = OutcomeInvalidRange
	case err != nil:
		outcome = OutcomeDataUnavailable
	}
	if e.observer != nil {
		e.observer.ObserveRun(outcome, e.cfg.Now().Sub(started), res.Generated, len(res.Suggestions), res.Confidence)
	}
	if err != nil {
		appLog.Error("focus run failed", err, "user_id", req.UserID, "outcome", outcome)
		return Result{}, err
	}

	appLog.Info("focus run completed",
		"user_id", req.UserID,
		"range_start", res.RangeStart.Format(time.RFC3339),
		"range_end", res.RangeEnd.Format(time.RFC3339),
		"free_slots", len(res.FreeSlots),
		"generated", res.Generated,
		"suggestions", len(res.Suggestions),
		"confidence", res.Confidence,
		"persisted", res.Persisted,
	)
	return res, nil
}

func (e *Engine) run(ctx context.Context, req Request) (Result, error) {
	if dateIn(req.RangeStart, time.UTC).After(dateIn(req.RangeEnd, time.UTC)) {
		return Result{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange,
			req.RangeStart.Format(time.DateOnly), req.RangeEnd.Format(time.DateOnly))
	}

	prefs := model.DefaultPreferences()
	if e.prefs != nil {
		p, err := e.prefs.FetchPreferences(ctx, req.UserID)
		if err != nil {
			return Result{}, fmt.Errorf("%w: preferences: %w", ErrDataUnavailable, err)
		}
		prefs = p
	}
	if prefs.WorkingHours.IsZero() && !prefs.Found {
		prefs.WorkingHours = model.DefaultWorkingHours()
	}
	loc := e.location(prefs)

	dayStart := dateIn(req.RangeStart, loc)
	lastDay := dateIn(req.RangeEnd, loc)
	windowEnd := time.Date(lastDay.Year(), lastDay.Month(), lastDay.Day()+1, 0, 0, 0, 0, loc)

	var (
		commitments []model.Commitment
		tasks       []model.TaskCandidate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		commitments, err = e.collector.Collect(gctx, req.UserID, dayStart, windowEnd)
		return err
	})
	g.Go(func() error {
		if e.tasks == nil {
			return nil
		}
		var err error
		tasks, err = e.tasks.FetchPendingTasks(gctx, req.UserID)
		if err != nil {
			return fmt.Errorf("%w: pending tasks: %w", ErrDataUnavailable, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	free := FindFreeSlotsWith(commitments, AvailabilityConfig{
		Policy:     prefs.WorkingHours,
		RangeStart: dayStart,
		RangeEnd:   lastDay,
		MinSlot:    e.cfg.MinFreeSlot,
	})

	packer := Packer{
		Target: prefs.TargetDuration(e.cfg.TargetDuration),
		Min:    e.cfg.MinDuration,
		Max:    e.cfg.MaxSuggestions,
	}
	packed := packer.Pack(free, NewTaskQueue(tasks))

	now := e.cfg.Now()
	confidence := Score(SignalsFor(packed, latestUpdate(prefs, tasks)), now)

	res := Result{
		UserID:      req.UserID,
		RangeStart:  dayStart,
		RangeEnd:    windowEnd,
		Timezone:    loc.String(),
		FreeSlots:   free,
		Suggestions: packed.Suggestions,
		Generated:   packed.Generated,
		Confidence:  confidence,
		Surface:     confidence >= e.cfg.SurfaceThreshold,
		GeneratedAt: now,
	}

	if e.sink != nil && !req.DryRun {
		if err := e.sink.PersistSuggestions(ctx, req.UserID, dayStart, windowEnd, res.Suggestions); err != nil {
			return Result{}, fmt.Errorf("%w: persist suggestions: %w", ErrDataUnavailable, err)
		}
		res.Persisted = true
	}
	return res, nil
}

func (e *Engine) location(prefs model.Preferences) *time.Location {
	if prefs.Timezone == "" {
		return e.cfg.Location
	}
	loc, err := time.LoadLocation(prefs.Timezone)
	if err != nil {
		appLog.Error("invalid preference timezone; using default", err, "timezone", prefs.Timezone)
		return e.cfg.Location
	}
	return loc
}

// dateIn returns midnight in loc of the calendar date t shows in its own
// location.
func dateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

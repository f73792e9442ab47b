package refresh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"focuscal/internal/focus"
	appLog "focuscal/internal/log"
)

// Suggester runs the focus engine for one request.
type Suggester interface {
	Suggest(ctx context.Context, req focus.Request) (focus.Result, error)
}

// Config drives periodic recomputation.
type Config struct {
	// Schedule is a five-field cron expression. Empty or "off" disables the
	// schedule; RunOnce still works.
	Schedule string
	// HorizonDays is the number of days planned, starting today.
	HorizonDays int
	// Users are recomputed in order on every run.
	Users []string
	// Location decides what "today" is. nil means time.Local.
	Location *time.Location
	Now      func() time.Time
}

// Refresher recomputes suggestions for configured users on a cron schedule.
type Refresher struct {
	cfg      Config
	engine   Suggester
	cron     *cron.Cron
	enabled  bool
	stopOnce sync.Once
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Disabled reports whether a schedule string turns the refresh off.
func Disabled(schedule string) bool {
	s := strings.TrimSpace(strings.ToLower(schedule))
	return s == "" || s == "off"
}

// New validates the schedule and prepares the cron runner.
func New(cfg Config, engine Suggester) (*Refresher, error) {
	if engine == nil {
		return nil, errors.New("refresh: engine is nil")
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 7
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	logger := cronLogger{}
	r := &Refresher{
		cfg:     cfg,
		engine:  engine,
		enabled: !Disabled(cfg.Schedule),
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(cfg.Location),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
	if r.enabled {
		if _, err := parser.Parse(cfg.Schedule); err != nil {
			return nil, fmt.Errorf("refresh: invalid schedule %q: %w", cfg.Schedule, err)
		}
	}
	return r, nil
}

// Window returns the inclusive day range planned by a run at now.
func (r *Refresher) Window(now time.Time) (time.Time, time.Time) {
	start := focus.StartOfDay(now.In(r.cfg.Location))
	return start, start.AddDate(0, 0, r.cfg.HorizonDays-1)
}

// RunOnce recomputes every configured user. A failing user is logged and
// does not stop the others; the returned error joins all failures.
func (r *Refresher) RunOnce(ctx context.Context) error {
	start, end := r.Window(r.cfg.Now())

	var errs []error
	ok := 0
	for _, userID := range r.cfg.Users {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, err := r.engine.Suggest(ctx, focus.Request{UserID: userID, RangeStart: start, RangeEnd: end})
		if err != nil {
			appLog.Error("refresh failed for user", err, "user_id", userID)
			errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
			continue
		}
		ok++
	}

	appLog.Info("refresh completed", "users", len(r.cfg.Users), "ok", ok, "failed", len(r.cfg.Users)-ok,
		"start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly))
	return errors.Join(errs...)
}

// Start schedules RunOnce and stops when ctx is done. It is a no-op when the
// schedule is disabled.
func (r *Refresher) Start(ctx context.Context) error {
	if !r.enabled {
		appLog.Info("refresh schedule disabled")
		return nil
	}
	_, err := r.cron.AddFunc(r.cfg.Schedule, func() {
		_ = r.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("refresh: schedule: %w", err)
	}
	r.cron.Start()
	appLog.Info("refresh scheduled", "schedule", r.cfg.Schedule, "users", len(r.cfg.Users), "horizon_days", r.cfg.HorizonDays)

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop waits for a running refresh to finish. Safe to call multiple times.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() {
		<-r.cron.Stop().Done()
	})
}

// cronLogger routes cron's own logging through appLog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}

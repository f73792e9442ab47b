package main

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"focuscal/internal/config"
	"focuscal/internal/focus"
	"focuscal/internal/ics"
	appLog "focuscal/internal/log"
	"focuscal/internal/metrics"
	"focuscal/internal/store"
)

const version = "0.1.0"

var (
	configPath string
	jsonLogs   bool
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "focuscal",
	Short:         "focuscal - focus-block scheduling assistant",
	Long:          "focuscal proposes protected deep-work blocks around meetings, confirmed time blocks and subscribed calendars.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit logs as JSON")
	rootCmd.AddCommand(serveCmd, suggestCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		appLog.Error("command failed", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and sets up logging (called by commands
// that need it).
func loadConfig() error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	appLog.Setup(os.Stderr, appLog.ParseLevel(cfg.LogLevel), jsonLogs)
	appLog.Info("effective config",
		"version", version,
		"config_path", configPath,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"database", cfg.Database.Backend,
		"refresh", cfg.RefreshCron,
		"horizon_days", cfg.HorizonDays,
		"users", len(cfg.Users),
	)
	return nil
}

// app holds the wired collaborators shared by the subcommands.
type app struct {
	db        *gorm.DB
	store     *store.Store
	collector *focus.Collector
	engine    *focus.Engine
	loc       *time.Location
}

func newApp(reg prometheus.Registerer) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		appLog.Error("invalid timezone; using local", err, "timezone", cfg.Timezone)
	}

	db, err := store.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		_ = store.Close(db)
		return nil, err
	}
	st := store.New(db)

	fetcher := ics.NewFetcher(cfg.ICSCacheDir, cfg.Fetch.Attempts, cfg.Fetch.Timeout())
	collector := focus.NewCollector().
		Add("meetings", focus.CommitmentSourceFunc(st.FetchMeetings)).
		Add("time_blocks", focus.CommitmentSourceFunc(st.FetchConfirmedBlocks)).
		Add("calendar_feeds", ics.NewCommitmentSource(fetcher, cfg.Users, loc))

	var observer focus.Observer
	if reg != nil {
		o, err := metrics.NewEngineObserver(reg)
		if err != nil {
			_ = store.Close(db)
			return nil, err
		}
		observer = o
	}

	engine := focus.NewEngine(focus.Config{
		Location:         loc,
		TargetDuration:   cfg.Engine.TargetDuration(),
		MinDuration:      cfg.Engine.MinDuration(),
		MinFreeSlot:      cfg.Engine.MinSlot(),
		MaxSuggestions:   cfg.Engine.MaxSuggestions,
		SurfaceThreshold: cfg.Engine.SurfaceThreshold,
	}, collector, st, st, st, observer)

	return &app{db: db, store: st, collector: collector, engine: engine, loc: loc}, nil
}

func (a *app) Close() {
	if err := store.Close(a.db); err != nil {
		appLog.Error("failed to close database", err)
	}
}

func userIDs(users []config.UserConfig) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

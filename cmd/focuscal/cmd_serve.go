package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	appLog "focuscal/internal/log"
	"focuscal/internal/refresh"
	"focuscal/internal/web"
)

var (
	serveListen string
	serveWarmup bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the periodic refresh",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides config if set)")
	serveCmd.Flags().BoolVar(&serveWarmup, "warmup", true, "Recompute suggestions for configured users at startup")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}

	a, err := newApp(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refresher, err := refresh.New(refresh.Config{
		Schedule:    cfg.RefreshCron,
		HorizonDays: cfg.HorizonDays,
		Users:       userIDs(cfg.Users),
		Location:    a.loc,
	}, a.engine)
	if err != nil {
		return err
	}
	if err := refresher.Start(ctx); err != nil {
		return err
	}
	defer refresher.Stop()

	if serveWarmup && len(cfg.Users) > 0 {
		go func() {
			_ = refresher.RunOnce(ctx)
		}()
	}

	srv := web.NewServer(cfg, web.Options{
		Engine:    a.engine,
		Collector: a.collector,
		Blocks:    a.store,
		Gatherer:  prometheus.DefaultGatherer,
	})
	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}
	appLog.Info("focuscal stopped")
	return nil
}

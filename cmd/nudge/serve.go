package main

import (
	"context"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hray3182/nudge/internal/ai"
	"github.com/hray3182/nudge/internal/bot"
	"github.com/hray3182/nudge/internal/bot/handlers"
	"github.com/hray3182/nudge/internal/clock"
	"github.com/hray3182/nudge/internal/completion"
	"github.com/hray3182/nudge/internal/httpapi"
	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/notify"
	"github.com/hray3182/nudge/internal/runner"
	"github.com/hray3182/nudge/internal/scheduler"
)

const firedBuffer = 64

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reminder service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	store, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := scheduler.NewMetrics(reg)

	clk := clock.NewSystem(cfg.Location())
	run := runner.New(firedBuffer)
	run.Start()
	defer run.Stop()

	var notifier models.Notifier = notify.NewLog(logger)
	var api *tgbotapi.BotAPI
	if cfg.TelegramEnabled() {
		if api, err = bot.NewAPI(cfg.TelegramToken); err != nil {
			return err
		}
		notifier = notify.NewTelegram(api, cfg.TelegramChatID, clk.Location(), cfg.NotifyRatePerSecond, logger)
	} else {
		logger.Warn("TELEGRAM_TOKEN not set, notifications go to the log only")
	}

	tracker := completion.NewTracker(store, clk, notifier, store, logger)
	disp, sources := a.buildScheduler(store, run, clk, tracker, notifier, metrics)

	var tg *bot.Bot
	if api != nil {
		deps := handlers.Deps{
			Sources: sources,
			Actions: disp,
			Stats:   tracker,
			Prefs:   store,
			Clock:   clk,
		}
		if cfg.AIEnabled() {
			deps.Drafter = ai.New(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel)
			logger.Info("natural language drafting enabled", "model", cfg.AIModel)
		}
		tg = bot.New(api, cfg.TelegramChatID, deps, logger)
	}
	return a.run(ctx, store, reg, disp, tg)
}

func (a *app) buildScheduler(
	store backend,
	run *runner.Runner,
	clk clock.Clock,
	tracker *completion.Tracker,
	notifier models.Notifier,
	metrics *scheduler.Metrics,
) (*scheduler.Dispatcher, *scheduler.SourceManager) {
	cfg, logger := a.cfg, a.logger
	planner := scheduler.NewPlanner(store, run, store, clk, metrics, logger)
	snoozer := scheduler.NewSnoozeCoordinator(store, run, clk, cfg.SnoozeDuration(), metrics, logger)
	disp := scheduler.NewDispatcher(planner, snoozer, tracker, notifier, run.C(),
		cfg.ReconcileInterval, scheduler.DefaultRetryPolicy, logger)
	sources := scheduler.NewSourceManager(store, planner, scheduler.DefaultRetryPolicy, logger)
	return disp, sources
}

// run blocks until ctx is cancelled or one of the long-running parts fails.
func (a *app) run(ctx context.Context, store backend, reg *prometheus.Registry, disp *scheduler.Dispatcher, tg *bot.Bot) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		disp.Start(ctx)
		return nil
	})
	if tg != nil {
		g.Go(func() error {
			return tg.Start(ctx)
		})
	}
	if a.cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              a.cfg.HTTPAddr,
			Handler:           httpapi.NewRouter(store.Ping, reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info("http listening", "addr", srv.Addr)
			return httpapi.Serve(ctx, srv)
		})
	}

	a.logger.Info("nudge started", "storage", a.cfg.StorageDriver, "timezone", a.cfg.Location().String())
	err := g.Wait()
	a.logger.Info("nudge stopped")
	return err
}

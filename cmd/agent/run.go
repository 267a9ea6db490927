package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-procurement-agent/internal/agent"
	"go-procurement-agent/internal/ai"
	"go-procurement-agent/internal/browser"
	"go-procurement-agent/internal/config"
	"go-procurement-agent/internal/database"
	"go-procurement-agent/internal/events"
	"go-procurement-agent/internal/metrics"
	"go-procurement-agent/internal/reporter"
	"go-procurement-agent/internal/scheduler"
	"go-procurement-agent/utils"
)

var (
	runOnce    bool
	runMigrate bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler and work through pending scraping jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, flush, err := setup()
		if err != nil {
			return err
		}
		defer flush()
		log := zap.S().Named("run")
		ctx := cmd.Context()

		if err := errors.Join(cfg.RequireDatabase(), cfg.RequireLLM()); err != nil {
			return err
		}

		repo, err := database.ConnectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer repo.Close()
		if runMigrate {
			if err := repo.Migrate(ctx); err != nil {
				return err
			}
		}

		deps := agent.Deps{
			Store: repo,
			LLM:   ai.NewOpenAIClient(cfg.LLMOptions()),
		}

		var publisher metrics.EventPublisher
		if cfg.RedisURL != "" {
			rdb, err := events.NewRedisClient(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			defer rdb.Close()
			bus := events.NewBus(rdb, cfg.EventsChannel)
			deps.Canceller = bus
			publisher = bus
			log.Info("📡 Redis events enabled")
		} else {
			log.Warn("⚠️ REDIS_URL not set, cancellation requests from the API will not be seen")
		}
		deps.Events = metrics.NewPublisher(publisher)
		if cfg.MetricsAddr != "" {
			go serveMetrics(ctx, cfg.MetricsAddr)
		}

		if cfg.Telegram.Token != "" {
			tg, err := reporter.NewTelegramReporter(cfg.Telegram.Token, cfg.Telegram.ChatID)
			if err != nil {
				return err
			}
			deps.Notifier = tg
			log.Info("🤖 Telegram reporter initialized.")
		}

		recorder, err := utils.NewDebugRecorder(cfg.DebugDir)
		if err != nil {
			log.Warnf("⚠️ Debug artifacts disabled: %v", err)
		} else {
			deps.Recorder = recorder
		}

		pm, err := browser.NewPlaywright(ctx, cfg.BrowserOptions())
		if err != nil {
			return err
		}
		defer func() {
			if err := pm.Close(); err != nil {
				log.Warnf("⚠️ %v", err)
			}
		}()
		deps.Sessions = pm
		log.Info("✅ Browser initialized successfully!")

		sched := scheduler.New(repo, agent.New(deps, cfg.AgentBudgets()), schedulerOptions(cfg))

		if runOnce {
			stats, err := sched.RunCycle(ctx)
			if err != nil {
				return err
			}
			log.Infof("🏁 Execution finished: %d seeded, %d dispatched, %d failed", stats.Seeded, stats.Dispatched, stats.Failed)
			return nil
		}

		if err := sched.Start(ctx); err != nil {
			return err
		}
		log.Info("🚀 Procurement agent running")
		<-ctx.Done()
		sched.Stop()
		log.Info("👋 Shutdown complete")
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Run a single cycle and exit")
	runCmd.Flags().BoolVar(&runMigrate, "migrate", false, "Apply the schema before starting")
}

func schedulerOptions(cfg *config.Config) scheduler.Options {
	return scheduler.Options{
		Spec:       cfg.Scheduler.Spec,
		Workers:    cfg.Scheduler.Workers,
		SeedLinks:  cfg.Scheduler.SeedLinks,
		StaleAfter: cfg.Scheduler.StaleAfter,
	}
}

func serveMetrics(ctx context.Context, addr string) {
	log := zap.S().Named("metrics_server")
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		log.Info("metrics server terminated")
	}()

	log.Infof("📈 Metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("metrics server: %v", err)
	}
}

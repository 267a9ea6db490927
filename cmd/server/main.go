package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-procurement-agent/internal/api"
	"go-procurement-agent/internal/config"
	"go-procurement-agent/internal/database"
	"go-procurement-agent/internal/events"
	"go-procurement-agent/internal/metrics"
	"go-procurement-agent/utils"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		stdlog.Fatalf("reading configuration: %v", err)
	}
	logger, err := utils.InitLog(cfg.LogLevel)
	if err != nil {
		stdlog.Fatalf("init logger: %v", err)
	}
	defer zap.ReplaceGlobals(logger)()
	log := zap.S().Named("server")

	if err := cfg.RequireDatabase(); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	repo, err := database.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer repo.Close()

	var cancels api.CancelRequester
	if cfg.RedisURL != "" {
		rdb, err := events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		defer rdb.Close()
		cancels = events.NewBus(rdb, cfg.EventsChannel)
	} else {
		log.Warn("⚠️ REDIS_URL not set, cancel requests will be refused")
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.NewHandler(repo, cancels))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Server listening on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Failed to start server: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("⚠️ shutdown: %v", err)
	}
	_ = logger.Sync()
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-highlight-service/internal/app"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/config"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/httpapi"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/metrics"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/postgres"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/tracing"
	"github.com/fiapx/fiapx-highlight-service/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting fiapx-highlight-service http api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, "fiapx-highlight-api")
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	fatalOnErr(postgres.RunMigrations(ctx, cfg.DatabaseURL), "run migrations")

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	for _, dir := range []string{cfg.UploadDir, cfg.OutputDir, cfg.WorkDir} {
		fatalOnErr(os.MkdirAll(dir, 0755), "create "+dir)
	}

	summarizer := app.NewSummarizer(cfg,
		postgres.NewProcessedVideoRepository(pool),
		httpapi.NewLocalPublisher(cfg.PublicBaseURL),
		log,
	)

	handler := httpapi.NewHandler(summarizer, log, httpapi.HandlerConfig{
		UploadDir:      cfg.UploadDir,
		OutputDir:      cfg.OutputDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	router := httpapi.NewRouter(handler, log, pool.Ping, metrics.DiskSpaceCheck(cfg.WorkDir, cfg.MinFreeDisk))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpapi.Wrap(router, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http api listening", zap.Int("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down http api")

	// In-flight runs get the run timeout to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.RunTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}
	log.Info("fiapx-highlight-service http api stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}

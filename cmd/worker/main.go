package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-highlight-service/internal/app"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/config"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/email"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-highlight-service/internal/infra/minio"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/postgres"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/tracing"
	"github.com/fiapx/fiapx-highlight-service/internal/usecase"
	"github.com/fiapx/fiapx-highlight-service/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting fiapx-highlight-service worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, "fiapx-highlight-worker")
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	// Database
	fatalOnErr(postgres.RunMigrations(ctx, cfg.DatabaseURL), "run migrations")
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		UseSSL:        cfg.MinIOUseSSL,
		UploadBucket:  cfg.MinIOUploadBucket,
		SummaryBucket: cfg.MinIOSummaryBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	for _, dir := range []string{cfg.UploadDir, cfg.OutputDir, cfg.WorkDir} {
		fatalOnErr(os.MkdirAll(dir, 0755), "create "+dir)
	}

	summarizer := app.NewWorkerSummarizer(cfg,
		postgres.NewProcessedVideoRepository(pool),
		miniostorage.NewSummaryPublisher(storage, cfg.MinIOSummaryPrefix),
		log,
	)

	uc := usecase.NewProcessMessageUseCase(
		summarizer,
		storage,
		rabbitmq.NewStatusPublisher(pub, cfg.RabbitMQStatusKey),
		rabbitmq.NewRetryPublisher(pub, cfg.RabbitMQRequestKey),
		rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ),
		email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log),
		log,
		usecase.ProcessMessageConfig{
			DownloadDir: cfg.UploadDir,
			MaxAttempts: cfg.MaxAttempts,
		},
	)

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log, pool.Ping, metrics.DiskSpaceCheck(cfg.WorkDir, cfg.MinFreeDisk))

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Exchange:    cfg.RabbitMQExchange,
		Queue:       cfg.RabbitMQRequestQueue,
		RoutingKey:  cfg.RabbitMQRequestKey,
		StatusQueue: cfg.RabbitMQStatusQueue,
		StatusKey:   cfg.RabbitMQStatusKey,
		DLQ:         cfg.RabbitMQDLQ,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelay:   cfg.RetryBaseDelay,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("fiapx-highlight-service worker started, consuming messages")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("fiapx-highlight-service worker stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}

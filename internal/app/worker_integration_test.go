package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fiapx/fiapx-highlight-service/internal/domain/entity"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/config"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/email"
	miniostorage "github.com/fiapx/fiapx-highlight-service/internal/infra/minio"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/postgres"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-highlight-service/internal/usecase"
	"github.com/fiapx/fiapx-highlight-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

type workerEnv struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	minio    *miniogo.Client
	conn     *amqp.Connection
	consumer rabbitmq.ConsumerConfig
}

func startWorkerEnv(t *testing.T, ctx context.Context) *workerEnv {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("highlights"),
		tcpostgres.WithUsername("highlight_user"),
		tcpostgres.WithPassword("highlight_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { pgContainer.Terminate(context.Background()) })
	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { rmqContainer.Terminate(context.Background()) })
	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { minioContainer.Terminate(context.Background()) })
	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	require.NoError(t, postgres.RunMigrations(ctx, pgConnStr))
	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	minioClient, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
	})
	require.NoError(t, err)

	conn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	cfg, err := config.Load(filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)
	cfg.DatabaseURL = pgConnStr
	cfg.RabbitMQURL = rmqURL
	cfg.MinIOEndpoint = minioEndpoint
	cfg.UploadDir = t.TempDir()
	cfg.OutputDir = t.TempDir()
	cfg.WorkDir = t.TempDir()
	cfg.ModelInputWidth = 32
	cfg.ModelInputHeight = 32
	cfg.MaxAttempts = 2

	return &workerEnv{
		cfg:   cfg,
		pool:  pool,
		minio: minioClient,
		conn:  conn,
		consumer: rabbitmq.ConsumerConfig{
			URL:         rmqURL,
			Exchange:    cfg.RabbitMQExchange,
			Queue:       cfg.RabbitMQRequestQueue,
			RoutingKey:  cfg.RabbitMQRequestKey,
			StatusQueue: cfg.RabbitMQStatusQueue,
			StatusKey:   cfg.RabbitMQStatusKey,
			DLQ:         cfg.RabbitMQDLQ,
			Prefetch:    1,
			WorkerCount: 1,
			BaseDelay:   100 * time.Millisecond,
		},
	}
}

// startWorker runs the same wiring as cmd/worker against the test containers.
func startWorker(t *testing.T, ctx context.Context, env *workerEnv) {
	t.Helper()
	log, err := logger.New("debug")
	require.NoError(t, err)
	cfg := env.cfg

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		UploadBucket:  cfg.MinIOUploadBucket,
		SummaryBucket: cfg.MinIOSummaryBucket,
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	pub, err := rabbitmq.NewPublisher(env.conn, cfg.RabbitMQExchange)
	require.NoError(t, err)

	summarizer := NewWorkerSummarizer(cfg,
		postgres.NewProcessedVideoRepository(env.pool),
		miniostorage.NewSummaryPublisher(storage, cfg.MinIOSummaryPrefix),
		log,
	)
	uc := usecase.NewProcessMessageUseCase(
		summarizer,
		storage,
		rabbitmq.NewStatusPublisher(pub, cfg.RabbitMQStatusKey),
		rabbitmq.NewRetryPublisher(pub, cfg.RabbitMQRequestKey),
		rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ),
		email.NewSMTPNotifier("localhost", 1025, "test@test.local", log),
		log,
		usecase.ProcessMessageConfig{DownloadDir: cfg.UploadDir, MaxAttempts: cfg.MaxAttempts},
	)

	consumer, err := rabbitmq.NewConsumer(env.consumer, uc.Execute, log)
	require.NoError(t, err)
	t.Cleanup(func() { consumer.Close() })

	consumerCtx, stop := context.WithCancel(ctx)
	t.Cleanup(stop)
	go consumer.Start(consumerCtx)
	time.Sleep(500 * time.Millisecond)
}

func publishRequest(t *testing.T, ctx context.Context, env *workerEnv, body []byte) {
	t.Helper()
	ch, err := env.conn.Channel()
	require.NoError(t, err)
	defer ch.Close()
	require.NoError(t, ch.PublishWithContext(ctx,
		env.cfg.RabbitMQExchange,
		env.cfg.RabbitMQRequestKey,
		false, false,
		amqp.Publishing{ContentType: "application/json", Body: body},
	))
}

func TestWorkerSummarizesQueuedVideo(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	env := startWorkerEnv(t, ctx)

	// Ten seconds at 30fps sampled at 3fps gives 30 frames; the detector rates
	// the thirteenth highest.
	var calls atomic.Int32
	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		score := "0.1"
		if calls.Add(1) == 13 {
			score = "0.92"
		}
		w.Write([]byte(`{"predictions":[{"detection_scores":[` + score + `]}]}`))
	}))
	defer model.Close()
	env.cfg.DetectorURL = model.URL
	env.cfg.TopN = 3

	video := filepath.Join(t.TempDir(), "match.mp4")
	out, err := exec.CommandContext(ctx, "ffmpeg", "-v", "error",
		"-f", "lavfi", "-i", "testsrc=duration=10:size=320x240:rate=30",
		"-c:v", "libx264", "-pix_fmt", "yuv420p", video,
	).CombinedOutput()
	require.NoError(t, err, string(out))

	startWorker(t, ctx, env)

	_, err = env.minio.FPutObject(ctx, env.cfg.MinIOUploadBucket, "user-1/match.mp4", video, miniogo.PutObjectOptions{
		ContentType: "video/mp4",
	})
	require.NoError(t, err)

	statusCh, err := env.conn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()
	statuses, err := statusCh.Consume(env.cfg.RabbitMQStatusQueue, "", true, false, false, false, nil)
	require.NoError(t, err)

	reqID := uuid.New()
	body, err := json.Marshal(entity.SummaryRequestMessage{RequestID: reqID, VideoKey: "user-1/match.mp4"})
	require.NoError(t, err)
	publishRequest(t, ctx, env, body)

	var status entity.SummaryStatusMessage
	select {
	case d := <-statuses:
		require.NoError(t, json.Unmarshal(d.Body, &status))
	case <-time.After(3 * time.Minute):
		t.Fatal("timeout waiting for status message")
	}

	assert.Equal(t, reqID, status.RequestID)
	require.Equal(t, entity.RunStateDone, status.State, status.ErrorMessage)
	assert.Equal(t, 30, status.FrameCount)
	assert.Equal(t, []int{0, 10, 120}, status.SelectedFrames)
	assert.Contains(t, status.SummaryURL, "/"+env.cfg.MinIOSummaryBucket+"/"+env.cfg.MinIOSummaryPrefix+"/match_")

	var processed bool
	var url string
	err = env.pool.QueryRow(ctx,
		"SELECT processed, shortened_video_url FROM processed_videos WHERE video_filename=$1", "match.mp4",
	).Scan(&processed, &url)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, status.SummaryURL, url)

	// The uploaded summary is the only copy kept.
	outputs, err := os.ReadDir(env.cfg.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, outputs)
	work, err := os.ReadDir(env.cfg.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, work)

	// Same filename again is answered from the store.
	publishRequest(t, ctx, env, body)
	select {
	case d := <-statuses:
		require.NoError(t, json.Unmarshal(d.Body, &status))
	case <-time.After(time.Minute):
		t.Fatal("timeout waiting for second status message")
	}
	assert.Equal(t, entity.RunStateAlreadyProcessed, status.State)
	assert.Equal(t, url, status.SummaryURL)
}

func TestWorkerDeadLettersMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	env := startWorkerEnv(t, ctx)
	startWorker(t, ctx, env)

	publishRequest(t, ctx, env, []byte(`{invalid json`))

	ch, err := env.conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	require.Eventually(t, func() bool {
		msg, ok, err := ch.Get(env.cfg.RabbitMQDLQ, true)
		return err == nil && ok && string(msg.Body) == `{invalid json`
	}, 30*time.Second, 200*time.Millisecond, "malformed message should be in DLQ")
}

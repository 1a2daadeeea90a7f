package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/fiapx/fiapx-highlight-service/internal/domain/entity"
	"github.com/fiapx/fiapx-highlight-service/internal/domain/port"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// VideoSummarizer is the orchestrator as seen by the service layer.
type VideoSummarizer interface {
	Execute(ctx context.Context, req SummarizeRequest) (*entity.SummaryRun, error)
}

// ProcessMessageUseCase handles one summary request taken off the queue.
type ProcessMessageUseCase struct {
	summarizer  VideoSummarizer
	storage     port.VideoStorage
	status      port.StatusPublisher
	retry       port.RetryPublisher
	dlq         port.DLQPublisher
	notifier    port.FailureNotifier
	logger      *zap.Logger
	downloadDir string
	maxAttempts int
}

type ProcessMessageConfig struct {
	DownloadDir string
	MaxAttempts int
}

func NewProcessMessageUseCase(
	summarizer VideoSummarizer,
	storage port.VideoStorage,
	status port.StatusPublisher,
	retry port.RetryPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessMessageConfig,
) *ProcessMessageUseCase {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &ProcessMessageUseCase{
		summarizer:  summarizer,
		storage:     storage,
		status:      status,
		retry:       retry,
		dlq:         dlq,
		notifier:    notifier,
		logger:      logger,
		downloadDir: cfg.DownloadDir,
		maxAttempts: cfg.MaxAttempts,
	}
}

// Execute processes rawMsg as delivery number attempt. A nil return means the
// message is settled: summarized, re-queued as a new attempt, or dead-lettered.
// An error means the message itself should be redelivered, which is also what
// happens when ctx is cancelled mid-run.
func (uc *ProcessMessageUseCase) Execute(ctx context.Context, rawMsg []byte, attempt int) error {
	ctx, span := otel.Tracer("usecase").Start(ctx, "ProcessMessageUseCase.Execute")
	defer span.End()

	if attempt < 1 {
		attempt = 1
	}

	var msg entity.SummaryRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		metrics.RunsTotal.WithLabelValues("dead_lettered").Inc()
		return nil
	}
	if msg.VideoKey == "" {
		uc.logger.Error("message without video key", zap.String("request_id", msg.RequestID.String()))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "invalid_message: missing video_key")
		metrics.RunsTotal.WithLabelValues("dead_lettered").Inc()
		return nil
	}
	if msg.Filename == "" {
		msg.Filename = path.Base(msg.VideoKey)
	}
	if msg.RequestID == uuid.Nil {
		msg.RequestID = uuid.New()
	}

	span.SetAttributes(
		attribute.String("request.id", msg.RequestID.String()),
		attribute.String("request.video_key", msg.VideoKey),
		attribute.Int("request.attempt", attempt),
	)
	log := uc.logger.With(
		zap.String("request_id", msg.RequestID.String()),
		zap.String("video_key", msg.VideoKey),
		zap.Int("attempt", attempt),
	)

	dir := filepath.Join(uc.downloadDir, msg.RequestID.String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	defer os.RemoveAll(dir)

	videoPath := filepath.Join(dir, filepath.Base(msg.Filename))
	if err := uc.storage.DownloadVideo(ctx, msg.VideoKey, videoPath); err != nil {
		log.Error("failed to download video", zap.Error(err))
		runErr := &entity.RunError{Kind: entity.ErrorKindStore, Message: err.Error(), Err: err}
		return uc.handleFailure(ctx, msg, rawMsg, nil, runErr, attempt, log)
	}

	run, err := uc.summarizer.Execute(ctx, SummarizeRequest{Filename: msg.Filename, VideoPath: videoPath})
	if err != nil {
		var runErr *entity.RunError
		if !errors.As(err, &runErr) {
			runErr = &entity.RunError{Kind: entity.ErrorKindInternal, Message: err.Error(), Err: err}
		}
		return uc.handleFailure(ctx, msg, rawMsg, run, runErr, attempt, log)
	}

	uc.publishStatus(ctx, entity.NewStatusMessage(msg, run, attempt, uc.maxAttempts), log)
	log.Info("summary request completed",
		zap.String("state", string(run.State)),
		zap.String("summary_url", run.SummaryURL),
	)
	return nil
}

func (uc *ProcessMessageUseCase) handleFailure(
	ctx context.Context,
	msg entity.SummaryRequestMessage,
	rawMsg []byte,
	run *entity.SummaryRun,
	runErr *entity.RunError,
	attempt int,
	log *zap.Logger,
) error {
	if ctx.Err() != nil || runErr.Kind == entity.ErrorKindCancelled {
		log.Warn("summary request interrupted, leaving it on the queue",
			zap.String("kind", string(runErr.Kind)),
			zap.Error(runErr),
		)
		return fmt.Errorf("request interrupted: %w", runErr)
	}

	status := failedStatus(msg, run, runErr, attempt, uc.maxAttempts)

	if !runErr.Retryable() || attempt >= uc.maxAttempts {
		return uc.handlePermanentFailure(ctx, msg, rawMsg, status, runErr, log)
	}

	if err := uc.retry.PublishRetry(ctx, rawMsg, attempt+1); err != nil {
		log.Error("failed to requeue request", zap.Error(err))
		return fmt.Errorf("requeue attempt %d: %w", attempt+1, err)
	}
	metrics.RetryTotal.WithLabelValues(strconv.Itoa(attempt)).Inc()
	uc.publishStatus(ctx, status, log)

	log.Warn("summary request failed, retry scheduled",
		zap.String("kind", string(runErr.Kind)),
		zap.Int("next_attempt", attempt+1),
		zap.Int("max_attempts", uc.maxAttempts),
	)
	return nil
}

func (uc *ProcessMessageUseCase) handlePermanentFailure(
	ctx context.Context,
	msg entity.SummaryRequestMessage,
	rawMsg []byte,
	status entity.SummaryStatusMessage,
	runErr *entity.RunError,
	log *zap.Logger,
) error {
	reason := fmt.Sprintf("%s: %s", runErr.Kind, runErr.Message)
	if err := uc.dlq.PublishToDLQ(ctx, rawMsg, reason); err != nil {
		log.Error("failed to dead-letter request", zap.Error(err))
	}
	uc.publishStatus(ctx, status, log)
	metrics.RunsTotal.WithLabelValues("dead_lettered").Inc()

	if msg.UserEmail != "" {
		if err := uc.notifier.NotifyFailure(ctx, msg.UserEmail, msg.RequestID.String(), msg.Filename, reason); err != nil {
			log.Warn("failure notification not sent", zap.Error(err))
		}
	}

	log.Error("summary request failed permanently", zap.String("kind", string(runErr.Kind)))
	return nil
}

func failedStatus(msg entity.SummaryRequestMessage, run *entity.SummaryRun, runErr *entity.RunError, attempt, maxAttempts int) entity.SummaryStatusMessage {
	status := entity.NewStatusMessage(msg, run, attempt, maxAttempts)
	status.State = entity.RunStateFailed
	status.ErrorKind = runErr.Kind
	status.ErrorMessage = runErr.Message
	return status
}

func (uc *ProcessMessageUseCase) publishStatus(ctx context.Context, status entity.SummaryStatusMessage, log *zap.Logger) {
	data, _ := json.Marshal(status)
	if err := uc.status.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

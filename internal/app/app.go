// Package app wires the highlight pipeline from configuration. Both binaries
// build their summarizer through it.
package app

import (
	"github.com/fiapx/fiapx-highlight-service/internal/domain/port"
	"github.com/fiapx/fiapx-highlight-service/internal/highlight"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/config"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/detector"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-highlight-service/internal/usecase"
	"go.uber.org/zap"
)

// NewSummarizer builds the orchestrator with the ffmpeg decoder and encoder
// and the remote detector. Summaries stay in OUTPUT_DIR, where publisher is
// expected to serve them from.
func NewSummarizer(cfg *config.Config, repo port.ProcessedVideoRepository, publisher port.SummaryPublisher, logger *zap.Logger) *usecase.SummarizeVideoUseCase {
	return newSummarizer(cfg, repo, publisher, false, logger)
}

// NewWorkerSummarizer is NewSummarizer for a publisher that copies summaries
// elsewhere. The local file is dropped with the run directory.
func NewWorkerSummarizer(cfg *config.Config, repo port.ProcessedVideoRepository, publisher port.SummaryPublisher, logger *zap.Logger) *usecase.SummarizeVideoUseCase {
	return newSummarizer(cfg, repo, publisher, true, logger)
}

func newSummarizer(cfg *config.Config, repo port.ProcessedVideoRepository, publisher port.SummaryPublisher, discardOutput bool, logger *zap.Logger) *usecase.SummarizeVideoUseCase {
	decoder := ffmpeg.NewDecoder(cfg.FFmpegBin, cfg.FFprobeBin, logger)
	encoder := ffmpeg.NewEncoder(cfg.FFmpegBin, cfg.VideoCodec, cfg.PixelFormat, logger)
	model := detector.NewClient(detector.ClientConfig{
		BaseURL: cfg.DetectorURL,
		Model:   cfg.DetectorModel,
		Timeout: cfg.DetectorTimeout,
	}, logger)

	return usecase.NewSummarizeVideoUseCase(
		repo,
		highlight.NewSampler(decoder, cfg.JPEGQuality, logger),
		highlight.NewScorer(model, cfg.ModelInputWidth, cfg.ModelInputHeight, logger),
		highlight.NewAssembler(encoder, cfg.FrameDurationSecs, logger),
		publisher,
		logger,
		usecase.SummarizeVideoConfig{
			WorkDir:       cfg.WorkDir,
			OutputDir:     cfg.OutputDir,
			SampleRate:    cfg.SampleRate,
			TopN:          cfg.TopN,
			RunTimeout:    cfg.RunTimeout,
			KeepWorkDir:   cfg.KeepWorkDir,
			DiscardOutput: discardOutput,
		},
	)
}

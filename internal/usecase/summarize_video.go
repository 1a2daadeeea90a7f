package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fiapx/fiapx-highlight-service/internal/domain/entity"
	"github.com/fiapx/fiapx-highlight-service/internal/domain/port"
	"github.com/fiapx/fiapx-highlight-service/internal/highlight"
	"github.com/fiapx/fiapx-highlight-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type SummarizeVideoUseCase struct {
	repo       port.ProcessedVideoRepository
	sampler    *highlight.Sampler
	scorer     *highlight.Scorer
	assembler  *highlight.Assembler
	publisher  port.SummaryPublisher
	logger     *zap.Logger
	workDir    string
	outputDir  string
	sampleRate float64
	topN       int
	timeout    time.Duration
	keepWork   bool
	discardOut bool

	inflight singleflight.Group
	mu       sync.Mutex
	flights  map[string]*flight
}

// flight is the context shared by every caller waiting on one filename. It is
// cancelled only when the last of them stops waiting.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

type SummarizeVideoConfig struct {
	WorkDir     string
	OutputDir   string
	SampleRate  float64
	TopN        int
	RunTimeout  time.Duration
	KeepWorkDir bool

	// DiscardOutput writes the summary inside the run directory, so it is
	// removed together with the frames once it has been published.
	DiscardOutput bool
}

type SummarizeRequest struct {
	Filename  string
	VideoPath string
}

func NewSummarizeVideoUseCase(
	repo port.ProcessedVideoRepository,
	sampler *highlight.Sampler,
	scorer *highlight.Scorer,
	assembler *highlight.Assembler,
	publisher port.SummaryPublisher,
	logger *zap.Logger,
	cfg SummarizeVideoConfig,
) *SummarizeVideoUseCase {
	if cfg.TopN <= 0 {
		cfg.TopN = highlight.DefaultTopN
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 1
	}
	return &SummarizeVideoUseCase{
		repo:       repo,
		sampler:    sampler,
		scorer:     scorer,
		assembler:  assembler,
		publisher:  publisher,
		logger:     logger,
		workDir:    cfg.WorkDir,
		outputDir:  cfg.OutputDir,
		sampleRate: cfg.SampleRate,
		topN:       cfg.TopN,
		timeout:    cfg.RunTimeout,
		keepWork:   cfg.KeepWorkDir,
		discardOut: cfg.DiscardOutput,
		flights:    make(map[string]*flight),
	}
}

// Execute summarizes one video at most once per filename. A filename that
// already has a processed record returns a run in RunStateAlreadyProcessed
// without touching the video. Concurrent calls for the same filename share a
// single run, which keeps going while at least one of them is still waiting.
// Failures are returned as *entity.RunError alongside the failed run.
func (uc *SummarizeVideoUseCase) Execute(ctx context.Context, req SummarizeRequest) (*entity.SummaryRun, error) {
	f := uc.join(ctx, req.Filename)
	defer uc.leave(req.Filename, f)

	ch := uc.inflight.DoChan(req.Filename, func() (interface{}, error) {
		return uc.run(f.ctx, req)
	})

	select {
	case res := <-ch:
		if res.Shared {
			uc.logger.Debug("joined in-flight run", zap.String("filename", req.Filename))
		}
		run, _ := res.Val.(*entity.SummaryRun)
		return run, res.Err
	case <-ctx.Done():
		err := ctx.Err()
		kind := classify(ctx, err, entity.ErrorKindCancelled)
		run := entity.NewSummaryRun(req.Filename)
		run.MarkFailed(kind, err.Error())
		uc.logger.Warn("caller stopped waiting for run",
			zap.String("filename", req.Filename),
			zap.String("kind", string(kind)),
		)
		return run, &entity.RunError{Kind: kind, Message: err.Error(), Err: err}
	}
}

func (uc *SummarizeVideoUseCase) join(ctx context.Context, filename string) *flight {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	f, ok := uc.flights[filename]
	if !ok {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: runCtx, cancel: cancel}
		uc.flights[filename] = f
	}
	f.waiters++
	return f
}

func (uc *SummarizeVideoUseCase) leave(filename string, f *flight) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	delete(uc.flights, filename)
	// A cancelled run may still be unwinding; later callers must not join it.
	uc.inflight.Forget(filename)
}

func (uc *SummarizeVideoUseCase) run(ctx context.Context, req SummarizeRequest) (*entity.SummaryRun, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "SummarizeVideoUseCase.Execute")
	defer span.End()

	run := entity.NewSummaryRun(req.Filename)
	span.SetAttributes(
		attribute.String("run.id", run.ID.String()),
		attribute.String("run.filename", req.Filename),
	)
	log := uc.logger.With(zap.String("run_id", run.ID.String()), zap.String("filename", req.Filename))

	rec, err := uc.repo.FindByFilename(ctx, req.Filename)
	switch {
	case err == nil && rec.Processed:
		run.MarkAlreadyProcessed(rec.ShortenedVideoURL)
		metrics.RunsTotal.WithLabelValues("already_processed").Inc()
		log.Info("video already processed", zap.String("summary_url", rec.ShortenedVideoURL))
		return run, nil
	case err != nil && !errors.Is(err, entity.ErrNotFound):
		return uc.fail(ctx, run, entity.ErrorKindStore, fmt.Errorf("lookup processed record: %w", err), log)
	}

	if uc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.timeout)
		defer cancel()
	}

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	runDir := filepath.Join(uc.workDir, run.ID.String())
	if !uc.keepWork {
		defer os.RemoveAll(runDir)
	}

	run.Transition(entity.RunStateSampling)
	var frames []entity.SampledFrame
	err = uc.stage(ctx, "sample", func(ctx context.Context) error {
		var err error
		frames, err = uc.sampler.Sample(ctx, req.VideoPath, filepath.Join(runDir, "frames"), uc.sampleRate)
		return err
	})
	if err != nil {
		return uc.fail(ctx, run, entity.ErrorKindInternal, err, log)
	}
	run.SampledCount = len(frames)
	metrics.FramesSampledTotal.Add(float64(len(frames)))

	run.Transition(entity.RunStateScoring)
	scores := make(map[int]float64, len(frames))
	paths := make(map[int]string, len(frames))
	err = uc.stage(ctx, "score", func(ctx context.Context) error {
		for _, f := range frames {
			score, err := uc.scorer.Score(ctx, f.Path)
			if err != nil {
				return err
			}
			scores[f.Index] = score
			paths[f.Index] = f.Path
			metrics.FrameScores.Observe(score)
		}
		return nil
	})
	if err != nil {
		return uc.fail(ctx, run, entity.ErrorKindModel, err, log)
	}

	run.Transition(entity.RunStateSelecting)
	var ranked []int
	err = uc.stage(ctx, "select", func(ctx context.Context) error {
		var err error
		ranked, err = highlight.SelectTop(scores, uc.topN)
		return err
	})
	if err != nil {
		return uc.fail(ctx, run, entity.ErrorKindSelect, err, log)
	}

	// The summary plays the selected frames in the order they occur in the
	// source, not in score order.
	selected := append([]int(nil), ranked...)
	sort.Ints(selected)
	run.SelectedFrames = selected
	log.Info("frames selected", zap.Ints("ranked", ranked), zap.Int("sampled", len(frames)))

	run.Transition(entity.RunStateAssembling)
	framePaths := make([]string, 0, len(selected))
	for _, idx := range selected {
		framePaths = append(framePaths, paths[idx])
	}
	outputDir := uc.outputDir
	if uc.discardOut {
		outputDir = filepath.Join(runDir, "output")
	}
	run.OutputPath = filepath.Join(outputDir, OutputName(req.Filename, run.ID.String()))
	err = uc.stage(ctx, "assemble", func(ctx context.Context) error {
		asm, err := uc.assembler.Assemble(ctx, framePaths, run.OutputPath)
		if err != nil {
			return err
		}
		run.ManifestPath = asm.ManifestPath
		if len(asm.Skipped) > 0 {
			metrics.MissingFramesTotal.Add(float64(len(asm.Skipped)))
			log.Warn("summary built without missing frames", zap.Strings("skipped", asm.Skipped))
		}
		return nil
	})
	if err != nil {
		return uc.fail(ctx, run, entity.ErrorKindAssembly, err, log)
	}

	var summaryURL string
	err = uc.stage(ctx, "publish", func(ctx context.Context) error {
		var err error
		summaryURL, err = uc.publisher.Publish(ctx, run.OutputPath)
		return err
	})
	if err != nil {
		return uc.fail(ctx, run, entity.ErrorKindPublish, err, log)
	}

	err = uc.repo.MarkProcessed(ctx, &entity.ProcessedVideo{
		Filename:          req.Filename,
		ShortenedVideoURL: summaryURL,
		RunID:             run.ID.String(),
		FrameCount:        run.SampledCount,
		SelectedFrames:    run.SelectedFrames,
	})
	if err != nil {
		return uc.fail(ctx, run, entity.ErrorKindStore, fmt.Errorf("mark processed: %w", err), log)
	}

	run.MarkDone(summaryURL)
	metrics.RunsTotal.WithLabelValues("done").Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(run.StartedAt).Seconds())

	log.Info("summary created",
		zap.String("output", run.OutputPath),
		zap.String("summary_url", summaryURL),
		zap.Ints("selected_frames", run.SelectedFrames),
		zap.String("manifest", run.ManifestPath),
		zap.Bool("manifest_frames_kept", uc.keepWork),
	)
	return run, nil
}

func (uc *SummarizeVideoUseCase) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer("usecase").Start(ctx, name, trace.WithAttributes(attribute.String("stage", name)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (uc *SummarizeVideoUseCase) fail(ctx context.Context, run *entity.SummaryRun, kind entity.ErrorKind, err error, log *zap.Logger) (*entity.SummaryRun, error) {
	kind = classify(ctx, err, kind)

	run.MarkFailed(kind, err.Error())
	metrics.RunsTotal.WithLabelValues("failed").Inc()
	log.Error("summarize run failed",
		zap.String("kind", string(kind)),
		zap.String("state", string(entity.RunStateFailed)),
		zap.Error(err),
	)
	return run, &entity.RunError{Kind: kind, Message: err.Error(), Err: err}
}

func classify(ctx context.Context, err error, fallback entity.ErrorKind) entity.ErrorKind {
	var (
		decodeErr   *entity.DecodeError
		modelErr    *entity.ModelInvocationError
		assemblyErr *entity.AssemblyError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return entity.ErrorKindTimeout
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return entity.ErrorKindCancelled
	case errors.As(err, &decodeErr):
		return entity.ErrorKindDecode
	case errors.As(err, &modelErr):
		return entity.ErrorKindModel
	case errors.As(err, &assemblyErr):
		return entity.ErrorKindAssembly
	case errors.Is(err, entity.ErrInvalidScore):
		return entity.ErrorKindSelect
	}
	return fallback
}

// OutputName derives a per-run output file name from the source filename.
func OutputName(filename, runID string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "video"
	}
	return fmt.Sprintf("%s_%s.mp4", stem, runID)
}

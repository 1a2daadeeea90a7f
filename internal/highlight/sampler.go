package highlight

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/fiapx/fiapx-highlight-service/internal/domain/entity"
	"github.com/fiapx/fiapx-highlight-service/internal/domain/port"
	"go.uber.org/zap"
)

// FrameFilePattern names sampled frames. The zero padding keeps lexicographic
// order equal to frame-index order.
const FrameFilePattern = "frame_%08d.jpg"

type Sampler struct {
	decoder     port.VideoDecoder
	jpegQuality int
	logger      *zap.Logger
}

func NewSampler(decoder port.VideoDecoder, jpegQuality int, logger *zap.Logger) *Sampler {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = jpeg.DefaultQuality
	}
	return &Sampler{decoder: decoder, jpegQuality: jpegQuality, logger: logger}
}

// SampleInterval returns how many source frames separate two sampled frames.
func SampleInterval(nativeFPS, targetRate float64) int {
	if nativeFPS <= 0 || targetRate <= 0 || math.IsNaN(nativeFPS) || math.IsInf(nativeFPS, 0) {
		return 1
	}
	interval := int(math.Floor(nativeFPS / targetRate))
	if interval < 1 {
		return 1
	}
	return interval
}

// Sample decodes videoPath from the first frame and writes every interval-th
// frame into outputDir. A decode failure after the first frame ends the
// sequence early instead of failing the call.
func (s *Sampler) Sample(ctx context.Context, videoPath, outputDir string, targetRate float64) ([]entity.SampledFrame, error) {
	if targetRate <= 0 || math.IsNaN(targetRate) {
		return nil, fmt.Errorf("target rate must be positive, got %v", targetRate)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}

	stream, err := s.decoder.Open(ctx, videoPath)
	if err != nil {
		return nil, &entity.DecodeError{Path: videoPath, Err: err}
	}
	defer stream.Close()

	interval := SampleInterval(stream.FrameRate(), targetRate)
	log := s.logger.With(
		zap.String("video", videoPath),
		zap.Float64("native_fps", stream.FrameRate()),
		zap.Float64("target_rate", targetRate),
		zap.Int("interval", interval),
	)

	var frames []entity.SampledFrame
	decoded := 0
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if decoded == 0 {
				return nil, &entity.DecodeError{Path: videoPath, Err: err}
			}
			log.Warn("decode stopped mid-stream", zap.Int("frame_index", index), zap.Error(err))
			break
		}
		decoded++

		if index%interval != 0 {
			continue
		}

		path := filepath.Join(outputDir, fmt.Sprintf(FrameFilePattern, index))
		if err := s.writeFrame(path, img); err != nil {
			return nil, fmt.Errorf("write frame %d: %w", index, err)
		}
		frames = append(frames, entity.SampledFrame{Index: index, Path: path})
	}

	if decoded == 0 {
		return nil, &entity.DecodeError{Path: videoPath, Err: entity.ErrNoFrames}
	}

	log.Info("frames sampled", zap.Int("decoded", decoded), zap.Int("sampled", len(frames)))
	return frames, nil
}

func (s *Sampler) writeFrame(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: s.jpegQuality}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

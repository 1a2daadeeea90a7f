package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/fiapx/fiapx-highlight-service/internal/domain/entity"
	"go.uber.org/zap"
)

const (
	DefaultVideoCodec  = "libx264"
	DefaultPixelFormat = "yuv420p"
)

// Encoder concatenates the images listed in a concat-demuxer manifest into a
// single video with a fixed codec and pixel format.
type Encoder struct {
	ffmpegBin   string
	codec       string
	pixelFormat string
	logger      *zap.Logger
}

func NewEncoder(ffmpegBin, codec, pixelFormat string, logger *zap.Logger) *Encoder {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if codec == "" {
		codec = DefaultVideoCodec
	}
	if pixelFormat == "" {
		pixelFormat = DefaultPixelFormat
	}
	return &Encoder{ffmpegBin: ffmpegBin, codec: codec, pixelFormat: pixelFormat, logger: logger}
}

func (e *Encoder) Concatenate(ctx context.Context, manifestPath string, outputPath string) error {
	cmd := exec.CommandContext(ctx, e.ffmpegBin, e.concatArgs(manifestPath, outputPath)...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return &entity.AssemblyError{Output: strings.TrimSpace(string(output)), Err: fmt.Errorf("ffmpeg concat: %w", err)}
	}

	e.logger.Info("summary video encoded",
		zap.String("manifest", manifestPath),
		zap.String("output", outputPath),
	)
	return nil
}

func (e *Encoder) concatArgs(manifestPath, outputPath string) []string {
	return []string{
		"-y",
		"-v", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", manifestPath,
		"-c:v", e.codec,
		"-pix_fmt", e.pixelFormat,
		// libx264 with yuv420p needs even dimensions.
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		outputPath,
	}
}

package highlight

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-highlight-service/internal/domain/entity"
	"github.com/fiapx/fiapx-highlight-service/internal/domain/port"
	"go.uber.org/zap"
)

const manifestSuffix = ".filelist.txt"

type Assembler struct {
	encoder       port.FrameEncoder
	frameDuration float64
	logger        *zap.Logger
}

// NewAssembler builds an Assembler. frameDuration is how long each still is
// shown in seconds; zero leaves timing to the encoder.
func NewAssembler(encoder port.FrameEncoder, frameDuration float64, logger *zap.Logger) *Assembler {
	if frameDuration < 0 {
		frameDuration = 0
	}
	return &Assembler{encoder: encoder, frameDuration: frameDuration, logger: logger}
}

type Assembly struct {
	OutputPath   string
	ManifestPath string
	Frames       []string
	Skipped      []string
}

// ManifestPath is where the concat manifest for outputPath is written.
func ManifestPath(outputPath string) string {
	return outputPath + manifestSuffix
}

// Assemble writes a manifest for framePaths in the given order and encodes it
// into outputPath. Frames missing on disk are left out.
func (a *Assembler) Assemble(ctx context.Context, framePaths []string, outputPath string) (*Assembly, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	asm := &Assembly{OutputPath: outputPath, ManifestPath: ManifestPath(outputPath)}
	for _, p := range framePaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		if _, err := os.Stat(abs); err != nil {
			a.logger.Warn("frame file not found, leaving it out",
				zap.String("frame", abs), zap.Error(entity.ErrMissingFrame))
			asm.Skipped = append(asm.Skipped, abs)
			continue
		}
		asm.Frames = append(asm.Frames, abs)
	}

	if err := a.writeManifest(asm.ManifestPath, asm.Frames); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	if len(asm.Frames) == 0 {
		return nil, &entity.AssemblyError{Err: entity.ErrNoFrames}
	}

	a.logger.Debug("manifest written",
		zap.String("manifest", asm.ManifestPath),
		zap.Int("frames", len(asm.Frames)),
		zap.Int("skipped", len(asm.Skipped)),
	)

	if err := a.encoder.Concatenate(ctx, asm.ManifestPath, outputPath); err != nil {
		var asmErr *entity.AssemblyError
		if errors.As(err, &asmErr) {
			return nil, err
		}
		return nil, &entity.AssemblyError{Err: err}
	}
	return asm, nil
}

func (a *Assembler) writeManifest(path string, frames []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, frame := range frames {
		fmt.Fprintf(w, "file '%s'\n", escapeManifestPath(frame))
		if a.frameDuration > 0 {
			fmt.Fprintf(w, "duration %s\n", strconv.FormatFloat(a.frameDuration, 'f', -1, 64))
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func escapeManifestPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}

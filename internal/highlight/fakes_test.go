package highlight

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"sync"

	"github.com/fiapx/fiapx-highlight-service/internal/domain/entity"
	"github.com/fiapx/fiapx-highlight-service/internal/domain/port"
)

type fakeStream struct {
	fps    float64
	total  int
	failAt int
	next   int
	closed bool
}

func (s *fakeStream) FrameRate() float64 { return s.fps }

func (s *fakeStream) Next() (image.Image, error) {
	if s.failAt > 0 && s.next == s.failAt {
		return nil, errors.New("corrupt packet")
	}
	if s.next >= s.total {
		return nil, io.EOF
	}
	s.next++
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(s.next), G: 10, B: 20, A: 255})
		}
	}
	return img, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeDecoder struct {
	stream  *fakeStream
	openErr error
}

func (d *fakeDecoder) Open(_ context.Context, _ string) (port.FrameStream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.stream, nil
}

type fakeDetector struct {
	mu      sync.Mutex
	raw     string
	err     error
	batches []entity.ImageBatch
}

func (d *fakeDetector) Detect(_ context.Context, batch entity.ImageBatch) (entity.DetectionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, batch)
	if d.err != nil {
		return entity.DetectionResult{}, d.err
	}
	return entity.DetectionResult{DetectionScores: []byte(d.raw)}, nil
}

type fakeEncoder struct {
	manifest string
	output   string
	err      error
}

func (e *fakeEncoder) Concatenate(_ context.Context, manifestPath, outputPath string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	e.manifest = string(data)
	e.output = outputPath
	if e.err != nil {
		return e.err
	}
	return os.WriteFile(outputPath, []byte("video"), 0644)
}

package usecase

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fiapx/fiapx-highlight-service/internal/domain/entity"
	"github.com/fiapx/fiapx-highlight-service/internal/domain/port"
)

type memRepo struct {
	mu      sync.Mutex
	records map[string]*entity.ProcessedVideo
	findErr error
	markErr error
}

func newMemRepo() *memRepo {
	return &memRepo{records: map[string]*entity.ProcessedVideo{}}
}

func (r *memRepo) FindByFilename(_ context.Context, filename string) (*entity.ProcessedVideo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	rec, ok := r.records[filename]
	if !ok {
		return nil, entity.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memRepo) MarkProcessed(_ context.Context, rec *entity.ProcessedVideo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return r.markErr
	}
	cp := *rec
	cp.Processed = true
	r.records[rec.Filename] = &cp
	return nil
}

type fakeStream struct {
	fps   float64
	total int
	next  int
}

func (s *fakeStream) FrameRate() float64 { return s.fps }

func (s *fakeStream) Next() (image.Image, error) {
	if s.next >= s.total {
		return nil, io.EOF
	}
	s.next++
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(s.next), G: 64, B: 128, A: 255})
		}
	}
	return img, nil
}

func (s *fakeStream) Close() error { return nil }

// fakeDecoder hands out a fresh stream of total frames per Open. When gate is
// set, Open signals on opened and blocks until gate is closed.
type fakeDecoder struct {
	fps     float64
	total   int
	openErr error
	opens   atomic.Int32
	opened  chan struct{}
	gate    chan struct{}
	block   bool
}

func (d *fakeDecoder) Open(ctx context.Context, _ string) (port.FrameStream, error) {
	d.opens.Add(1)
	if d.opened != nil {
		d.opened <- struct{}{}
	}
	if d.gate != nil {
		<-d.gate
	}
	if d.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d.openErr != nil {
		return nil, d.openErr
	}
	return &fakeStream{fps: d.fps, total: d.total}, nil
}

// sequenceDetector answers by call order. Frames are scored in index order,
// so call i corresponds to the i-th sampled frame.
type sequenceDetector struct {
	mu     sync.Mutex
	calls  int
	scores map[int]string

	// onCall runs before answering call i.
	onCall func(i int)
}

func (d *sequenceDetector) Detect(_ context.Context, _ entity.ImageBatch) (entity.DetectionResult, error) {
	d.mu.Lock()
	i := d.calls
	d.calls++
	hook := d.onCall
	d.mu.Unlock()

	if hook != nil {
		hook(i)
	}
	raw, ok := d.scores[i]
	if !ok {
		raw = `[0.1]`
	}
	return entity.DetectionResult{DetectionScores: []byte(raw)}, nil
}

type fakeEncoder struct {
	mu        sync.Mutex
	manifests []string
	failures  int
}

func (e *fakeEncoder) Concatenate(_ context.Context, manifestPath, outputPath string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.manifests = append(e.manifests, string(data))
	fail := e.failures > 0
	if fail {
		e.failures--
	}
	e.mu.Unlock()

	if fail {
		return &entity.AssemblyError{Output: "Conversion failed!", Err: errors.New("exit status 1")}
	}
	return os.WriteFile(outputPath, []byte("mp4"), 0644)
}

func (e *fakeEncoder) lastManifest() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.manifests) == 0 {
		return ""
	}
	return e.manifests[len(e.manifests)-1]
}

type fakePublisher struct {
	err error
}

func (p *fakePublisher) Publish(_ context.Context, localPath string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "http://localhost:8080/output/" + filepath.Base(localPath), nil
}

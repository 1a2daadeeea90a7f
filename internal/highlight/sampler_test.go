package highlight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/fiapx/fiapx-highlight-service/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSampleInterval(t *testing.T) {
	tests := []struct {
		name   string
		fps    float64
		rate   float64
		expect int
	}{
		{"30fps at 3", 30, 3, 10},
		{"29.97fps at 3", 29.97, 3, 9},
		{"rate equals fps", 25, 25, 1},
		{"rate above fps", 24, 60, 1},
		{"unknown fps", 0, 3, 1},
		{"60fps at 1", 60, 1, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, SampleInterval(tt.fps, tt.rate))
		})
	}
}

func TestSampleEveryTenthFrame(t *testing.T) {
	dir := t.TempDir()
	stream := &fakeStream{fps: 30, total: 300}
	s := NewSampler(&fakeDecoder{stream: stream}, 90, zap.NewNop())

	frames, err := s.Sample(context.Background(), "in.mp4", dir, 3)
	require.NoError(t, err)
	require.Len(t, frames, 30)
	assert.True(t, stream.closed)

	for i, f := range frames {
		assert.Equal(t, i*10, f.Index)
		_, err := os.Stat(f.Path)
		assert.NoError(t, err)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.True(t, sort.StringsAreSorted(names))
	assert.Equal(t, "frame_00000120.jpg", filepath.Base(frames[12].Path))
}

func TestSampleRateAtOrAboveNativeKeepsEveryFrame(t *testing.T) {
	for _, rate := range []float64{24, 30, 120} {
		stream := &fakeStream{fps: 24, total: 17}
		s := NewSampler(&fakeDecoder{stream: stream}, 0, zap.NewNop())

		frames, err := s.Sample(context.Background(), "in.mp4", t.TempDir(), rate)
		require.NoError(t, err)
		assert.Len(t, frames, 17)
	}
}

func TestSampleCountMatchesInterval(t *testing.T) {
	for _, total := range []int{1, 9, 10, 11, 299, 301} {
		stream := &fakeStream{fps: 30, total: total}
		s := NewSampler(&fakeDecoder{stream: stream}, 0, zap.NewNop())

		frames, err := s.Sample(context.Background(), "in.mp4", t.TempDir(), 3)
		require.NoError(t, err)
		assert.Equal(t, (total+9)/10, len(frames), "total=%d", total)
	}
}

func TestSampleMidStreamFailureEndsEarly(t *testing.T) {
	stream := &fakeStream{fps: 30, total: 300, failAt: 55}
	s := NewSampler(&fakeDecoder{stream: stream}, 0, zap.NewNop())

	frames, err := s.Sample(context.Background(), "in.mp4", t.TempDir(), 3)
	require.NoError(t, err)
	assert.Len(t, frames, 6)
}

func TestSampleOpenFailureIsDecodeError(t *testing.T) {
	s := NewSampler(&fakeDecoder{openErr: errors.New("moov atom not found")}, 0, zap.NewNop())

	_, err := s.Sample(context.Background(), "broken.mp4", t.TempDir(), 3)
	var decodeErr *entity.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "broken.mp4", decodeErr.Path)
}

func TestSampleEmptyStreamIsDecodeError(t *testing.T) {
	s := NewSampler(&fakeDecoder{stream: &fakeStream{fps: 30}}, 0, zap.NewNop())

	_, err := s.Sample(context.Background(), "empty.mp4", t.TempDir(), 3)
	var decodeErr *entity.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.ErrorIs(t, err, entity.ErrNoFrames)
}

func TestSampleRejectsNonPositiveRate(t *testing.T) {
	s := NewSampler(&fakeDecoder{stream: &fakeStream{fps: 30, total: 3}}, 0, zap.NewNop())

	_, err := s.Sample(context.Background(), "in.mp4", t.TempDir(), 0)
	assert.Error(t, err)
}

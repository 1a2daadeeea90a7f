package highlight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fiapx/fiapx-highlight-service/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFrames(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(names))
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte("jpg"), 0644))
		paths = append(paths, p)
	}
	return paths
}

func manifestFiles(manifest string) []string {
	var files []string
	for _, line := range strings.Split(manifest, "\n") {
		if strings.HasPrefix(line, "file ") {
			files = append(files, line)
		}
	}
	return files
}

func TestAssembleKeepsCallerOrder(t *testing.T) {
	frames := writeFrames(t, t.TempDir(), "frame_00000030.jpg", "frame_00000010.jpg", "frame_00000020.jpg")
	enc := &fakeEncoder{}
	a := NewAssembler(enc, 0, zap.NewNop())
	output := filepath.Join(t.TempDir(), "out", "summary.mp4")

	asm, err := a.Assemble(context.Background(), frames, output)
	require.NoError(t, err)

	assert.Equal(t, output, enc.output)
	assert.Equal(t, output+".filelist.txt", asm.ManifestPath)
	assert.Equal(t, []string{
		"file '" + frames[0] + "'",
		"file '" + frames[1] + "'",
		"file '" + frames[2] + "'",
	}, manifestFiles(enc.manifest))
	assert.NotContains(t, enc.manifest, "duration")

	_, err = os.Stat(asm.ManifestPath)
	assert.NoError(t, err, "manifest is kept after encoding")
}

func TestAssembleWritesFrameDurations(t *testing.T) {
	frames := writeFrames(t, t.TempDir(), "a.jpg", "b.jpg")
	enc := &fakeEncoder{}
	a := NewAssembler(enc, 1.5, zap.NewNop())

	_, err := a.Assemble(context.Background(), frames, filepath.Join(t.TempDir(), "s.mp4"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(enc.manifest), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "duration 1.5", lines[1])
	assert.Equal(t, "duration 1.5", lines[3])
}

func TestAssembleSkipsMissingFrames(t *testing.T) {
	dir := t.TempDir()
	frames := writeFrames(t, dir, "a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg")
	require.NoError(t, os.Remove(frames[2]))
	enc := &fakeEncoder{}
	a := NewAssembler(enc, 0, zap.NewNop())

	asm, err := a.Assemble(context.Background(), frames, filepath.Join(t.TempDir(), "s.mp4"))
	require.NoError(t, err)

	assert.Len(t, asm.Frames, 4)
	assert.Equal(t, []string{frames[2]}, asm.Skipped)
	assert.Len(t, manifestFiles(enc.manifest), 4)
	assert.NotContains(t, enc.manifest, "c.jpg")
}

func TestAssembleRelativePathsBecomeAbsolute(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "rel.jpg")
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	enc := &fakeEncoder{}
	a := NewAssembler(enc, 0, zap.NewNop())
	asm, err := a.Assemble(context.Background(), []string{"rel.jpg"}, filepath.Join(t.TempDir(), "s.mp4"))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(asm.Frames[0]))
}

func TestAssembleEscapesQuotes(t *testing.T) {
	frames := writeFrames(t, t.TempDir(), "it's.jpg")
	enc := &fakeEncoder{}
	a := NewAssembler(enc, 0, zap.NewNop())

	_, err := a.Assemble(context.Background(), frames, filepath.Join(t.TempDir(), "s.mp4"))
	require.NoError(t, err)
	assert.Contains(t, enc.manifest, `it'\''s.jpg`)
}

func TestAssembleEncoderFailureIsAssemblyError(t *testing.T) {
	frames := writeFrames(t, t.TempDir(), "a.jpg")
	a := NewAssembler(&fakeEncoder{err: errors.New("exit status 1")}, 0, zap.NewNop())

	_, err := a.Assemble(context.Background(), frames, filepath.Join(t.TempDir(), "s.mp4"))
	var asmErr *entity.AssemblyError
	assert.ErrorAs(t, err, &asmErr)
}

func TestAssembleKeepsEncoderDiagnostics(t *testing.T) {
	frames := writeFrames(t, t.TempDir(), "a.jpg")
	diag := &entity.AssemblyError{Output: "Unknown encoder 'libx264'", Err: errors.New("exit status 1")}
	a := NewAssembler(&fakeEncoder{err: diag}, 0, zap.NewNop())

	_, err := a.Assemble(context.Background(), frames, filepath.Join(t.TempDir(), "s.mp4"))
	var asmErr *entity.AssemblyError
	require.ErrorAs(t, err, &asmErr)
	assert.Equal(t, "Unknown encoder 'libx264'", asmErr.Output)
}

func TestAssembleNoFramesLeft(t *testing.T) {
	enc := &fakeEncoder{}
	a := NewAssembler(enc, 0, zap.NewNop())

	_, err := a.Assemble(context.Background(), []string{"/nonexistent/a.jpg"}, filepath.Join(t.TempDir(), "s.mp4"))
	var asmErr *entity.AssemblyError
	require.ErrorAs(t, err, &asmErr)
	assert.ErrorIs(t, err, entity.ErrNoFrames)
	assert.Empty(t, enc.output, "encoder is not invoked")
}

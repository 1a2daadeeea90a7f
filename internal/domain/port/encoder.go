package port

import "context"

// FrameEncoder turns a concat manifest into a video at outputPath,
// overwriting any existing file.
type FrameEncoder interface {
	Concatenate(ctx context.Context, manifestPath string, outputPath string) error
}

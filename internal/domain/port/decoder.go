package port

import (
	"context"
	"image"
)

// FrameStream yields decoded frames in source order. Next returns io.EOF at
// the end of the stream.
type FrameStream interface {
	FrameRate() float64
	Next() (image.Image, error)
	Close() error
}

type VideoDecoder interface {
	Open(ctx context.Context, videoPath string) (FrameStream, error)
}

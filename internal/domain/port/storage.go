package port

import (
	"context"
	"io"
)

type VideoStorage interface {
	DownloadVideo(ctx context.Context, objectKey string, destPath string) error
	UploadSummary(ctx context.Context, objectKey string, reader io.Reader, size int64) (string, error)
}

// SummaryPublisher makes a finished summary video reachable and returns its URL.
type SummaryPublisher interface {
	Publish(ctx context.Context, localPath string) (string, error)
}

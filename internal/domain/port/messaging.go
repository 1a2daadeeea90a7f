package port

import "context"

type StatusPublisher interface {
	PublishStatus(ctx context.Context, msg []byte) error
}

type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg []byte, reason string) error
}

// RetryPublisher puts a message back on the request queue carrying the
// attempt number it will be processed as.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, msg []byte, attempt int) error
}

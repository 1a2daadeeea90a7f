package port

import (
	"context"

	"github.com/fiapx/fiapx-highlight-service/internal/domain/entity"
)

// ObjectDetector must be safe for concurrent use; one instance is shared by
// every run in the process.
type ObjectDetector interface {
	Detect(ctx context.Context, batch entity.ImageBatch) (entity.DetectionResult, error)
}

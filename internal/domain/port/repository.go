package port

import (
	"context"

	"github.com/fiapx/fiapx-highlight-service/internal/domain/entity"
)

type ProcessedVideoRepository interface {
	// FindByFilename returns entity.ErrNotFound when no record exists.
	FindByFilename(ctx context.Context, filename string) (*entity.ProcessedVideo, error)
	// MarkProcessed upserts the record keyed by filename.
	MarkProcessed(ctx context.Context, record *entity.ProcessedVideo) error
}

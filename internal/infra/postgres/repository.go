package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fiapx/fiapx-highlight-service/internal/domain/entity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProcessedVideoRepository struct {
	pool *pgxpool.Pool
}

func NewProcessedVideoRepository(pool *pgxpool.Pool) *ProcessedVideoRepository {
	return &ProcessedVideoRepository{pool: pool}
}

func (r *ProcessedVideoRepository) FindByFilename(ctx context.Context, filename string) (*entity.ProcessedVideo, error) {
	query := `
		SELECT video_filename, processed, shortened_video_url, run_id,
			frame_count, selected_frames, updated_at
		FROM processed_videos WHERE video_filename=$1`

	rec := &entity.ProcessedVideo{}
	var selected []int32
	err := r.pool.QueryRow(ctx, query, filename).Scan(
		&rec.Filename, &rec.Processed, &rec.ShortenedVideoURL, &rec.RunID,
		&rec.FrameCount, &selected, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find processed video: %w", err)
	}
	rec.SelectedFrames = make([]int, len(selected))
	for i, v := range selected {
		rec.SelectedFrames[i] = int(v)
	}
	return rec, nil
}

func (r *ProcessedVideoRepository) MarkProcessed(ctx context.Context, rec *entity.ProcessedVideo) error {
	query := `
		INSERT INTO processed_videos (
			video_filename, processed, shortened_video_url, run_id,
			frame_count, selected_frames, updated_at
		) VALUES ($1, TRUE, $2, $3, $4, $5, $6)
		ON CONFLICT (video_filename) DO UPDATE SET
			processed = TRUE,
			shortened_video_url = EXCLUDED.shortened_video_url,
			run_id = EXCLUDED.run_id,
			frame_count = EXCLUDED.frame_count,
			selected_frames = EXCLUDED.selected_frames,
			updated_at = EXCLUDED.updated_at`

	selected := make([]int32, len(rec.SelectedFrames))
	for i, v := range rec.SelectedFrames {
		selected[i] = int32(v)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, query,
		rec.Filename, rec.ShortenedVideoURL, rec.RunID,
		rec.FrameCount, selected, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert processed video: %w", err)
	}
	rec.Processed = true
	return nil
}

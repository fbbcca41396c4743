package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fiapx/fiapx-vision-service/internal/domain/entity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type VideoRepository struct {
	pool *pgxpool.Pool
}

func NewVideoRepository(pool *pgxpool.Pool) *VideoRepository {
	return &VideoRepository{pool: pool}
}

func (r *VideoRepository) Create(ctx context.Context, v *entity.Video) error {
	detections, err := marshalDetections(v.Detections)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO videos (
			id, video_key, base_name, status, frame_count, sample_interval,
			analyzed_key, analyzed_frame_key, detections, attempt, max_attempts,
			error_message, created_at, updated_at, extracted_at, analyzed_at, job_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`

	_, err = r.pool.Exec(ctx, query,
		v.ID, v.VideoKey, v.BaseName, string(v.Status), v.FrameCount, v.SampleInterval,
		v.AnalyzedKey, v.AnalyzedFrameKey, detections, v.Attempt, v.MaxAttempts,
		v.ErrorMessage, v.CreatedAt, v.UpdatedAt, v.ExtractedAt, v.AnalyzedAt, v.JobID,
	)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

func (r *VideoRepository) Update(ctx context.Context, v *entity.Video) error {
	detections, err := marshalDetections(v.Detections)
	if err != nil {
		return err
	}

	query := `
		UPDATE videos SET
			status=$2, frame_count=$3, sample_interval=$4, analyzed_key=$5,
			analyzed_frame_key=$6, detections=$7, attempt=$8, error_message=$9,
			updated_at=$10, extracted_at=$11, analyzed_at=$12, job_id=$13
		WHERE id=$1`

	tag, err := r.pool.Exec(ctx, query,
		v.ID, string(v.Status), v.FrameCount, v.SampleInterval, v.AnalyzedKey,
		v.AnalyzedFrameKey, detections, v.Attempt, v.ErrorMessage,
		v.UpdatedAt, v.ExtractedAt, v.AnalyzedAt, v.JobID,
	)
	if err != nil {
		return fmt.Errorf("update video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update video %s: %w", v.ID, entity.ErrVideoNotFound)
	}
	return nil
}

func (r *VideoRepository) FindByKey(ctx context.Context, videoKey string) (*entity.Video, error) {
	query := `
		SELECT id, video_key, base_name, status, frame_count, sample_interval,
			analyzed_key, analyzed_frame_key, detections, attempt, max_attempts,
			error_message, created_at, updated_at, extracted_at, analyzed_at, job_id
		FROM videos WHERE video_key=$1`

	v := &entity.Video{}
	var status string
	var detections []byte
	err := r.pool.QueryRow(ctx, query, videoKey).Scan(
		&v.ID, &v.VideoKey, &v.BaseName, &status, &v.FrameCount, &v.SampleInterval,
		&v.AnalyzedKey, &v.AnalyzedFrameKey, &detections, &v.Attempt, &v.MaxAttempts,
		&v.ErrorMessage, &v.CreatedAt, &v.UpdatedAt, &v.ExtractedAt, &v.AnalyzedAt, &v.JobID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find video %q: %w", videoKey, entity.ErrVideoNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find video by key: %w", err)
	}

	v.Status = entity.VideoStatus(status)
	if err := json.Unmarshal(detections, &v.Detections); err != nil {
		return nil, fmt.Errorf("decode detections: %w", err)
	}
	return v, nil
}

func marshalDetections(d []entity.Detection) ([]byte, error) {
	if d == nil {
		d = []entity.Detection{}
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode detections: %w", err)
	}
	return data, nil
}

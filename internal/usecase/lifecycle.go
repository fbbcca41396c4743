package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/fiapx/fiapx-vision-service/internal/domain/entity"
	"github.com/fiapx/fiapx-vision-service/internal/domain/port"
	"github.com/fiapx/fiapx-vision-service/internal/infra/metrics"
	"go.uber.org/zap"
)

// lifecycle holds the record keeping shared by both queue handlers: the video
// row, status events, the DLQ and the failure e-mail.
type lifecycle struct {
	stage     string
	repo      port.VideoRepository
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	maxRetry  int
}

func (l *lifecycle) loadOrCreate(ctx context.Context, videoKey string) (*entity.Video, error) {
	video, err := l.repo.FindByKey(ctx, videoKey)
	if err == nil {
		return video, nil
	}
	if !errors.Is(err, entity.ErrVideoNotFound) {
		return nil, fmt.Errorf("find video: %w", err)
	}

	video = entity.NewVideo(videoKey, l.maxRetry)
	if err := l.repo.Create(ctx, video); err != nil {
		return nil, fmt.Errorf("create video: %w", err)
	}
	return video, nil
}

// fail records err on the video and decides between another delivery and the DLQ.
// A nil return means the message is settled.
func (l *lifecycle) fail(ctx context.Context, video *entity.Video, rawMsg []byte, userEmail string, err error, log *zap.Logger) error {
	if entity.IsPermanent(err) {
		log.Error(l.stage+" failed permanently", zap.Error(err))
		return l.permanentFailure(ctx, video, rawMsg, userEmail, err.Error())
	}

	video.MarkFailed(err.Error())
	if uerr := l.repo.Update(ctx, video); uerr != nil {
		log.Error("failed to record failure", zap.Error(uerr))
	}

	if !video.CanRetry() {
		log.Error(l.stage+" exhausted retries", zap.Error(err))
		return l.permanentFailure(ctx, video, rawMsg, userEmail, err.Error())
	}

	metrics.RetryTotal.WithLabelValues(l.stage, strconv.Itoa(video.Attempt)).Inc()
	l.publishStatus(ctx, video, log)

	log.Warn(l.stage+" failed, will retry", zap.Error(err), zap.Int("attempt", video.Attempt))
	return fmt.Errorf("retryable failure (attempt %d/%d): %w", video.Attempt, video.MaxAttempts, err)
}

func (l *lifecycle) permanentFailure(ctx context.Context, video *entity.Video, rawMsg []byte, userEmail, errMsg string) error {
	log := l.logger.With(zap.String("video_key", video.VideoKey))

	video.MarkDeadLettered(errMsg)
	if err := l.repo.Update(ctx, video); err != nil {
		log.Error("failed to record failure", zap.Error(err))
	}

	if err := l.dlq.PublishToDLQ(ctx, rawMsg, errMsg); err != nil {
		log.Error("failed to publish to DLQ", zap.Error(err), zap.ByteString("body", rawMsg))
	}

	l.publishStatus(ctx, video, log)

	metrics.VideosProcessedTotal.WithLabelValues(l.stage, "dlq").Inc()

	if userEmail != "" {
		if err := l.notifier.NotifyFailure(ctx, userEmail, video.VideoKey, l.stage, errMsg); err != nil {
			log.Warn("failed to send failure notification", zap.Error(err))
		}
	}

	return nil
}

func (l *lifecycle) rejectMalformed(ctx context.Context, rawMsg []byte, err error) {
	l.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
	if derr := l.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error()); derr != nil {
		l.logger.Error("failed to publish to DLQ", zap.Error(derr))
	}
	metrics.VideosProcessedTotal.WithLabelValues(l.stage, "malformed").Inc()
}

func (l *lifecycle) publishStatus(ctx context.Context, video *entity.Video, log *zap.Logger) {
	data, _ := json.Marshal(entity.NewStatusMessage(video))
	if err := l.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

func persistenceError(op, key string, err error) error {
	if errors.Is(err, entity.ErrPersistence) {
		return err
	}
	return &entity.PersistenceError{Op: op, Key: key, Err: err}
}

package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/fiapx/fiapx-vision-service/internal/domain/entity"
	"github.com/fiapx/fiapx-vision-service/internal/domain/frame"
	"github.com/fiapx/fiapx-vision-service/internal/domain/port"
	"github.com/fiapx/fiapx-vision-service/internal/domain/sampling"
	"github.com/fiapx/fiapx-vision-service/internal/infra/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const stageExtraction = "extraction"

type ExtractFramesUseCase struct {
	store     port.ObjectStore
	opener    port.VideoOpener
	sampler   *sampling.Sampler
	archiver  port.Archiver
	scheduler port.AnalysisScheduler
	lc        *lifecycle
	logger    *zap.Logger
	cfg       ExtractConfig
}

type ExtractConfig struct {
	TempDir         string
	MaxRetries      int
	DefaultInterval float64
	// ArchiveFrames also stores every sampled frame in {base}/frames.zip.
	ArchiveFrames bool
	// AutoAnalyze queues an analysis as soon as extraction stores a frame.
	AutoAnalyze bool
}

// NewExtractFramesUseCase wires the extraction flow. archiver and scheduler may
// be nil when ArchiveFrames and AutoAnalyze are off.
func NewExtractFramesUseCase(
	repo port.VideoRepository,
	store port.ObjectStore,
	opener port.VideoOpener,
	sampler *sampling.Sampler,
	archiver port.Archiver,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	scheduler port.AnalysisScheduler,
	logger *zap.Logger,
	cfg ExtractConfig,
) *ExtractFramesUseCase {
	return &ExtractFramesUseCase{
		store:     store,
		opener:    opener,
		sampler:   sampler,
		archiver:  archiver,
		scheduler: scheduler,
		lc: &lifecycle{
			stage:     stageExtraction,
			repo:      repo,
			publisher: publisher,
			dlq:       dlq,
			notifier:  notifier,
			logger:    logger,
			maxRetry:  cfg.MaxRetries,
		},
		logger: logger,
		cfg:    cfg,
	}
}

// Execute handles one message from the extraction queue.
func (uc *ExtractFramesUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ExtractFramesUseCase.Execute")
	defer span.End()

	var msg entity.ExtractionMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.lc.rejectMalformed(ctx, rawMsg, err)
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("video.key", msg.VideoKey),
	)
	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	video, err := uc.lc.loadOrCreate(ctx, msg.VideoKey)
	if err != nil {
		log.Error("failed to load video record", zap.Error(err))
		return err
	}
	video.BeginJob(msg.JobID)

	if err := entity.ValidateUpload(msg.VideoKey, msg.FileSize); err != nil {
		return uc.lc.fail(ctx, video, rawMsg, msg.UserEmail, err, log)
	}

	if !video.CanRetry() {
		log.Warn("video exhausted retries, sending to DLQ")
		return uc.lc.permanentFailure(ctx, video, rawMsg, msg.UserEmail, "max retries exceeded")
	}

	interval := msg.IntervalSeconds
	if interval <= 0 {
		interval = uc.cfg.DefaultInterval
	}

	video.MarkExtracting(interval)
	if err := uc.lc.repo.Update(ctx, video); err != nil {
		log.Error("failed to update video to EXTRACTING", zap.Error(err))
		return fmt.Errorf("update video: %w", err)
	}
	uc.lc.publishStatus(ctx, video, log)

	metrics.ActiveWorkers.WithLabelValues(stageExtraction).Inc()
	defer metrics.ActiveWorkers.WithLabelValues(stageExtraction).Dec()

	start := time.Now()
	keys, err := uc.Extract(ctx, msg.VideoKey, interval)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return uc.lc.fail(ctx, video, rawMsg, msg.UserEmail, err, log)
	}

	video.MarkExtracted(len(keys))
	if err := uc.lc.repo.Update(ctx, video); err != nil {
		log.Error("failed to update video to EXTRACTED", zap.Error(err))
		return fmt.Errorf("update video extracted: %w", err)
	}
	uc.lc.publishStatus(ctx, video, log)

	metrics.VideosProcessedTotal.WithLabelValues(stageExtraction, "completed").Inc()
	metrics.StageDuration.WithLabelValues("extraction_total").Observe(time.Since(start).Seconds())

	log.Info("extraction completed", zap.Int("frame_count", len(keys)), zap.Float64("interval_seconds", interval))

	if uc.cfg.AutoAnalyze && uc.scheduler != nil && len(keys) > 0 {
		err := uc.scheduler.ScheduleAnalysis(ctx, entity.AnalysisMessage{
			JobID:     msg.JobID,
			VideoKey:  msg.VideoKey,
			UserEmail: msg.UserEmail,
		})
		if err != nil {
			log.Error("failed to schedule analysis", zap.Error(err))
		}
	}

	return nil
}

// Extract samples the stored video every intervalSeconds and stores each frame
// as {base}/frame_{frameIndex}.jpg. On error the keys stored so far are returned
// with it; they are left in place.
func (uc *ExtractFramesUseCase) Extract(ctx context.Context, videoKey string, intervalSeconds float64) ([]string, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ExtractFramesUseCase.Extract")
	defer span.End()

	log := uc.logger.With(zap.String("video_key", videoKey))

	if err := entity.ValidateExtension(videoKey); err != nil {
		return nil, err
	}

	dlStart := time.Now()
	ctxDl, spanDl := tracer.Start(ctx, "download_video")
	data, err := uc.store.Get(ctxDl, videoKey)
	spanDl.End()
	if err != nil {
		return nil, persistenceError("get", videoKey, err)
	}
	if err := entity.ValidateSize(int64(len(data))); err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	workDir := filepath.Join(uc.cfg.TempDir, uuid.NewString())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	videoPath := filepath.Join(workDir, "input"+path.Ext(videoKey))
	if err := os.WriteFile(videoPath, data, 0644); err != nil {
		return nil, fmt.Errorf("write video: %w", err)
	}

	stream, err := uc.opener.Open(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Warn("failed to close video stream", zap.Error(err))
		}
	}()

	seq, err := uc.sampler.Sample(stream, intervalSeconds)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("video.fps", seq.Plan.FPS),
		attribute.Int("video.frame_count", seq.Plan.FrameCount),
		attribute.Int("sampling.span", seq.Plan.Span),
	)

	exStart := time.Now()
	base := entity.BaseName(videoKey)
	var keys []string
	var entries []port.ArchiveEntry

	for sample, err := range seq.All(ctx) {
		if err != nil {
			return keys, err
		}

		jpg, err := frame.EncodeJPEG(sample.Frame)
		if err != nil {
			return keys, fmt.Errorf("encode frame %d: %w", sample.FrameIndex, err)
		}

		key := entity.FrameKey(base, sample.FrameIndex)
		if err := uc.store.Put(ctx, key, jpg, frame.ContentType); err != nil {
			log.Error("failed to store frame, aborting extraction",
				zap.String("frame_key", key),
				zap.Int("stored", len(keys)),
				zap.Error(err),
			)
			return keys, persistenceError("put", key, err)
		}
		keys = append(keys, key)

		if uc.cfg.ArchiveFrames {
			entries = append(entries, port.ArchiveEntry{Name: path.Base(key), Data: jpg})
		}
	}

	metrics.StageDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())
	metrics.FramesExtractedTotal.Add(float64(len(keys)))
	metrics.FramesSkippedTotal.Add(float64(seq.Skipped()))

	if uc.cfg.ArchiveFrames && uc.archiver != nil && len(entries) > 0 {
		if err := uc.storeArchive(ctx, base, entries); err != nil {
			return keys, err
		}
	}

	log.Debug("frames stored", zap.Int("stored", len(keys)), zap.Int("skipped", seq.Skipped()))
	return keys, nil
}

func (uc *ExtractFramesUseCase) storeArchive(ctx context.Context, base string, entries []port.ArchiveEntry) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "archive_frames")
	defer span.End()

	start := time.Now()
	data, err := uc.archiver.Archive(ctx, entries)
	if err != nil {
		return fmt.Errorf("archive frames: %w", err)
	}

	key := entity.ArchiveKey(base)
	if err := uc.store.Put(ctx, key, data, "application/zip"); err != nil {
		return persistenceError("put", key, err)
	}
	metrics.StageDuration.WithLabelValues("archive").Observe(time.Since(start).Seconds())
	return nil
}

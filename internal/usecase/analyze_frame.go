package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/fiapx/fiapx-vision-service/internal/domain/entity"
	"github.com/fiapx/fiapx-vision-service/internal/domain/frame"
	"github.com/fiapx/fiapx-vision-service/internal/domain/overlay"
	"github.com/fiapx/fiapx-vision-service/internal/domain/port"
	"github.com/fiapx/fiapx-vision-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const stageAnalysis = "analysis"

type AnalyzeFrameUseCase struct {
	store    port.ObjectStore
	detector port.Detector
	renderer *overlay.Renderer
	emitter  port.ResultEmitter
	lc       *lifecycle
	logger   *zap.Logger

	randMu sync.Mutex
	rng    *rand.Rand
}

type AnalyzeConfig struct {
	MaxRetries int
	// Rand picks the frame to analyze. Nil seeds one from the clock.
	Rand *rand.Rand
}

// AnalysisResult describes the frame that was analyzed and where the annotated copy went.
type AnalysisResult struct {
	FrameKey    string
	AnalyzedKey string
	Detections  []entity.Detection
	Image       *image.RGBA
}

// NewAnalyzeFrameUseCase wires the analysis flow. emitter may be nil.
func NewAnalyzeFrameUseCase(
	repo port.VideoRepository,
	store port.ObjectStore,
	detector port.Detector,
	renderer *overlay.Renderer,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	emitter port.ResultEmitter,
	logger *zap.Logger,
	cfg AnalyzeConfig,
) *AnalyzeFrameUseCase {
	rng := cfg.Rand
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &AnalyzeFrameUseCase{
		store:    store,
		detector: detector,
		renderer: renderer,
		emitter:  emitter,
		lc: &lifecycle{
			stage:     stageAnalysis,
			repo:      repo,
			publisher: publisher,
			dlq:       dlq,
			notifier:  notifier,
			logger:    logger,
			maxRetry:  cfg.MaxRetries,
		},
		logger: logger,
		rng:    rng,
	}
}

// Execute handles one message from the analysis queue.
func (uc *AnalyzeFrameUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "AnalyzeFrameUseCase.Execute")
	defer span.End()

	var msg entity.AnalysisMessage
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

	if !video.CanRetry() {
		log.Warn("video exhausted retries, sending to DLQ")
		return uc.lc.permanentFailure(ctx, video, rawMsg, msg.UserEmail, "max retries exceeded")
	}

	video.MarkAnalyzing()
	if err := uc.lc.repo.Update(ctx, video); err != nil {
		log.Error("failed to update video to ANALYZING", zap.Error(err))
		return fmt.Errorf("update video: %w", err)
	}
	uc.lc.publishStatus(ctx, video, log)

	metrics.ActiveWorkers.WithLabelValues(stageAnalysis).Inc()
	defer metrics.ActiveWorkers.WithLabelValues(stageAnalysis).Dec()

	start := time.Now()
	res, err := uc.Analyze(ctx, msg.VideoKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return uc.lc.fail(ctx, video, rawMsg, msg.UserEmail, err, log)
	}

	video.MarkAnalyzed(res.AnalyzedKey, res.FrameKey, res.Detections)
	if err := uc.lc.repo.Update(ctx, video); err != nil {
		log.Error("failed to update video to ANALYZED", zap.Error(err))
		return fmt.Errorf("update video analyzed: %w", err)
	}
	uc.lc.publishStatus(ctx, video, log)
	uc.emit(ctx, msg.VideoKey, res, log)

	metrics.VideosProcessedTotal.WithLabelValues(stageAnalysis, "completed").Inc()
	metrics.StageDuration.WithLabelValues("analysis_total").Observe(time.Since(start).Seconds())

	log.Info("analysis completed",
		zap.String("frame_key", res.FrameKey),
		zap.Int("detections", len(res.Detections)),
	)
	return nil
}

// Analyze picks one sampled frame of videoKey at random, runs it through the
// detector and stores the annotated copy at {base}/analyzed_frame.jpg. Nothing
// is written when any step fails.
func (uc *AnalyzeFrameUseCase) Analyze(ctx context.Context, videoKey string) (*AnalysisResult, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "AnalyzeFrameUseCase.Analyze")
	defer span.End()

	base := entity.BaseName(videoKey)

	candidates, err := uc.candidates(ctx, base)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s", entity.ErrNoCandidates, base)
	}

	frameKey := candidates[uc.pick(len(candidates))]
	span.SetAttributes(attribute.String("frame.key", frameKey), attribute.Int("frame.candidates", len(candidates)))

	data, err := uc.store.Get(ctx, frameKey)
	if err != nil {
		return nil, persistenceError("get", frameKey, err)
	}
	img, err := frame.DecodeJPEG(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", frameKey, err)
	}

	detStart := time.Now()
	ctxDet, spanDet := tracer.Start(ctx, "detect_objects")
	detections, err := uc.detector.Detect(ctxDet, data)
	spanDet.End()
	if err != nil {
		if !errors.Is(err, entity.ErrDetectionService) {
			err = &entity.DetectionServiceError{Err: err}
		}
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("detect").Observe(time.Since(detStart).Seconds())

	annotated, detections := uc.renderer.Render(img, detections)
	jpg, err := frame.EncodeJPEG(annotated)
	if err != nil {
		return nil, fmt.Errorf("encode analyzed frame: %w", err)
	}

	analyzedKey := entity.AnalyzedKey(base)
	if err := uc.store.Put(ctx, analyzedKey, jpg, frame.ContentType); err != nil {
		return nil, persistenceError("put", analyzedKey, err)
	}

	for _, d := range detections {
		metrics.DetectionsTotal.WithLabelValues(d.Label).Inc()
	}

	return &AnalysisResult{
		FrameKey:    frameKey,
		AnalyzedKey: analyzedKey,
		Detections:  detections,
		Image:       annotated,
	}, nil
}

// candidates lists sampled frames only; the archive and the analyzed frame share the prefix directory.
func (uc *AnalyzeFrameUseCase) candidates(ctx context.Context, base string) ([]string, error) {
	prefix := entity.FramePrefix(base)
	keys, err := uc.store.List(ctx, prefix)
	if err != nil {
		return nil, persistenceError("list", prefix, err)
	}

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if entity.IsFrameKey(base, k) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (uc *AnalyzeFrameUseCase) pick(n int) int {
	uc.randMu.Lock()
	defer uc.randMu.Unlock()
	return uc.rng.IntN(n)
}

func (uc *AnalyzeFrameUseCase) emit(ctx context.Context, videoKey string, res *AnalysisResult, log *zap.Logger) {
	if uc.emitter == nil {
		return
	}
	payload, err := json.Marshal(entity.AnalysisEvent{
		VideoKey:    videoKey,
		FrameKey:    res.FrameKey,
		AnalyzedKey: res.AnalyzedKey,
		Detections:  res.Detections,
	})
	if err != nil {
		log.Error("failed to marshal analysis event", zap.Error(err))
		return
	}
	if err := uc.emitter.EmitAnalysis(ctx, entity.BaseName(videoKey), payload); err != nil {
		log.Warn("failed to emit analysis event", zap.Error(err))
	}
}

package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/fiapx/fiapx-vision-service/internal/domain/entity"
	"github.com/fiapx/fiapx-vision-service/internal/domain/frame"
	"github.com/fiapx/fiapx-vision-service/internal/domain/overlay"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var catDetection = entity.Detection{
	Label:      "cat",
	Confidence: 0.87,
	Box:        entity.BoundingBox{Left: 10, Top: 25, Width: 30, Height: 15},
}

type analyzeFixture struct {
	uc        *AnalyzeFrameUseCase
	store     *memStore
	detector  *fakeDetector
	repo      *memRepo
	publisher *recordingPublisher
	dlq       *recordingDLQ
	notifier  *recordingNotifier
	emitter   *recordingEmitter
	logs      *observer.ObservedLogs
}

func newAnalyzeFixture(t *testing.T, seed uint64) *analyzeFixture {
	t.Helper()
	f := &analyzeFixture{
		store:     newMemStore(),
		detector:  &fakeDetector{detections: []entity.Detection{catDetection}},
		repo:      newMemRepo(),
		publisher: &recordingPublisher{},
		dlq:       &recordingDLQ{},
		notifier:  &recordingNotifier{},
		emitter:   &recordingEmitter{},
	}
	renderer, err := overlay.NewRenderer(overlay.DefaultStyle())
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	f.logs = logs

	f.uc = NewAnalyzeFrameUseCase(
		f.repo, f.store, f.detector, renderer,
		f.publisher, f.dlq, f.notifier, f.emitter,
		zap.New(core),
		AnalyzeConfig{MaxRetries: 3, Rand: rand.New(rand.NewPCG(seed, seed))},
	)
	return f
}

func storeFrames(t *testing.T, s *memStore, base string, indices ...int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 40, G: 80, B: 120, A: 255})
		}
	}
	data, err := frame.EncodeJPEG(img)
	require.NoError(t, err)
	for _, idx := range indices {
		s.objects[entity.FrameKey(base, idx)] = data
	}
}

func (f *analyzeFixture) statuses(t *testing.T) []entity.VideoStatus {
	t.Helper()
	var out []entity.VideoStatus
	for _, raw := range f.publisher.msgs {
		var m entity.VideoStatusMessage
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m.Status)
	}
	return out
}

func analysisMessage(t *testing.T, key string) []byte {
	t.Helper()
	raw, err := json.Marshal(entity.AnalysisMessage{JobID: uuid.New(), VideoKey: key, UserEmail: "user@example.com"})
	require.NoError(t, err)
	return raw
}

func TestAnalyzeStoresSingleAnnotatedFrame(t *testing.T) {
	f := newAnalyzeFixture(t, 1)
	storeFrames(t, f.store, "video", 0, 150)
	f.store.objects["video/frames.zip"] = []byte("zip")
	f.store.objects["video/analyzed_frame.jpg"] = []byte("previous analysis")

	res, err := f.uc.Analyze(context.Background(), "uploads/video.mp4")
	require.NoError(t, err)

	assert.Equal(t, []string{"video/analyzed_frame.jpg"}, f.store.puts)
	assert.Equal(t, "video/analyzed_frame.jpg", res.AnalyzedKey)
	assert.Contains(t, []string{"video/frame_0.jpg", "video/frame_150.jpg"}, res.FrameKey)
	assert.Equal(t, []entity.Detection{catDetection}, res.Detections)
	assert.Equal(t, 1, f.detector.calls)

	assert.NotEqual(t, []byte("previous analysis"), f.store.objects["video/analyzed_frame.jpg"])
	_, err = frame.DecodeJPEG(f.store.objects["video/analyzed_frame.jpg"])
	require.NoError(t, err)

	require.NotNil(t, res.Image)
	assert.Equal(t, image.Rect(0, 0, 64, 48), res.Image.Bounds())
	assert.Equal(t, color.RGBA{R: 255, A: 255}, res.Image.RGBAAt(catDetection.Box.Left, 35))
}

func TestAnalyzeWithoutCandidates(t *testing.T) {
	f := newAnalyzeFixture(t, 1)
	f.store.objects["video/frames.zip"] = []byte("zip")
	f.store.objects["video/analyzed_frame.jpg"] = []byte("previous analysis")
	storeFrames(t, f.store, "other", 0)

	res, err := f.uc.Analyze(context.Background(), "uploads/video.mp4")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, entity.ErrNoCandidates)
	assert.Empty(t, f.store.puts)
	assert.Zero(t, f.detector.calls)
}

func TestAnalyzeSeededSelectionIsReproducible(t *testing.T) {
	pickAll := func(seed uint64) []string {
		f := newAnalyzeFixture(t, seed)
		storeFrames(t, f.store, "video", 0, 150, 300, 450, 600, 750, 900, 1050, 1200, 1350)
		var picked []string
		for i := 0; i < 50; i++ {
			res, err := f.uc.Analyze(context.Background(), "video.mp4")
			require.NoError(t, err)
			picked = append(picked, res.FrameKey)
		}
		return picked
	}

	first := pickAll(7)
	assert.Equal(t, first, pickAll(7))

	distinct := map[string]bool{}
	for _, k := range first {
		distinct[k] = true
	}
	assert.Greater(t, len(distinct), 1)
}

func TestAnalyzeDetectorFailureLeavesPreviousResult(t *testing.T) {
	f := newAnalyzeFixture(t, 1)
	storeFrames(t, f.store, "video", 0)
	f.store.objects["video/analyzed_frame.jpg"] = []byte("previous analysis")
	f.detector.err = errors.New("timeout")

	_, err := f.uc.Analyze(context.Background(), "video.mp4")
	assert.ErrorIs(t, err, entity.ErrDetectionService)
	assert.Empty(t, f.store.puts)
	assert.Equal(t, []byte("previous analysis"), f.store.objects["video/analyzed_frame.jpg"])
}

func TestAnalyzeKeepsTypedDetectorError(t *testing.T) {
	f := newAnalyzeFixture(t, 1)
	storeFrames(t, f.store, "video", 0)
	f.detector.err = &entity.DetectionServiceError{StatusCode: 401, Err: errors.New("invalid key")}

	_, err := f.uc.Analyze(context.Background(), "video.mp4")
	var derr *entity.DetectionServiceError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 401, derr.StatusCode)
}

func TestAnalyzeListFailure(t *testing.T) {
	f := newAnalyzeFixture(t, 1)
	f.store.listErr = errors.New("bucket unavailable")

	_, err := f.uc.Analyze(context.Background(), "video.mp4")
	assert.ErrorIs(t, err, entity.ErrPersistence)
	assert.False(t, entity.IsPermanent(err))
}

func TestAnalyzeConcurrentCalls(t *testing.T) {
	f := newAnalyzeFixture(t, 3)
	for i := 0; i < 4; i++ {
		storeFrames(t, f.store, fmt.Sprintf("video%d", i), 0, 150)
	}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.uc.Analyze(context.Background(), fmt.Sprintf("video%d.mp4", i%4))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 8, f.detector.calls)
}

func TestExecuteAnalysisSuccess(t *testing.T) {
	f := newAnalyzeFixture(t, 1)
	storeFrames(t, f.store, "video", 0, 150)

	err := f.uc.Execute(context.Background(), analysisMessage(t, "uploads/video.mp4"))
	require.NoError(t, err)

	v, err := f.repo.FindByKey(context.Background(), "uploads/video.mp4")
	require.NoError(t, err)
	assert.Equal(t, entity.VideoStatusAnalyzed, v.Status)
	assert.Equal(t, "video/analyzed_frame.jpg", v.AnalyzedKey)
	assert.Equal(t, []entity.Detection{catDetection}, v.Detections)
	assert.Zero(t, v.Attempt)

	assert.Equal(t, []entity.VideoStatus{entity.VideoStatusAnalyzing, entity.VideoStatusAnalyzed}, f.statuses(t))

	require.Len(t, f.emitter.events, 1)
	assert.Equal(t, "video", f.emitter.events[0].baseName)
	var ev entity.AnalysisEvent
	require.NoError(t, json.Unmarshal(f.emitter.events[0].payload, &ev))
	assert.Equal(t, v.AnalyzedFrameKey, ev.FrameKey)
	assert.Equal(t, []entity.Detection{catDetection}, ev.Detections)
}

func TestExecuteAnalysisEmitFailureIsNotFatal(t *testing.T) {
	f := newAnalyzeFixture(t, 1)
	storeFrames(t, f.store, "video", 0)
	f.emitter.err = errors.New("mqtt not connected")

	require.NoError(t, f.uc.Execute(context.Background(), analysisMessage(t, "video.mp4")))

	v, err := f.repo.FindByKey(context.Background(), "video.mp4")
	require.NoError(t, err)
	assert.Equal(t, entity.VideoStatusAnalyzed, v.Status)
}

func TestExecuteAnalysisWithoutFramesIsPermanent(t *testing.T) {
	f := newAnalyzeFixture(t, 1)

	err := f.uc.Execute(context.Background(), analysisMessage(t, "uploads/video.mp4"))
	require.NoError(t, err)

	require.Len(t, f.dlq.msgs, 1)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "analysis", f.notifier.sent[0].stage)
	assert.Empty(t, f.emitter.events)

	v, err := f.repo.FindByKey(context.Background(), "uploads/video.mp4")
	require.NoError(t, err)
	assert.Equal(t, entity.VideoStatusFailed, v.Status)
}

func TestExecuteAnalysisDetectorFailureIsRetried(t *testing.T) {
	f := newAnalyzeFixture(t, 1)
	storeFrames(t, f.store, "video", 0)
	f.detector.err = &entity.DetectionServiceError{StatusCode: 503, Err: errors.New("unavailable")}

	err := f.uc.Execute(context.Background(), analysisMessage(t, "video.mp4"))
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrDetectionService)
	assert.Empty(t, f.dlq.msgs)
	assert.Equal(t, []entity.VideoStatus{entity.VideoStatusAnalyzing, entity.VideoStatusFailed}, f.statuses(t))
}

func TestExecuteAnalysisRecoversAfterExhaustedRetries(t *testing.T) {
	f := newAnalyzeFixture(t, 1)
	storeFrames(t, f.store, "video", 0, 150)
	f.detector.err = &entity.DetectionServiceError{StatusCode: 503, Err: errors.New("unavailable")}

	msg := analysisMessage(t, "uploads/video.mp4")
	require.Error(t, f.uc.Execute(context.Background(), msg))
	require.Error(t, f.uc.Execute(context.Background(), msg))
	require.NoError(t, f.uc.Execute(context.Background(), msg), "third delivery goes to the DLQ")
	require.Len(t, f.dlq.msgs, 1)
	assert.NotContains(t, f.store.objects, "video/analyzed_frame.jpg")

	f.detector.err = nil
	require.NoError(t, f.uc.Execute(context.Background(), analysisMessage(t, "uploads/video.mp4")))

	assert.Contains(t, f.store.objects, "video/analyzed_frame.jpg")
	assert.Len(t, f.dlq.msgs, 1)
	v, err := f.repo.FindByKey(context.Background(), "uploads/video.mp4")
	require.NoError(t, err)
	assert.Equal(t, entity.VideoStatusAnalyzed, v.Status)
	assert.Zero(t, v.Attempt)
}

func TestExecuteAnalysisLogsDLQFailure(t *testing.T) {
	f := newAnalyzeFixture(t, 1)
	f.dlq.err = errors.New("channel closed")

	require.NoError(t, f.uc.Execute(context.Background(), analysisMessage(t, "uploads/video.mp4")))

	entries := f.logs.FilterMessage("failed to publish to DLQ").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "channel closed", entries[0].ContextMap()["error"])
	assert.Equal(t, "uploads/video.mp4", entries[0].ContextMap()["video_key"])
}

func TestExecuteAnalysisMalformedMessage(t *testing.T) {
	f := newAnalyzeFixture(t, 1)

	require.NoError(t, f.uc.Execute(context.Background(), []byte(`[]`)))
	require.Len(t, f.dlq.msgs, 1)
	assert.Empty(t, f.publisher.msgs)
}

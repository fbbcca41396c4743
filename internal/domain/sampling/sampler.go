package sampling

import (
	"context"
	"errors"
	"image"
	"iter"

	"github.com/fiapx/fiapx-vision-service/internal/domain/frame"
	"github.com/fiapx/fiapx-vision-service/internal/domain/port"
	"go.uber.org/zap"
)

// Sample is one frame taken from the stream.
type Sample struct {
	Index      int
	Timestamp  float64
	FrameIndex int
	Frame      *image.RGBA
}

type Sampler struct {
	logger *zap.Logger
}

func NewSampler(logger *zap.Logger) *Sampler {
	return &Sampler{logger: logger}
}

// Sequence is a finite, lazily decoded run of samples over one stream.
type Sequence struct {
	Plan Plan

	stream  port.VideoStream
	logger  *zap.Logger
	skipped int
}

// Sample reads fps and frame count once and plans the run. The stream stays
// owned by the caller and is never closed here.
func (s *Sampler) Sample(stream port.VideoStream, intervalSeconds float64) (*Sequence, error) {
	plan, err := NewPlan(stream.FPS(), stream.FrameCount(), intervalSeconds)
	if err != nil {
		return nil, err
	}
	return &Sequence{Plan: plan, stream: stream, logger: s.logger}, nil
}

// All yields samples in index order. Each read seeks to its own frame index, so
// ranging again re-reads the same frames. Out-of-range or unreadable frames are
// skipped with a warning; only context cancellation ends the run with an error.
func (q *Sequence) All(ctx context.Context) iter.Seq2[Sample, error] {
	return func(yield func(Sample, error) bool) {
		q.skipped = 0
		for i := 0; i < q.Plan.Count; i++ {
			if err := ctx.Err(); err != nil {
				yield(Sample{}, err)
				return
			}

			idx := q.Plan.FrameIndex(i)
			if !q.Plan.InRange(idx) {
				q.skip(i, idx, "frame index past end of stream", nil)
				continue
			}

			img, err := q.stream.ReadFrame(ctx, idx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					yield(Sample{}, err)
					return
				}
				q.skip(i, idx, "frame read failed", err)
				continue
			}

			s := Sample{
				Index:      i,
				Timestamp:  q.Plan.Timestamp(i),
				FrameIndex: idx,
				Frame:      frame.ToRGBA(img),
			}
			if !yield(s, nil) {
				return
			}
		}
	}
}

// Skipped counts samples dropped by the most recent All run.
func (q *Sequence) Skipped() int {
	return q.skipped
}

func (q *Sequence) skip(sampleIndex, frameIndex int, reason string, err error) {
	q.skipped++
	fields := []zap.Field{
		zap.Int("sample_index", sampleIndex),
		zap.Int("frame_index", frameIndex),
		zap.Int("frame_count", q.Plan.FrameCount),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	q.logger.Warn("skipping sample: "+reason, fields...)
}

package sampling

import (
	"fmt"
	"math"

	"github.com/fiapx/fiapx-vision-service/internal/domain/entity"
)

// spanEpsilon absorbs float error in fps*interval, e.g. 10*0.7 = 6.999999999999999.
const spanEpsilon = 1e-9

// Plan is the frame arithmetic for one video. All index math is integer:
// Span = floor(FPS * Interval) frames, Count = FrameCount / Span + 1.
// The trailing "+1" sample may point past the last frame; callers skip it.
type Plan struct {
	FPS        int
	FrameCount int
	Interval   float64
	Span       int
	Count      int
}

func NewPlan(fps, frameCount int, interval float64) (Plan, error) {
	if fps <= 0 {
		return Plan{}, &entity.InvalidStreamError{Source: fmt.Sprintf("fps=%d", fps)}
	}
	if frameCount < 0 {
		return Plan{}, &entity.InvalidStreamError{Source: fmt.Sprintf("frame_count=%d", frameCount)}
	}
	if interval <= 0 || math.IsNaN(interval) || math.IsInf(interval, 0) {
		return Plan{}, fmt.Errorf("%w: %v seconds", entity.ErrInvalidInterval, interval)
	}

	span := int(math.Floor(float64(fps)*interval + spanEpsilon))
	if span < 1 {
		return Plan{}, fmt.Errorf("%w: %v seconds is shorter than one frame at %d fps", entity.ErrInvalidInterval, interval, fps)
	}

	return Plan{
		FPS:        fps,
		FrameCount: frameCount,
		Interval:   interval,
		Span:       span,
		Count:      frameCount/span + 1,
	}, nil
}

func (p Plan) FrameIndex(sampleIndex int) int {
	return sampleIndex * p.Span
}

func (p Plan) Timestamp(sampleIndex int) float64 {
	return p.Interval * float64(sampleIndex)
}

// InRange reports whether frameIndex addresses a decodable frame.
func (p Plan) InRange(frameIndex int) bool {
	return frameIndex >= 0 && frameIndex < p.FrameCount
}

// FrameIndices lists every planned index, including an out-of-range trailer.
func (p Plan) FrameIndices() []int {
	out := make([]int, p.Count)
	for i := range out {
		out[i] = p.FrameIndex(i)
	}
	return out
}
